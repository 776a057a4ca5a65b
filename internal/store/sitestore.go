// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/model"
)

func init() {
	// Register klauspost/compress's faster flate implementation as the zip
	// deflate codec, used by zipSite below at compression level 6.
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, 6)
	})
}

// SiteStore owns <data>/sites, <data>/metadata, and <data>/history. Every
// file and directory it writes is world-readable (0o755/0o644) so the
// shared static-file container, running as its own uid, can serve it.
type SiteStore struct {
	sitesDir   string
	metaDir    string
	historyDir string
	locks      *nameLocks
}

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// NewSiteStore returns a store rooted at dataDir.
func NewSiteStore(dataDir string) *SiteStore {
	return &SiteStore{
		sitesDir:   filepath.Join(dataDir, "sites"),
		metaDir:    filepath.Join(dataDir, "metadata"),
		historyDir: filepath.Join(dataDir, "history"),
		locks:      newNameLocks(),
	}
}

func (s *SiteStore) siteDir(sub string) string    { return filepath.Join(s.sitesDir, sub) }
func (s *SiteStore) metaPath(sub string) string    { return filepath.Join(s.metaDir, sub+".json") }
func (s *SiteStore) historyDirFor(sub string) string { return filepath.Join(s.historyDir, sub) }

// GetMetadata returns the persisted metadata for sub.
func (s *SiteStore) GetMetadata(sub string) (*model.Site, error) {
	var site model.Site
	ok, err := readJSON(s.metaPath(sub), &site)
	if err != nil {
		return nil, apierr.System("%v", err)
	}
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("site %q", sub))
	}
	return &site, nil
}

// GetMetadataOk is a non-erroring variant for collaborators (authz) that
// treat "absent" as ordinary.
func (s *SiteStore) GetMetadataOk(sub string) (*model.Site, bool) {
	site, err := s.GetMetadata(sub)
	if err != nil {
		return nil, false
	}
	return site, true
}

func (s *SiteStore) writeMetadata(site *model.Site) error {
	if err := writeJSONAtomic(s.metaPath(site.Subdomain), site, fileMode); err != nil {
		return apierr.System("failed to write site metadata: %v", err)
	}
	return nil
}

// ListSites returns metadata for every site, sorted by DeployedAt
// descending.
func (s *SiteStore) ListSites() ([]*model.Site, error) {
	entries, err := os.ReadDir(s.metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierr.System("failed to list sites: %v", err)
	}
	var sites []*model.Site
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		sub := strings.TrimSuffix(e.Name(), ".json")
		site, err := s.GetMetadata(sub)
		if err != nil {
			continue
		}
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].DeployedAt.After(sites[j].DeployedAt) })
	return sites, nil
}

// ExtractAndStore unpacks zipBytes into the live directory for sub,
// snapshotting any existing version into history first. Directory entries
// (names ending in "/") are skipped; every other entry's parent directories
// are created as needed.
func (s *SiteStore) ExtractAndStore(sub string, zipBytes []byte, oauth *model.OAuthPolicy) (*model.Site, error) {
	unlock := s.locks.Lock(sub)
	defer unlock()

	if err := model.ValidateName("site", sub); err != nil {
		return nil, err
	}

	if _, err := os.Stat(s.siteDir(sub)); err == nil {
		if err := s.snapshotLocked(sub); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, apierr.System("failed to stat site directory: %v", err)
	}

	live := s.siteDir(sub)
	if err := os.RemoveAll(live); err != nil {
		return nil, apierr.System("failed to clear site directory: %v", err)
	}
	if err := os.MkdirAll(live, dirMode); err != nil {
		return nil, apierr.System("failed to create site directory: %v", err)
	}

	files, size, err := unpackZip(zipBytes, live)
	if err != nil {
		return nil, err
	}

	site := &model.Site{
		Subdomain:  sub,
		Size:       size,
		DeployedAt: time.Now().UTC(),
		Files:      files,
		OAuth:      oauth,
	}
	if err := s.writeMetadata(site); err != nil {
		return nil, err
	}
	return site, nil
}

// unpackZip decompresses zipBytes under destDir, returning the recursively
// enumerated relative file paths and their total size.
func unpackZip(zipBytes []byte, destDir string) ([]string, int64, error) {
	r, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, 0, apierr.User("invalid zip archive: %v", err)
	}

	var files []string
	var total int64
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") {
			continue // directory entry
		}
		cleaned := filepath.Clean(f.Name)
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") || filepath.IsAbs(cleaned) {
			return nil, 0, apierr.User("zip entry %q escapes site root", f.Name)
		}
		dest := filepath.Join(destDir, cleaned)
		if err := os.MkdirAll(filepath.Dir(dest), dirMode); err != nil {
			return nil, 0, apierr.System("failed to create directory for %s: %v", cleaned, err)
		}
		if err := extractOne(f, dest); err != nil {
			return nil, 0, err
		}
		info := f.FileInfo()
		total += info.Size()
		files = append(files, filepath.ToSlash(cleaned))
	}
	sort.Strings(files)
	return files, total, nil
}

func extractOne(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return apierr.System("failed to open zip entry %s: %v", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return apierr.System("failed to create %s: %v", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return apierr.System("failed to write %s: %v", dest, err)
	}
	return nil
}

// getNextVersion returns max(existing vK)+1, or 1 if none exist.
func (s *SiteStore) getNextVersion(sub string) (int, error) {
	entries, err := os.ReadDir(s.historyDirFor(sub))
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, apierr.System("failed to read history directory: %v", err)
	}
	max := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if v, ok := parseVersionDir(e.Name()); ok && v > max {
			max = v
		}
	}
	return max + 1, nil
}

func parseVersionDir(name string) (int, bool) {
	if !strings.HasPrefix(name, "v") {
		return 0, false
	}
	v, err := strconv.Atoi(name[1:])
	if err != nil {
		return 0, false
	}
	return v, true
}

// snapshotLocked copies the current live directory into the next history
// version, then prunes down to the 10 most recent. Caller must hold sub's
// lock.
func (s *SiteStore) snapshotLocked(sub string) error {
	site, err := s.GetMetadata(sub)
	if err != nil && !apierr.IsNotFound(err) {
		return err
	}

	version, err := s.getNextVersion(sub)
	if err != nil {
		return err
	}
	versionDir := filepath.Join(s.historyDirFor(sub), "v"+strconv.Itoa(version))
	if err := copyDir(s.siteDir(sub), versionDir); err != nil {
		return apierr.System("failed to snapshot site: %v", err)
	}

	var deployedAt time.Time
	var size int64
	if site != nil {
		deployedAt, size = site.DeployedAt, site.Size
	} else {
		deployedAt = time.Now().UTC()
	}
	entry := HistoryEntryFile(version, deployedAt, size)
	if err := writeJSONAtomic(versionDir+".json", entry, fileMode); err != nil {
		return apierr.System("failed to write history sidecar: %v", err)
	}
	return s.pruneHistory(sub)
}

// HistoryEntryFile is a small constructor kept at package scope for tests.
func HistoryEntryFile(version int, deployedAt time.Time, size int64) model.HistoryEntry {
	return model.HistoryEntry{Version: version, DeployedAt: deployedAt, Size: size}
}

// pruneHistory retains the MaxHistoryVersions highest-numbered versions,
// deleting the rest.
func (s *SiteStore) pruneHistory(sub string) error {
	entries, err := os.ReadDir(s.historyDirFor(sub))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apierr.System("failed to read history directory: %v", err)
	}
	var versions []int
	for _, e := range entries {
		if e.IsDir() {
			if v, ok := parseVersionDir(e.Name()); ok {
				versions = append(versions, v)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	if len(versions) <= model.MaxHistoryVersions {
		return nil
	}
	for _, v := range versions[model.MaxHistoryVersions:] {
		vd := filepath.Join(s.historyDirFor(sub), "v"+strconv.Itoa(v))
		if err := os.RemoveAll(vd); err != nil {
			return apierr.System("failed to prune history version %d: %v", v, err)
		}
		if err := os.Remove(vd + ".json"); err != nil && !os.IsNotExist(err) {
			return apierr.System("failed to prune history sidecar %d: %v", v, err)
		}
	}
	return nil
}

// Rollback archives the current live directory, then copies version K back
// into place, writing fresh metadata with K's recorded size and a
// re-enumerated file list, preserving the site's current oauth policy.
func (s *SiteStore) Rollback(sub string, version int) (*model.Site, error) {
	unlock := s.locks.Lock(sub)
	defer unlock()

	var entry model.HistoryEntry
	entryPath := filepath.Join(s.historyDirFor(sub), "v"+strconv.Itoa(version)+".json")
	ok, err := readJSON(entryPath, &entry)
	if err != nil {
		return nil, apierr.System("%v", err)
	}
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("site %q version %d", sub, version))
	}

	existing, err := s.GetMetadata(sub)
	if err != nil && !apierr.IsNotFound(err) {
		return nil, err
	}
	var oauth *model.OAuthPolicy
	if existing != nil {
		oauth = existing.OAuth
	}

	if _, statErr := os.Stat(s.siteDir(sub)); statErr == nil {
		if err := s.snapshotLocked(sub); err != nil {
			return nil, err
		}
	}

	versionDir := filepath.Join(s.historyDirFor(sub), "v"+strconv.Itoa(version))
	live := s.siteDir(sub)
	if err := os.RemoveAll(live); err != nil {
		return nil, apierr.System("failed to clear site directory: %v", err)
	}
	if err := copyDir(versionDir, live); err != nil {
		return nil, apierr.System("failed to restore version %d: %v", version, err)
	}

	files, err := enumerateFiles(live)
	if err != nil {
		return nil, apierr.System("failed to enumerate restored files: %v", err)
	}

	site := &model.Site{
		Subdomain:  sub,
		Size:       entry.Size,
		DeployedAt: time.Now().UTC(),
		Files:      files,
		OAuth:      oauth,
	}
	if err := s.writeMetadata(site); err != nil {
		return nil, err
	}
	return site, nil
}

// ZipSite recursively re-zips the live directory for sub at compression
// level 6 (klauspost/compress flate, registered in init above).
func (s *SiteStore) ZipSite(sub string) ([]byte, error) {
	live := s.siteDir(sub)
	if _, err := os.Stat(live); err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.NotFound(fmt.Sprintf("site %q", sub))
		}
		return nil, apierr.System("failed to stat site directory: %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	err := filepath.Walk(live, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(live, path)
		if err != nil {
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   filepath.ToSlash(rel),
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return nil, apierr.System("failed to zip site: %v", err)
	}
	if err := zw.Close(); err != nil {
		return nil, apierr.System("failed to finalize zip: %v", err)
	}
	return buf.Bytes(), nil
}

// UpdateOAuth merges policy into the site's metadata (nil deletes it).
func (s *SiteStore) UpdateOAuth(sub string, policy *model.OAuthPolicy) (*model.Site, error) {
	unlock := s.locks.Lock(sub)
	defer unlock()

	site, err := s.GetMetadata(sub)
	if err != nil {
		return nil, err
	}
	site.OAuth = policy
	if err := s.writeMetadata(site); err != nil {
		return nil, err
	}
	return site, nil
}

// DeleteSite removes the live directory and metadata. History is retained
// by design — see DESIGN.md's Open Question Decisions.
func (s *SiteStore) DeleteSite(sub string) error {
	unlock := s.locks.Lock(sub)
	defer unlock()

	if _, err := os.Stat(s.metaPath(sub)); err != nil {
		if os.IsNotExist(err) {
			return apierr.NotFound(fmt.Sprintf("site %q", sub))
		}
		return apierr.System("failed to stat site metadata: %v", err)
	}
	if err := os.RemoveAll(s.siteDir(sub)); err != nil {
		return apierr.System("failed to remove site directory: %v", err)
	}
	if err := os.Remove(s.metaPath(sub)); err != nil && !os.IsNotExist(err) {
		return apierr.System("failed to remove site metadata: %v", err)
	}
	return nil
}

// SiteDir exposes the live directory path for sub, used by the App Store
// mirror (the static App's volume host path).
func (s *SiteStore) SiteDir(sub string) string { return s.siteDir(sub) }

func enumerateFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, dirMode); err != nil {
		return err
	}
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, dirMode)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), dirMode); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
