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

// Package gitadapter shells out to the git binary to clone an app's source
// into an app-scoped directory and read its HEAD commit.
package gitadapter

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/plosson/siteio/internal/apierr"
)

// Adapter clones git-sourced apps into <dataRoot>/repos/<app>.
type Adapter struct {
	reposRoot string
}

// New returns an adapter rooted at dataRoot/repos.
func New(dataRoot string) *Adapter {
	return &Adapter{reposRoot: filepath.Join(dataRoot, "repos")}
}

// RepoPath returns the clone directory for app.
func (a *Adapter) RepoPath(app string) string {
	return filepath.Join(a.reposRoot, app)
}

// Exists reports whether app has a clone on disk.
func (a *Adapter) Exists(app string) bool {
	_, err := os.Stat(a.RepoPath(app))
	return err == nil
}

// Clone always performs a fresh shallow, single-branch checkout, discarding
// any prior clone for app first.
func (a *Adapter) Clone(app, url, branch string) error {
	dest := a.RepoPath(app)
	if err := os.RemoveAll(dest); err != nil {
		return apierr.System("failed to clear existing clone: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apierr.System("failed to create repos directory: %v", err)
	}

	cmd := exec.Command("git", "clone", "--depth=1", "--single-branch", "--branch", branch, url, dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return mapCloneError(string(out), err)
	}
	return nil
}

func mapCloneError(output string, cause error) error {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "remote branch") && strings.Contains(lower, "not found"):
		return apierr.User("branch not found: %s", strings.TrimSpace(output))
	case strings.Contains(lower, "couldn't find remote ref"):
		return apierr.User("branch not found: %s", strings.TrimSpace(output))
	case strings.Contains(lower, "repository not found"),
		strings.Contains(lower, "could not read from remote repository"),
		strings.Contains(lower, "does not appear to be a git repository"):
		return apierr.User("repository not found: %s", strings.TrimSpace(output))
	default:
		return apierr.System("git clone failed: %v: %s", cause, strings.TrimSpace(output))
	}
}

// GetCommitHash returns the 40-hex HEAD commit of app's clone.
func (a *Adapter) GetCommitHash(app string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = a.RepoPath(app)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", apierr.System("failed to resolve commit hash: %v: %s", err, strings.TrimSpace(string(out)))
	}
	hash := strings.TrimSpace(string(out))
	if len(hash) != 40 {
		return "", apierr.System("unexpected commit hash %q from git rev-parse", hash)
	}
	return hash, nil
}

// Remove deletes app's clone directory. Missing directories are not an
// error, matching the best-effort cleanup semantics used during delete.
func (a *Adapter) Remove(app string) error {
	if err := os.RemoveAll(a.RepoPath(app)); err != nil {
		return apierr.System("failed to remove clone for %s: %v", app, err)
	}
	return nil
}
