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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/model"
)

// AppStore owns the per-app JSON records under <data>/apps/<name>.json.
// It is the exclusive owner of app records; the Deployment Engine mutates
// status/containerId/etc through it but never writes the file directly.
type AppStore struct {
	dir   string
	locks *nameLocks
}

// NewAppStore returns a store rooted at dir (<data>/apps).
func NewAppStore(dir string) *AppStore {
	return &AppStore{dir: dir, locks: newNameLocks()}
}

func (s *AppStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Create validates and persists a brand new app record, rejecting invalid
// names and duplicates.
func (s *AppStore) Create(app *model.App) error {
	unlock := s.locks.Lock(app.Name)
	defer unlock()

	if err := app.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(s.path(app.Name)); err == nil {
		return apierr.User("app %q already exists", app.Name)
	} else if !os.IsNotExist(err) {
		return apierr.System("failed to stat app file: %v", err)
	}

	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = model.StatusPending
	}
	return s.write(app)
}

func (s *AppStore) write(app *model.App) error {
	if err := writeJSONAtomic(s.path(app.Name), app, 0o644); err != nil {
		return apierr.System("failed to write app record: %v", err)
	}
	return nil
}

// Get loads the app named name.
func (s *AppStore) Get(name string) (*model.App, error) {
	var app model.App
	ok, err := readJSON(s.path(name), &app)
	if err != nil {
		return nil, apierr.System("%v", err)
	}
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("app %q", name))
	}
	return &app, nil
}

// GetOk is a non-erroring variant used by collaborators (e.g. the
// authorization service) that treat "absent" as an ordinary outcome rather
// than a failure.
func (s *AppStore) GetOk(name string) (*model.App, bool) {
	app, err := s.Get(name)
	if err != nil {
		return nil, false
	}
	return app, true
}

// Update loads name, applies mutate, preserves Name/CreatedAt, bumps
// UpdatedAt, and persists the result. mutate runs under the per-name lock
// so it is safe for callers to read-modify-write.
func (s *AppStore) Update(name string, mutate func(*model.App) error) (*model.App, error) {
	unlock := s.locks.Lock(name)
	defer unlock()

	app, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	createdAt, origName := app.CreatedAt, app.Name
	if err := mutate(app); err != nil {
		return nil, err
	}
	app.Name = origName
	app.CreatedAt = createdAt
	app.UpdatedAt = time.Now().UTC()
	if err := s.write(app); err != nil {
		return nil, err
	}
	return app, nil
}

// Delete removes the app's JSON record. It does not cascade to the
// container/image/clone directory; that is the Deployment Engine's job.
func (s *AppStore) Delete(name string) error {
	unlock := s.locks.Lock(name)
	defer unlock()

	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return apierr.NotFound(fmt.Sprintf("app %q", name))
		}
		return apierr.System("failed to delete app record: %v", err)
	}
	return nil
}

// List returns every app record, sorted by name.
func (s *AppStore) List() ([]*model.App, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierr.System("failed to list apps: %v", err)
	}
	var apps []*model.App
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := e.Name()[:len(e.Name())-len(".json")]
		app, err := s.Get(name)
		if err != nil {
			continue
		}
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps, nil
}

// CreateStaticSiteApp mirrors a Site into the App Store: a static-type app
// mounting sitePath read-only onto the shared static server image.
func (s *AppStore) CreateStaticSiteApp(name, sitePath string, oauth *model.OAuthPolicy) (*model.App, error) {
	app := &model.App{
		Name:         name,
		Source:       model.Source{Image: model.StaticServerImage},
		Type:         model.AppTypeStatic,
		InternalPort: 80,
		Volumes: []model.Volume{{
			HostName:  sitePath,
			MountPath: model.StaticServerMountPath,
			ReadOnly:  true,
		}},
		RestartPolicy: model.RestartUnlessStopped,
		OAuth:         oauth,
	}
	if err := s.Create(app); err != nil {
		return nil, err
	}
	return app, nil
}
