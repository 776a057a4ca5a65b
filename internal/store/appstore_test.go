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
	"net/http"
	"testing"
	"time"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/model"
)

func newTestApp(name string) *model.App {
	return &model.App{
		Name:         name,
		Source:       model.Source{Image: "nginx:alpine"},
		InternalPort: 80,
	}
}

func TestAppStore_CreateGetDelete(t *testing.T) {
	s := NewAppStore(t.TempDir())

	app := newTestApp("web")
	if err := s.Create(app); err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if app.CreatedAt.IsZero() || app.UpdatedAt.IsZero() {
		t.Error("Create() left CreatedAt/UpdatedAt zero")
	}

	got, err := s.Get("web")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.Name != "web" {
		t.Errorf("Get().Name = %q, want web", got.Name)
	}

	if err := s.Delete("web"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if _, err := s.Get("web"); !apierr.IsNotFound(err) {
		t.Errorf("Get() after delete = %v, want not-found", err)
	}
}

func TestAppStore_CreateRejectsDuplicateName(t *testing.T) {
	s := NewAppStore(t.TempDir())
	if err := s.Create(newTestApp("web")); err != nil {
		t.Fatalf("first Create() = %v", err)
	}
	err := s.Create(newTestApp("web"))
	if err == nil {
		t.Fatal("expected an error creating a duplicate app name")
	}
	if apierr.StatusFor(err) != http.StatusBadRequest {
		t.Errorf("duplicate create error status = %d, want %d", apierr.StatusFor(err), http.StatusBadRequest)
	}
}

func TestAppStore_Update_PreservesNameAndCreatedAt_BumpsUpdatedAt(t *testing.T) {
	s := NewAppStore(t.TempDir())
	app := newTestApp("web")
	if err := s.Create(app); err != nil {
		t.Fatalf("Create() = %v", err)
	}
	createdAt := app.CreatedAt
	firstUpdatedAt := app.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	updated, err := s.Update("web", func(a *model.App) error {
		a.InternalPort = 8080
		return nil
	})
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if updated.Name != "web" {
		t.Errorf("Update() changed Name to %q", updated.Name)
	}
	if !updated.CreatedAt.Equal(createdAt) {
		t.Errorf("Update() changed CreatedAt: %v -> %v", createdAt, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(firstUpdatedAt) {
		t.Errorf("UpdatedAt did not advance: %v -> %v", firstUpdatedAt, updated.UpdatedAt)
	}
	if updated.InternalPort != 8080 {
		t.Errorf("InternalPort = %d, want 8080", updated.InternalPort)
	}
}

func TestAppStore_Update_PropagatesMutateError(t *testing.T) {
	s := NewAppStore(t.TempDir())
	if err := s.Create(newTestApp("web")); err != nil {
		t.Fatalf("Create() = %v", err)
	}
	wantErr := apierr.User("nope")
	_, err := s.Update("web", func(a *model.App) error { return wantErr })
	if err != wantErr {
		t.Errorf("Update() error = %v, want %v", err, wantErr)
	}
}

func TestAppStore_List_SortedByName(t *testing.T) {
	s := NewAppStore(t.TempDir())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := s.Create(newTestApp(name)); err != nil {
			t.Fatalf("Create(%s) = %v", name, err)
		}
	}
	apps, err := s.List()
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(apps) != 3 {
		t.Fatalf("List() returned %d apps, want 3", len(apps))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, a := range apps {
		if a.Name != want[i] {
			t.Errorf("apps[%d].Name = %q, want %q", i, a.Name, want[i])
		}
	}
}

func TestAppStore_CreateStaticSiteApp(t *testing.T) {
	s := NewAppStore(t.TempDir())
	app, err := s.CreateStaticSiteApp("blog", "/data/sites/blog", nil)
	if err != nil {
		t.Fatalf("CreateStaticSiteApp() = %v", err)
	}
	if app.Type != model.AppTypeStatic {
		t.Errorf("Type = %q, want static", app.Type)
	}
	if len(app.Volumes) != 1 || !app.Volumes[0].ReadOnly {
		t.Errorf("Volumes = %+v, want one read-only mount", app.Volumes)
	}
	if app.Source.Image != model.StaticServerImage {
		t.Errorf("Source.Image = %q, want %q", app.Source.Image, model.StaticServerImage)
	}
}
