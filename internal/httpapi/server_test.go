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

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/authz"
	"github.com/plosson/siteio/internal/model"
	"github.com/plosson/siteio/internal/store"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	apps := store.NewAppStore(filepath.Join(dir, "apps"))
	sites := store.NewSiteStore(dir)
	groups := store.NewGroupStore(filepath.Join(dir, "groups.json"))
	oidc := store.NewOIDCConfigStore(filepath.Join(dir, "oauth-config.json"))
	az := authz.New(apps, sites, groups, "example.com")

	const key = "test-api-key"
	s := New(Config{
		Apps: apps, Sites: sites, Groups: groups, OIDC: oidc,
		Authz: az, OperatorDomain: "example.com", APIKey: key,
		MaxUploadSize: 10 << 20,
	})
	return s, key
}

func doRequest(t *testing.T, s *Server, method, path, apiKey string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_IsPublic(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGate_RejectsMissingOrWrongAPIKey(t *testing.T) {
	s, key := newTestServer(t)

	if rec := doRequest(t, s, http.MethodGet, "/apps", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/apps", "wrong-key", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/apps", key, nil); rec.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", rec.Code)
	}
}

func TestHandleCreateApp_And_GetApp(t *testing.T) {
	s, key := newTestServer(t)

	body, _ := json.Marshal(model.App{
		Name:         "web",
		Source:       model.Source{Image: "nginx:alpine"},
		InternalPort: 80,
	})
	rec := doRequest(t, s, http.MethodPost, "/apps", key, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created apierr.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if !created.Success {
		t.Fatalf("create envelope.Success = false, error = %q", created.Error)
	}

	rec = doRequest(t, s, http.MethodGet, "/apps/web", key, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/apps/missing", key, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing app status = %d, want 404", rec.Code)
	}
}

func TestHandleCreateApp_DuplicateName_UserError(t *testing.T) {
	s, key := newTestServer(t)
	body, _ := json.Marshal(model.App{Name: "web", Source: model.Source{Image: "nginx"}, InternalPort: 80})

	if rec := doRequest(t, s, http.MethodPost, "/apps", key, body); rec.Code != http.StatusOK {
		t.Fatalf("first create status = %d", rec.Code)
	}
	rec := doRequest(t, s, http.MethodPost, "/apps", key, body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate create status = %d, want 400", rec.Code)
	}
}

func TestHandleUpdateApp_PatchesFields(t *testing.T) {
	s, key := newTestServer(t)
	body, _ := json.Marshal(model.App{Name: "web", Source: model.Source{Image: "nginx"}, InternalPort: 80})
	if rec := doRequest(t, s, http.MethodPost, "/apps", key, body); rec.Code != http.StatusOK {
		t.Fatalf("create status = %d", rec.Code)
	}

	patch, _ := json.Marshal(map[string]any{"internalPort": 9090})
	rec := doRequest(t, s, http.MethodPatch, "/apps/web", key, patch)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var env apierr.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	data, _ := json.Marshal(env.Data)
	var app model.App
	if err := json.Unmarshal(data, &app); err != nil {
		t.Fatalf("Unmarshal(data) = %v", err)
	}
	if app.InternalPort != 9090 {
		t.Errorf("InternalPort = %d, want 9090", app.InternalPort)
	}
}

func TestHandleAuthCheck_IsPublicAndEnforcesPolicy(t *testing.T) {
	s, key := newTestServer(t)
	body, _ := json.Marshal(model.App{
		Name: "web", Source: model.Source{Image: "nginx"}, InternalPort: 80,
		OAuth: model.NewOAuthPolicy([]string{"alice@x.com"}, "", nil),
	})
	if rec := doRequest(t, s, http.MethodPost, "/apps", key, body); rec.Code != http.StatusOK {
		t.Fatalf("create status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/check", nil)
	req.Header.Set("X-Forwarded-Host", "web.example.com")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no email header: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/check", nil)
	req.Header.Set("X-Forwarded-Host", "web.example.com")
	req.Header.Set("X-Forwarded-Email", "alice@x.com")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("allowed email: status = %d, want 200", rec.Code)
	}
}
