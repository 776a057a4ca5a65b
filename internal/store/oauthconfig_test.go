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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestOIDCConfigStore_MissingFileIsDisabled(t *testing.T) {
	s := NewOIDCConfigStore(filepath.Join(t.TempDir(), "oauth-config.json"))
	if s.Enabled() {
		t.Error("Enabled() with no config file should be false")
	}
	if s.Exists() {
		t.Error("Exists() with no config file should be false")
	}
}

func TestOIDCConfigStore_IncompleteConfigIsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth-config.json")
	data, err := json.Marshal(OIDCConfig{IssuerURL: "https://issuer.example"})
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	s := NewOIDCConfigStore(path)
	if s.Enabled() {
		t.Error("Enabled() with an incomplete config should be false")
	}
	if !s.Exists() {
		t.Error("Exists() with a present file should be true")
	}
}

func TestOIDCConfigStore_CompleteConfigIsEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth-config.json")
	cfg := OIDCConfig{
		IssuerURL:    "https://issuer.example",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CookieSecret: "cookie-secret",
		CookieDomain: "example.com",
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	s := NewOIDCConfigStore(path)
	if !s.Enabled() {
		t.Error("Enabled() with a complete config should be true")
	}
	loaded, ok, err := s.Load()
	if err != nil || !ok {
		t.Fatalf("Load() = %+v, %v, %v", loaded, ok, err)
	}
	if *loaded != cfg {
		t.Errorf("Load() = %+v, want %+v", *loaded, cfg)
	}
}
