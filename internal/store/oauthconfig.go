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
	"os"

	"github.com/plosson/siteio/internal/apierr"
)

// OIDCConfig is the operator-supplied OIDC provider configuration loaded
// from <data>/oauth-config.json. All five fields are required; an absent
// file or any empty field means OIDC is disabled for the whole agent.
type OIDCConfig struct {
	IssuerURL    string `json:"issuerUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	CookieSecret string `json:"cookieSecret"`
	CookieDomain string `json:"cookieDomain"`
}

func (c *OIDCConfig) complete() bool {
	return c.IssuerURL != "" && c.ClientID != "" && c.ClientSecret != "" &&
		c.CookieSecret != "" && c.CookieDomain != ""
}

// OIDCConfigStore loads the OIDC config from a fixed path. Nothing is
// cached: every Load (and Enabled) re-reads the file, so callers asking
// "is OIDC configured right now" always see the current file.
type OIDCConfigStore struct {
	path string
}

// NewOIDCConfigStore returns a store backed by path (<data>/oauth-config.json).
func NewOIDCConfigStore(path string) *OIDCConfigStore {
	return &OIDCConfigStore{path: path}
}

// Load reads and validates the config file. A missing file is reported as
// disabled (ok=false), not an error; a present-but-incomplete file is also
// reported as disabled (ok=false) with a nil error. Only an unreadable or
// unparsable file returns an error.
func (s *OIDCConfigStore) Load() (cfg *OIDCConfig, ok bool, err error) {
	var c OIDCConfig
	present, err := readJSON(s.path, &c)
	if err != nil {
		return nil, false, apierr.System("%v", err)
	}
	if !present || !c.complete() {
		return nil, false, nil
	}
	return &c, true, nil
}

// Enabled is a convenience boolean wrapper over Load.
func (s *OIDCConfigStore) Enabled() bool {
	_, ok, err := s.Load()
	return err == nil && ok
}

// Exists reports whether the backing file is present at all, independent of
// whether its contents are complete enough to enable OIDC.
func (s *OIDCConfigStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
