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
	"io"
	"net/http"
	"strings"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/model"
)

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.sites.ListSites()
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, sites)
}

func (s *Server) handleDeploySite(w http.ResponseWriter, r *http.Request) {
	sub := r.PathValue("sub")
	if err := model.ValidateName("site", sub); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/zip" {
		apierr.WriteError(w, apierr.User("Content-Type must be application/zip, got %q", ct))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		apierr.WriteError(w, apierr.User("upload exceeds maximum size or was truncated: %v", err))
		return
	}

	emailsCSV := r.Header.Get("X-Site-OAuth-Emails")
	domain := r.Header.Get("X-Site-OAuth-Domain")
	var oauth *model.OAuthPolicy
	if emailsCSV != "" || domain != "" {
		if !s.oidc.Enabled() {
			apierr.WriteError(w, apierr.User("OIDC is not configured; cannot set an OAuth policy"))
			return
		}
		oauth = model.NewOAuthPolicy(splitCSV(emailsCSV), domain, nil)
	}

	site, err := s.sites.ExtractAndStore(sub, data, oauth)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	if _, err := s.apps.Get(sub); apierr.IsNotFound(err) {
		if _, err := s.apps.CreateStaticSiteApp(sub, s.sites.SiteDir(sub), oauth); err != nil {
			apierr.WriteError(w, err)
			return
		}
	} else if err == nil {
		s.apps.Update(sub, func(a *model.App) error {
			a.OAuth = oauth
			return nil
		})
	}

	if err := s.edge.RefreshDynamicConfig(r.Context()); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, site)
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	sub := r.PathValue("sub")
	if err := s.sites.DeleteSite(sub); err != nil {
		apierr.WriteError(w, err)
		return
	}
	s.apps.Delete(sub) // best-effort: the mirrored app may already be gone

	if err := s.edge.RefreshDynamicConfig(r.Context()); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDownloadSite(w http.ResponseWriter, r *http.Request) {
	sub := r.PathValue("sub")
	data, err := s.sites.ZipSite(sub)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+sub+".zip\"")
	w.Write(data)
}

type siteAuthRequest struct {
	AllowedEmails []string `json:"allowedEmails"`
	AllowedDomain *string  `json:"allowedDomain"`
	AllowedGroups []string `json:"allowedGroups"`
	Remove        bool     `json:"remove"`
}

func (s *Server) handleSiteAuth(w http.ResponseWriter, r *http.Request) {
	sub := r.PathValue("sub")
	var req siteAuthRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if !s.oidc.Enabled() {
		apierr.WriteError(w, apierr.User("OIDC is not configured"))
		return
	}

	existing, err := s.sites.GetMetadata(sub)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	merged := model.MergeOAuthPolicy(existing.OAuth, req.AllowedEmails, req.AllowedGroups, req.AllowedDomain, req.Remove)

	if _, err := s.sites.UpdateOAuth(sub, merged); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if _, err := s.apps.Update(sub, func(a *model.App) error {
		a.OAuth = merged
		return nil
	}); err != nil {
		apierr.WriteError(w, err)
		return
	}

	if err := s.edge.RefreshDynamicConfig(r.Context()); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, nil)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
