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

// Package httpapi is the authenticated HTTP control plane: routes, the
// shared-key gate, the JSON envelope, and request validation, multiplexing
// every other component behind one mux.
package httpapi

import (
	"net/http"

	"github.com/plosson/siteio/internal/authz"
	"github.com/plosson/siteio/internal/deploy"
	"github.com/plosson/siteio/internal/edge"
	"github.com/plosson/siteio/internal/store"
)

// Server holds every collaborator the control plane's handlers call into.
type Server struct {
	apps     *store.AppStore
	sites    *store.SiteStore
	groups   *store.GroupStore
	oidc     *store.OIDCConfigStore
	engine   *deploy.Engine
	edge     *edge.Controller
	authz    *authz.Service
	opDomain string
	apiKey   string
	maxUpload int64

	mux *http.ServeMux
}

// Config bundles Server's construction parameters.
type Config struct {
	Apps           *store.AppStore
	Sites          *store.SiteStore
	Groups         *store.GroupStore
	OIDC           *store.OIDCConfigStore
	Engine         *deploy.Engine
	Edge           *edge.Controller
	Authz          *authz.Service
	OperatorDomain string
	APIKey         string
	MaxUploadSize  int64
}

// New wires every handler into a ready-to-serve mux.
func New(cfg Config) *Server {
	s := &Server{
		apps: cfg.Apps, sites: cfg.Sites, groups: cfg.Groups, oidc: cfg.OIDC,
		engine: cfg.Engine, edge: cfg.Edge, authz: cfg.Authz,
		opDomain: cfg.OperatorDomain, apiKey: cfg.APIKey, maxUpload: cfg.MaxUploadSize,
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withCorrelationID(s.gate(s.mux)).ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /oauth/status", s.handleOAuthStatus)
	s.mux.HandleFunc("GET /auth/check", s.handleAuthCheck)

	s.mux.HandleFunc("GET /sites", s.handleListSites)
	s.mux.HandleFunc("POST /sites/{sub}", s.handleDeploySite)
	s.mux.HandleFunc("DELETE /sites/{sub}", s.handleDeleteSite)
	s.mux.HandleFunc("GET /sites/{sub}/download", s.handleDownloadSite)
	s.mux.HandleFunc("PATCH /sites/{sub}/auth", s.handleSiteAuth)

	s.mux.HandleFunc("GET /apps", s.handleListApps)
	s.mux.HandleFunc("POST /apps", s.handleCreateApp)
	s.mux.HandleFunc("GET /apps/{name}", s.handleGetApp)
	s.mux.HandleFunc("PATCH /apps/{name}", s.handleUpdateApp)
	s.mux.HandleFunc("DELETE /apps/{name}", s.handleDeleteApp)
	s.mux.HandleFunc("POST /apps/{name}/deploy", s.handleDeployApp)
	s.mux.HandleFunc("POST /apps/{name}/stop", s.handleStopApp)
	s.mux.HandleFunc("POST /apps/{name}/restart", s.handleRestartApp)
	s.mux.HandleFunc("GET /apps/{name}/logs", s.handleAppLogs)

	s.mux.HandleFunc("GET /groups", s.handleListGroups)
	s.mux.HandleFunc("POST /groups", s.handleCreateGroup)
	s.mux.HandleFunc("GET /groups/{name}", s.handleGetGroup)
	s.mux.HandleFunc("DELETE /groups/{name}", s.handleDeleteGroup)
	s.mux.HandleFunc("POST /groups/{name}/emails", s.handleAddGroupEmails)
	s.mux.HandleFunc("DELETE /groups/{name}/emails", s.handleRemoveGroupEmails)
}
