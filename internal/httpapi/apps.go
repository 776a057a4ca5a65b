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
	"net/http"
	"strconv"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/model"
)

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.List()
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	infos := make([]model.Info, len(apps))
	for i, a := range apps {
		infos[i] = a.ToInfo()
	}
	apierr.WriteJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.apps.Get(r.PathValue("name"))
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, app)
}

func (s *Server) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var app model.App
	if err := decodeJSON(r, &app); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if err := s.apps.Create(&app); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, &app)
}

type appUpdateRequest struct {
	Image         *string           `json:"image"`
	Git           *model.GitSource  `json:"git"`
	InternalPort  *int              `json:"internalPort"`
	Env           map[string]string `json:"env"`
	Volumes       []model.Volume    `json:"volumes"`
	RestartPolicy *model.RestartPolicy `json:"restartPolicy"`
	Domains       []string          `json:"domains"`
}

func (s *Server) handleUpdateApp(w http.ResponseWriter, r *http.Request) {
	var req appUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.WriteError(w, err)
		return
	}
	updated, err := s.apps.Update(r.PathValue("name"), func(a *model.App) error {
		if req.Image != nil {
			a.Source = model.Source{Image: *req.Image}
		}
		if req.Git != nil {
			a.Source = model.Source{Git: req.Git}
		}
		if req.InternalPort != nil {
			a.InternalPort = *req.InternalPort
		}
		if req.Env != nil {
			a.Env = req.Env
		}
		if req.Volumes != nil {
			a.Volumes = req.Volumes
		}
		if req.RestartPolicy != nil {
			a.RestartPolicy = *req.RestartPolicy
		}
		if req.Domains != nil {
			a.Domains = req.Domains
		}
		return a.Validate()
	})
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), r.PathValue("name")); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if err := s.edge.RefreshDynamicConfig(r.Context()); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDeployApp(w http.ResponseWriter, r *http.Request) {
	noCache := r.URL.Query().Get("noCache") == "true"
	app, err := s.engine.Deploy(r.Context(), r.PathValue("name"), noCache)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, app)
}

func (s *Server) handleStopApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.engine.Stop(r.Context(), r.PathValue("name"))
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, app)
}

func (s *Server) handleRestartApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.engine.Restart(r.Context(), r.PathValue("name"))
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, app)
}

func (s *Server) handleAppLogs(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	tail := 200
	if raw := r.URL.Query().Get("tail"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			tail = n
		}
	}
	if r.URL.Query().Get("follow") == "true" {
		s.streamLogs(w, r, name)
		return
	}
	out, err := s.engine.Logs(r.Context(), name, tail)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"logs": out})
}
