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

package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/plosson/siteio/internal/apierr"
)

// AppType distinguishes a regular container workload from the App record
// mirroring a static Site into the shared static-file server.
type AppType string

const (
	AppTypeContainer AppType = "container"
	AppTypeStatic    AppType = "static"
)

// RestartPolicy mirrors the container runtime's restart policy values.
type RestartPolicy string

const (
	RestartAlways        RestartPolicy = "always"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartNo            RestartPolicy = "no"
)

func (r RestartPolicy) valid() bool {
	switch r {
	case RestartAlways, RestartUnlessStopped, RestartOnFailure, RestartNo, "":
		return true
	}
	return false
}

// Status is the observed lifecycle state of an App.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// GitSource describes a git-sourced app's build inputs.
type GitSource struct {
	RepoURL    string `json:"repoUrl"`
	Branch     string `json:"branch"`
	Dockerfile string `json:"dockerfile"`
	Context    string `json:"context,omitempty"`
}

func (g *GitSource) normalize() {
	if g.Branch == "" {
		g.Branch = "main"
	}
	if g.Dockerfile == "" {
		g.Dockerfile = "Dockerfile"
	}
}

// Source is the sum type backing App.Source: exactly one of Image or Git is
// ever populated. The wire representation keeps the original optional-pair
// shape ({image?, git?}) via custom (Un)MarshalJSON on App.
type Source struct {
	Image string
	Git   *GitSource
}

func (s Source) validate() error {
	hasImage := s.Image != ""
	hasGit := s.Git != nil
	switch {
	case hasImage == hasGit:
		return apierr.User("app must set exactly one of image or git")
	case hasGit:
		if s.Git.RepoURL == "" {
			return apierr.User("git source requires repoUrl")
		}
	}
	return nil
}

// Volume is one ordered host<->container mount.
type Volume struct {
	HostName  string `json:"hostName"`
	MountPath string `json:"mountPath"`
	ReadOnly  bool   `json:"readonly,omitempty"`
}

// IsAbsoluteHostPath reports whether HostName names a raw host path rather
// than a per-app managed directory name.
func (v Volume) IsAbsoluteHostPath() bool {
	return strings.HasPrefix(v.HostName, "/")
}

// App is the durable record of a container workload.
type App struct {
	Name          string            `json:"name"`
	Source        Source            `json:"-"`
	Type          AppType           `json:"type"`
	InternalPort  int               `json:"internalPort"`
	Env           map[string]string `json:"env,omitempty"`
	Volumes       []Volume          `json:"volumes,omitempty"`
	RestartPolicy RestartPolicy     `json:"restartPolicy,omitempty"`
	Domains       []string          `json:"domains,omitempty"`
	OAuth         *OAuthPolicy      `json:"oauth,omitempty"`

	Status      Status     `json:"status"`
	ContainerID string     `json:"containerId,omitempty"`
	DeployedAt  *time.Time `json:"deployedAt,omitempty"`
	CommitHash  string     `json:"commitHash,omitempty"`
	LastBuildAt *time.Time `json:"lastBuildAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// appWire is the JSON wire shape, keeping the optional-pair source
// representation while App itself carries the Source sum type internally.
type appWire struct {
	Name          string            `json:"name"`
	Image         string            `json:"image,omitempty"`
	Git           *GitSource        `json:"git,omitempty"`
	Type          AppType           `json:"type"`
	InternalPort  int               `json:"internalPort"`
	Env           map[string]string `json:"env,omitempty"`
	Volumes       []Volume          `json:"volumes,omitempty"`
	RestartPolicy RestartPolicy     `json:"restartPolicy,omitempty"`
	Domains       []string          `json:"domains,omitempty"`
	OAuth         *OAuthPolicy      `json:"oauth,omitempty"`
	Status        Status            `json:"status"`
	ContainerID   string            `json:"containerId,omitempty"`
	DeployedAt    *time.Time        `json:"deployedAt,omitempty"`
	CommitHash    string            `json:"commitHash,omitempty"`
	LastBuildAt   *time.Time        `json:"lastBuildAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func (a App) MarshalJSON() ([]byte, error) {
	w := appWire{
		Name: a.Name, Image: a.Source.Image, Git: a.Source.Git, Type: a.Type,
		InternalPort: a.InternalPort, Env: a.Env, Volumes: a.Volumes,
		RestartPolicy: a.RestartPolicy, Domains: a.Domains, OAuth: a.OAuth,
		Status: a.Status, ContainerID: a.ContainerID, DeployedAt: a.DeployedAt,
		CommitHash: a.CommitHash, LastBuildAt: a.LastBuildAt,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
	return json.Marshal(w)
}

func (a *App) UnmarshalJSON(b []byte) error {
	var w appWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*a = App{
		Name: w.Name, Source: Source{Image: w.Image, Git: w.Git}, Type: w.Type,
		InternalPort: w.InternalPort, Env: w.Env, Volumes: w.Volumes,
		RestartPolicy: w.RestartPolicy, Domains: w.Domains, OAuth: w.OAuth,
		Status: w.Status, ContainerID: w.ContainerID, DeployedAt: w.DeployedAt,
		CommitHash: w.CommitHash, LastBuildAt: w.LastBuildAt,
		CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt,
	}
	return nil
}

// Validate checks the invariants required at create time: valid name,
// exactly one source, a sane port, and a known restart policy.
func (a *App) Validate() error {
	if err := ValidateName("app", a.Name); err != nil {
		return err
	}
	if err := a.Source.validate(); err != nil {
		return err
	}
	if a.InternalPort <= 0 || a.InternalPort > 65535 {
		return apierr.User("internalPort must be between 1 and 65535")
	}
	if !a.RestartPolicy.valid() {
		return apierr.User("invalid restartPolicy %q", a.RestartPolicy)
	}
	if a.Type == "" {
		a.Type = AppTypeContainer
	}
	if a.Source.Git != nil {
		a.Source.Git.normalize()
	}
	return nil
}

// EffectiveDomains returns Domains, defaulting to "<name>.<opDomain>" when
// empty.
func (a *App) EffectiveDomains(opDomain string) []string {
	if len(a.Domains) > 0 {
		return a.Domains
	}
	return []string{fmt.Sprintf("%s.%s", a.Name, opDomain)}
}

// Info is the reduced view returned by list endpoints: volumes and env are
// stripped.
type Info struct {
	Name          string        `json:"name"`
	Image         string        `json:"image,omitempty"`
	Git           *GitSource    `json:"git,omitempty"`
	Type          AppType       `json:"type"`
	InternalPort  int           `json:"internalPort"`
	RestartPolicy RestartPolicy `json:"restartPolicy,omitempty"`
	Domains       []string      `json:"domains,omitempty"`
	OAuth         *OAuthPolicy  `json:"oauth,omitempty"`
	Status        Status        `json:"status"`
	ContainerID   string        `json:"containerId,omitempty"`
	DeployedAt    *time.Time    `json:"deployedAt,omitempty"`
	CommitHash    string        `json:"commitHash,omitempty"`
	LastBuildAt   *time.Time    `json:"lastBuildAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// ToInfo strips volumes/env for list views.
func (a *App) ToInfo() Info {
	return Info{
		Name: a.Name, Image: a.Source.Image, Git: a.Source.Git, Type: a.Type,
		InternalPort: a.InternalPort, RestartPolicy: a.RestartPolicy,
		Domains: a.Domains, OAuth: a.OAuth, Status: a.Status,
		ContainerID: a.ContainerID, DeployedAt: a.DeployedAt,
		CommitHash: a.CommitHash, LastBuildAt: a.LastBuildAt,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

// ImageTag returns the derived local tag for a git-sourced app.
func ImageTag(appName string) string {
	return fmt.Sprintf("siteio-%s:latest", appName)
}

// ContainerName returns the on-host container name for appName.
func ContainerName(appName string) string {
	return "siteio-" + appName
}
