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

import "time"

// Site is the durable metadata record for a static file bundle. The bundle
// contents themselves live on disk under the Site Store's sites directory;
// this struct is what gets persisted as <data>/metadata/<sub>.json.
type Site struct {
	Subdomain  string       `json:"subdomain"`
	Size       int64        `json:"size"`
	DeployedAt time.Time    `json:"deployedAt"`
	Files      []string     `json:"files"`
	OAuth      *OAuthPolicy `json:"oauth,omitempty"`
	Domains    []string     `json:"domains,omitempty"`
}

// HistoryEntry is the small JSON sidecar stored next to each retained
// version directory under <data>/history/<sub>/vK.json.
type HistoryEntry struct {
	Version    int       `json:"version"`
	DeployedAt time.Time `json:"deployedAt"`
	Size       int64     `json:"size"`
}

// MaxHistoryVersions is the retention cap on retained snapshots.
const MaxHistoryVersions = 10

// StaticServerMountPath is the container-side mount path recorded on each
// site's App mirror volume (nginx's docroot convention). The shared
// static-file container itself mounts <data>/sites at /sites and serves
// each site from /sites/<subdomain>.
const StaticServerMountPath = "/usr/share/nginx/html"

// StaticServerImage is the shared container image that serves every
// deployed site.
const StaticServerImage = "nginx:alpine"

// StaticServerContainerName is the on-host name of the single shared
// static-file container.
const StaticServerContainerName = "siteio-static"
