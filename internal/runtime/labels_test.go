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

package runtime

import "testing"

func TestBuildTraefikLabels_SingleDomainNoAuth(t *testing.T) {
	labels := BuildTraefikLabels("web", []string{"web.example.com"}, 8080, false)

	if labels["traefik.enable"] != "true" {
		t.Errorf("traefik.enable = %q, want true", labels["traefik.enable"])
	}
	if got, want := labels["traefik.http.routers.siteio-web.rule"], "Host(`web.example.com`)"; got != want {
		t.Errorf("rule = %q, want %q", got, want)
	}
	if got := labels["traefik.http.services.siteio-web.loadbalancer.server.port"]; got != "8080" {
		t.Errorf("port label = %q, want 8080", got)
	}
	if _, ok := labels["traefik.http.routers.siteio-web.middlewares"]; ok {
		t.Error("middlewares label should be absent when requireAuth is false")
	}
}

func TestBuildTraefikLabels_MultipleDomainsOred(t *testing.T) {
	labels := BuildTraefikLabels("web", []string{"web.example.com", "alt.example.com"}, 80, false)
	want := "Host(`web.example.com`) || Host(`alt.example.com`)"
	if got := labels["traefik.http.routers.siteio-web.rule"]; got != want {
		t.Errorf("rule = %q, want %q", got, want)
	}
}

func TestBuildTraefikLabels_RequireAuthAddsMiddlewareChain(t *testing.T) {
	labels := BuildTraefikLabels("web", []string{"web.example.com"}, 80, true)
	want := "oauth2-errors@file,oauth2-auth@file,siteio-auth@file"
	if got := labels["traefik.http.routers.siteio-web.middlewares"]; got != want {
		t.Errorf("middlewares = %q, want %q", got, want)
	}
}
