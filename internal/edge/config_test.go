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

package edge

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/plosson/siteio/internal/model"
)

func TestBuildStaticConfig_RendersACMEAndProviders(t *testing.T) {
	data, err := BuildStaticConfig("ops@example.com", "/data/dynamic.yaml", "siteio")
	if err != nil {
		t.Fatalf("BuildStaticConfig() = %v", err)
	}

	var cfg staticConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() = %v", err)
	}
	if cfg.CertificatesResolvers[CertResolverName].ACME.Email != "ops@example.com" {
		t.Errorf("ACME email = %q, want ops@example.com", cfg.CertificatesResolvers[CertResolverName].ACME.Email)
	}
	if cfg.Providers.File.Filename != "/data/dynamic.yaml" {
		t.Errorf("file provider filename = %q", cfg.Providers.File.Filename)
	}
	if cfg.Providers.Docker.Network != "siteio" {
		t.Errorf("docker provider network = %q, want siteio", cfg.Providers.Docker.Network)
	}
	redir := cfg.EntryPoints["web"].HTTP.Redirections.EntryPoint
	if redir.To != "websecure" || redir.Scheme != "https" {
		t.Errorf("web entrypoint redirect = %+v, want websecure/https", redir)
	}
	if addr := cfg.EntryPoints["traefik"].Address; addr != ":8080" {
		t.Errorf("admin entrypoint address = %q, want :8080 (loopback restriction comes from the published port binding, not the bind address)", addr)
	}
}

func TestBuildDynamicConfig_SiteWithOAuthGetsMiddlewareChain(t *testing.T) {
	sites := []*model.Site{
		{Subdomain: "blog", OAuth: &model.OAuthPolicy{AllowedDomain: "example.com"}},
		{Subdomain: "docs"},
	}
	data, err := BuildDynamicConfig(DynamicConfigInputs{
		OpDomain:         "example.com",
		Sites:            sites,
		ControlPlaneAddr: "host.docker.internal:3000",
		AuthCheckAddr:    "host.docker.internal:3000",
		OIDCEnabled:      true,
		SidecarAddr:      "oauth2-sidecar:4180",
		StaticServerAddr: "siteio-static:80",
	})
	if err != nil {
		t.Fatalf("BuildDynamicConfig() = %v", err)
	}

	var cfg dynamicConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() = %v", err)
	}

	blog, ok := cfg.HTTP.Routers["site-blog"]
	if !ok {
		t.Fatal("missing site-blog router")
	}
	if blog.Service != "nginx-service" {
		t.Errorf("site-blog service = %q, want nginx-service", blog.Service)
	}
	wantMiddlewares := []string{"oauth2-errors@file", "oauth2-auth@file", "siteio-auth@file"}
	if len(blog.Middlewares) != len(wantMiddlewares) {
		t.Fatalf("site-blog middlewares = %v, want %v", blog.Middlewares, wantMiddlewares)
	}
	for i, m := range wantMiddlewares {
		if blog.Middlewares[i] != m {
			t.Errorf("site-blog middlewares[%d] = %q, want %q", i, blog.Middlewares[i], m)
		}
	}

	docs, ok := cfg.HTTP.Routers["site-docs"]
	if !ok {
		t.Fatal("missing site-docs router")
	}
	if len(docs.Middlewares) != 0 {
		t.Errorf("site-docs (no policy) should carry no middlewares, got %v", docs.Middlewares)
	}

	callback, ok := cfg.HTTP.Routers["oauth2-callback"]
	if !ok {
		t.Fatal("missing oauth2-callback router")
	}
	if callback.Priority != 1000 {
		t.Errorf("oauth2-callback priority = %d, want 1000", callback.Priority)
	}
	if !strings.Contains(callback.Rule, "PathPrefix(`/oauth2/`)") {
		t.Errorf("oauth2-callback rule = %q, want it to match the oauth2 path prefix", callback.Rule)
	}
}

func TestBuildDynamicConfig_OIDCDisabled_NoOAuthMiddlewareOrCallback(t *testing.T) {
	sites := []*model.Site{{Subdomain: "blog", OAuth: &model.OAuthPolicy{AllowedDomain: "example.com"}}}
	data, err := BuildDynamicConfig(DynamicConfigInputs{
		OpDomain:         "example.com",
		Sites:            sites,
		ControlPlaneAddr: "host.docker.internal:3000",
		StaticServerAddr: "siteio-static:80",
	})
	if err != nil {
		t.Fatalf("BuildDynamicConfig() = %v", err)
	}

	var cfg dynamicConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() = %v", err)
	}
	if _, ok := cfg.HTTP.Routers["oauth2-callback"]; ok {
		t.Error("oauth2-callback router should not exist when OIDC is disabled")
	}
	blog := cfg.HTTP.Routers["site-blog"]
	if len(blog.Middlewares) != 0 {
		t.Errorf("blog middlewares with OIDC disabled = %v, want none", blog.Middlewares)
	}
}

func TestBuildDynamicConfig_MultiDomainSite_OredRule(t *testing.T) {
	sites := []*model.Site{{Subdomain: "blog", Domains: []string{"www.blog.com"}}}
	data, err := BuildDynamicConfig(DynamicConfigInputs{
		OpDomain:         "example.com",
		Sites:            sites,
		ControlPlaneAddr: "host.docker.internal:3000",
		StaticServerAddr: "siteio-static:80",
	})
	if err != nil {
		t.Fatalf("BuildDynamicConfig() = %v", err)
	}
	var cfg dynamicConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() = %v", err)
	}
	want := "Host(`blog.example.com`) || Host(`www.blog.com`)"
	if got := cfg.HTTP.Routers["site-blog"].Rule; got != want {
		t.Errorf("rule = %q, want %q", got, want)
	}
}

func TestJoinOr(t *testing.T) {
	if got, want := joinOr([]string{"a"}), "a"; got != want {
		t.Errorf("joinOr single = %q, want %q", got, want)
	}
	if got, want := joinOr([]string{"a", "b", "c"}), "a || b || c"; got != want {
		t.Errorf("joinOr multi = %q, want %q", got, want)
	}
}
