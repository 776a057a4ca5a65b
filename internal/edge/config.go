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
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/plosson/siteio/internal/model"
)

// staticConfig is the proxy's top-level static configuration, written once
// on start.
type staticConfig struct {
	EntryPoints           map[string]entryPoint          `yaml:"entryPoints"`
	Providers             providers                      `yaml:"providers"`
	CertificatesResolvers map[string]certificateResolver `yaml:"certificatesResolvers"`
	API                   apiConfig                      `yaml:"api"`
}

type entryPoint struct {
	Address string          `yaml:"address"`
	HTTP    *entryPointHTTP `yaml:"http,omitempty"`
}

type entryPointHTTP struct {
	Redirections *redirections `yaml:"redirections,omitempty"`
}

type redirections struct {
	EntryPoint redirectTarget `yaml:"entryPoint"`
}

type redirectTarget struct {
	To     string `yaml:"to"`
	Scheme string `yaml:"scheme"`
}

type providers struct {
	File   *fileProvider   `yaml:"file,omitempty"`
	Docker *dockerProvider `yaml:"docker,omitempty"`
}

type fileProvider struct {
	Filename string `yaml:"filename"`
	Watch    bool   `yaml:"watch"`
}

type dockerProvider struct {
	ExposedByDefault bool   `yaml:"exposedByDefault"`
	Network          string `yaml:"network"`
}

type certificateResolver struct {
	ACME acmeConfig `yaml:"acme"`
}

type acmeConfig struct {
	Email         string         `yaml:"email"`
	Storage       string         `yaml:"storage"`
	HTTPChallenge *httpChallenge `yaml:"httpChallenge,omitempty"`
}

type httpChallenge struct {
	EntryPoint string `yaml:"entryPoint"`
}

type apiConfig struct {
	Dashboard bool `yaml:"dashboard"`
	Insecure  bool `yaml:"insecure"`
}

// CertResolverName is referenced by both the static config and every
// container's traefik.http.routers.*.tls.certresolver label.
const CertResolverName = "letsencrypt"

// BuildStaticConfig renders the one-time proxy bootstrap config: web/
// websecure entrypoints (web redirects to websecure), the file and docker
// providers, the ACME resolver, and an admin API entrypoint. The admin
// entrypoint is published to the host's loopback interface only, by the
// caller's port binding rather than by its bind address here.
func BuildStaticConfig(email, dynamicFilePath, network string) ([]byte, error) {
	cfg := staticConfig{
		EntryPoints: map[string]entryPoint{
			"web": {
				Address: ":80",
				HTTP: &entryPointHTTP{Redirections: &redirections{
					EntryPoint: redirectTarget{To: "websecure", Scheme: "https"},
				}},
			},
			"websecure": {Address: ":443"},
			"traefik":   {Address: ":8080"},
		},
		Providers: providers{
			File:   &fileProvider{Filename: dynamicFilePath, Watch: true},
			Docker: &dockerProvider{ExposedByDefault: false, Network: network},
		},
		CertificatesResolvers: map[string]certificateResolver{
			CertResolverName: {ACME: acmeConfig{
				Email:         email,
				Storage:       "/certs/acme.json",
				HTTPChallenge: &httpChallenge{EntryPoint: "web"},
			}},
		},
		API: apiConfig{Dashboard: true, Insecure: true},
	}
	return yaml.Marshal(cfg)
}

// dynamicConfig is rewritten after every site or app mutation that affects
// file-provider routing (container-sourced apps are discovered separately
// through runtime labels and never appear here).
type dynamicConfig struct {
	HTTP httpSection `yaml:"http"`
}

type httpSection struct {
	Routers     map[string]routerConfig     `yaml:"routers"`
	Services    map[string]serviceConfig    `yaml:"services"`
	Middlewares map[string]middlewareConfig `yaml:"middlewares,omitempty"`
}

type routerConfig struct {
	Rule        string         `yaml:"rule"`
	Service     string         `yaml:"service"`
	EntryPoints []string       `yaml:"entryPoints,omitempty"`
	Middlewares []string       `yaml:"middlewares,omitempty"`
	Priority    int            `yaml:"priority,omitempty"`
	TLS         *routerTLSSpec `yaml:"tls,omitempty"`
}

type routerTLSSpec struct {
	CertResolver string `yaml:"certResolver,omitempty"`
}

type serviceConfig struct {
	LoadBalancer loadBalancerConfig `yaml:"loadBalancer"`
}

type loadBalancerConfig struct {
	Servers []serverConfig `yaml:"servers"`
}

type serverConfig struct {
	URL string `yaml:"url"`
}

type middlewareConfig struct {
	ForwardAuth *forwardAuthConfig `yaml:"forwardAuth,omitempty"`
	Errors      *errorsConfig      `yaml:"errors,omitempty"`
}

type forwardAuthConfig struct {
	Address             string   `yaml:"address"`
	AuthResponseHeaders []string `yaml:"authResponseHeaders,omitempty"`
	TrustForwardHeader  bool     `yaml:"trustForwardHeader,omitempty"`
}

type errorsConfig struct {
	Status  []string `yaml:"status"`
	Service string   `yaml:"service"`
	Query   string   `yaml:"query"`
}

// Middleware names referenced both here and from container labels
// (runtime.BuildTraefikLabels), always suffixed "@file" at the label
// call site since they live in this file-provider document.
const (
	middlewareOAuthErrors = "oauth2-errors"
	middlewareOAuthAuth   = "oauth2-auth"
	middlewareSiteioAuth  = "siteio-auth"
)

// DynamicConfigInputs carries everything BuildDynamicConfig needs to
// render a complete snapshot of file-provider routing.
type DynamicConfigInputs struct {
	OpDomain           string
	Sites              []*model.Site
	ControlPlaneAddr   string // host:port reachable from inside the proxy's network
	AuthCheckAddr      string // same, for the forward-auth to /auth/check
	OIDCEnabled        bool
	SidecarAddr        string // host:port of the oauth2 sidecar, only meaningful if OIDCEnabled
	StaticServerAddr   string // host:port of the shared static-file container
}

// BuildDynamicConfig renders the full file-provider document: the control
// plane's own router, one router per site (protected sites carry the
// [oauth2-errors, oauth2-auth, siteio-auth] middleware chain), the
// catch-all OAuth callback router, and the middleware/service definitions
// they reference.
func BuildDynamicConfig(in DynamicConfigInputs) ([]byte, error) {
	cfg := dynamicConfig{HTTP: httpSection{
		Routers:     map[string]routerConfig{},
		Services:    map[string]serviceConfig{},
		Middlewares: map[string]middlewareConfig{},
	}}

	cfg.HTTP.Routers["api"] = routerConfig{
		Rule:        fmt.Sprintf("Host(`api.%s`)", in.OpDomain),
		Service:     "control-plane",
		EntryPoints: []string{"websecure"},
		TLS:         &routerTLSSpec{CertResolver: CertResolverName},
	}
	cfg.HTTP.Services["control-plane"] = serviceConfig{LoadBalancer: loadBalancerConfig{
		Servers: []serverConfig{{URL: "http://" + in.ControlPlaneAddr}},
	}}

	if in.OIDCEnabled {
		cfg.HTTP.Services["nginx-service"] = serviceConfig{LoadBalancer: loadBalancerConfig{
			Servers: []serverConfig{{URL: "http://" + in.StaticServerAddr}},
		}}
		cfg.HTTP.Services["sidecar-service"] = serviceConfig{LoadBalancer: loadBalancerConfig{
			Servers: []serverConfig{{URL: "http://" + in.SidecarAddr}},
		}}
		cfg.HTTP.Middlewares[middlewareOAuthErrors] = middlewareConfig{Errors: &errorsConfig{
			Status:  []string{"401"},
			Service: "sidecar-service",
			Query:   "/oauth2/sign_in?rd={url}",
		}}
		cfg.HTTP.Middlewares[middlewareOAuthAuth] = middlewareConfig{ForwardAuth: &forwardAuthConfig{
			Address:             "http://" + in.SidecarAddr + "/oauth2/auth",
			AuthResponseHeaders: []string{"X-Auth-Request-User", "X-Auth-Request-Email"},
			TrustForwardHeader:  true,
		}}
		cfg.HTTP.Middlewares[middlewareSiteioAuth] = middlewareConfig{ForwardAuth: &forwardAuthConfig{
			Address:             "http://" + in.AuthCheckAddr + "/auth/check",
			AuthResponseHeaders: []string{"X-Auth-Request-Email", "Host"},
			TrustForwardHeader:  true,
		}}

		// Highest-priority router: OAuth callback paths must reach the
		// sidecar on every subdomain regardless of what else matches.
		cfg.HTTP.Routers["oauth2-callback"] = routerConfig{
			Rule:        fmt.Sprintf("HostRegexp(`{sub:.+}.%s`) && PathPrefix(`/oauth2/`)", in.OpDomain),
			Service:     "sidecar-service",
			EntryPoints: []string{"websecure"},
			Priority:    1000,
			TLS:         &routerTLSSpec{CertResolver: CertResolverName},
		}
	} else {
		cfg.HTTP.Services["nginx-service"] = serviceConfig{LoadBalancer: loadBalancerConfig{
			Servers: []serverConfig{{URL: "http://" + in.StaticServerAddr}},
		}}
	}

	subs := make([]string, 0, len(in.Sites))
	bySub := map[string]*model.Site{}
	for _, s := range in.Sites {
		subs = append(subs, s.Subdomain)
		bySub[s.Subdomain] = s
	}
	sort.Strings(subs)

	for _, sub := range subs {
		site := bySub[sub]
		hostClauses := []string{fmt.Sprintf("Host(`%s.%s`)", sub, in.OpDomain)}
		for _, d := range site.Domains {
			hostClauses = append(hostClauses, fmt.Sprintf("Host(`%s`)", d))
		}
		rc := routerConfig{
			Service:     "nginx-service",
			EntryPoints: []string{"websecure"},
			TLS:         &routerTLSSpec{CertResolver: CertResolverName},
		}
		rc.Rule = joinOr(hostClauses)
		if site.OAuth != nil && in.OIDCEnabled {
			rc.Middlewares = []string{middlewareOAuthErrors + "@file", middlewareOAuthAuth + "@file", middlewareSiteioAuth + "@file"}
		}
		cfg.HTTP.Routers["site-"+sub] = rc
	}

	return yaml.Marshal(cfg)
}

func joinOr(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " || " + c
	}
	return out
}
