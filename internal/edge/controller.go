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

// Package edge generates and maintains the reverse-proxy configuration and
// supervises the proxy, the shared static-file server, and the optional
// OIDC sidecar.
package edge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/model"
	"github.com/plosson/siteio/internal/runtime"
	"github.com/plosson/siteio/internal/store"
)

const (
	proxyContainerName   = "siteio-proxy"
	staticContainerName  = model.StaticServerContainerName
	sidecarContainerName = "siteio-oauth2"

	proxyImage   = "traefik:v3.1"
	sidecarImage = "quay.io/oauth2-proxy/oauth2-proxy:v7.6.0"

	readinessPollInterval = 500 * time.Millisecond
	readinessTimeout      = 30 * time.Second
)

// Controller owns the three managed infrastructure containers and every
// config file under <data>/traefik, <data>/nginx, and <data>/certs.
type Controller struct {
	rt         *runtime.Adapter
	sites      *store.SiteStore
	apps       *store.AppStore
	oidc       *store.OIDCConfigStore
	dataDir    string
	opDomain   string
	email      string
	network    string
	controlAPI string // host:port of this process's own API, reachable from the proxy container
	httpPort   int    // host port published for the web (ACME/redirect) entrypoint
	httpsPort  int    // host port published for the websecure entrypoint
	adminPort  int    // host port (loopback-only) published for the proxy's admin API

	mu sync.Mutex
}

// Config bundles Controller's construction parameters.
type Config struct {
	Runtime        *runtime.Adapter
	Sites          *store.SiteStore
	Apps           *store.AppStore
	OIDC           *store.OIDCConfigStore
	DataDir        string
	OperatorDomain string
	ACMEEmail      string
	Network        string
	ControlAPIAddr string
	HTTPPort       int
	HTTPSPort      int
	AdminPort      int
}

// New returns a controller ready to Start.
func New(cfg Config) *Controller {
	httpPort, httpsPort, adminPort := cfg.HTTPPort, cfg.HTTPSPort, cfg.AdminPort
	if httpPort == 0 {
		httpPort = 80
	}
	if httpsPort == 0 {
		httpsPort = 443
	}
	if adminPort == 0 {
		adminPort = 8080
	}
	return &Controller{
		rt: cfg.Runtime, sites: cfg.Sites, apps: cfg.Apps, oidc: cfg.OIDC,
		dataDir: cfg.DataDir, opDomain: cfg.OperatorDomain, email: cfg.ACMEEmail,
		network: cfg.Network, controlAPI: cfg.ControlAPIAddr,
		httpPort: httpPort, httpsPort: httpsPort, adminPort: adminPort,
	}
}

func (c *Controller) traefikDir() string  { return filepath.Join(c.dataDir, "traefik") }
func (c *Controller) certsDir() string    { return filepath.Join(c.dataDir, "certs") }
func (c *Controller) nginxDir() string    { return filepath.Join(c.dataDir, "nginx") }
func (c *Controller) staticConfigPath() string  { return filepath.Join(c.traefikDir(), "traefik.yml") }
func (c *Controller) dynamicConfigPath() string { return filepath.Join(c.traefikDir(), "dynamic.yml") }
func (c *Controller) acmeStorePath() string     { return filepath.Join(c.certsDir(), "acme.json") }
func (c *Controller) nginxConfigPath() string   { return filepath.Join(c.nginxDir(), "default.conf") }

// Start writes the static config, ensures the network, clears any stale
// managed containers, then launches the proxy, the static server, and (if
// configured) the OIDC sidecar, verifying each reaches State.Running.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.prepareFilesystem(); err != nil {
		return err
	}
	if err := c.RefreshDynamicConfig(ctx); err != nil {
		return err
	}
	if err := c.rt.EnsureNetwork(ctx, c.network); err != nil {
		return err
	}

	for _, name := range []string{proxyContainerName, staticContainerName, sidecarContainerName} {
		if exists, _ := c.rt.ContainerExists(ctx, name); exists {
			if err := c.rt.Remove(ctx, name); err != nil {
				return err
			}
		}
	}

	if err := c.launchProxy(ctx); err != nil {
		return err
	}
	if err := c.launchStaticServer(ctx); err != nil {
		return err
	}
	if _, ok, _ := c.oidc.Load(); ok {
		if err := c.launchSidecar(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops the three managed containers in reverse start order.
func (c *Controller) Stop(ctx context.Context) error {
	for _, name := range []string{sidecarContainerName, staticContainerName, proxyContainerName} {
		if exists, _ := c.rt.ContainerExists(ctx, name); exists {
			if err := c.rt.Stop(ctx, name); err != nil {
				fmt.Printf("edge: best-effort stop of %s failed: %v\n", name, err)
			}
		}
	}
	return nil
}

func (c *Controller) prepareFilesystem() error {
	for _, dir := range []string{c.traefikDir(), c.certsDir(), c.nginxDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apierr.System("failed to create %s: %v", dir, err)
		}
	}
	if _, err := os.Stat(c.acmeStorePath()); os.IsNotExist(err) {
		if err := os.WriteFile(c.acmeStorePath(), nil, 0o600); err != nil {
			return apierr.System("failed to create acme store: %v", err)
		}
	}

	static, err := BuildStaticConfig(c.email, "/etc/traefik/dynamic.yml", c.network)
	if err != nil {
		return apierr.System("failed to render static proxy config: %v", err)
	}
	if err := os.WriteFile(c.staticConfigPath(), static, 0o644); err != nil {
		return apierr.System("failed to write static proxy config: %v", err)
	}

	if err := os.WriteFile(c.nginxConfigPath(), []byte(buildNginxConfig()), 0o644); err != nil {
		return apierr.System("failed to write nginx config: %v", err)
	}
	return nil
}

// RefreshDynamicConfig rewrites the file-provider document from a
// consistent snapshot of the current site list, serialized against
// concurrent refreshes by c.mu.
func (c *Controller) RefreshDynamicConfig(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sites, err := c.sites.ListSites()
	if err != nil {
		return err
	}
	_, oidcEnabled, err := c.oidc.Load()
	if err != nil {
		return err
	}

	data, err := BuildDynamicConfig(DynamicConfigInputs{
		OpDomain:         c.opDomain,
		Sites:            sites,
		ControlPlaneAddr: c.controlAPI,
		AuthCheckAddr:    c.controlAPI,
		OIDCEnabled:      oidcEnabled,
		SidecarAddr:      sidecarContainerName + ":4180",
		StaticServerAddr: staticContainerName + ":80",
	})
	if err != nil {
		return apierr.System("failed to render dynamic proxy config: %v", err)
	}

	tmp := c.dynamicConfigPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierr.System("failed to write dynamic proxy config: %v", err)
	}
	if err := os.Rename(tmp, c.dynamicConfigPath()); err != nil {
		return apierr.System("failed to publish dynamic proxy config: %v", err)
	}
	return nil
}

func (c *Controller) launchProxy(ctx context.Context) error {
	_, err := c.rt.Run(ctx, runtime.RunConfig{
		Name: proxyContainerName, Image: proxyImage, App: "proxy",
		Network: c.network, RestartPolicy: "unless-stopped",
		Volumes: []runtime.VolumeMount{
			{HostName: c.staticConfigPath(), MountPath: "/etc/traefik/traefik.yml", ReadOnly: true},
			{HostName: c.dynamicConfigPath(), MountPath: "/etc/traefik/dynamic.yml", ReadOnly: true},
			{HostName: c.acmeStorePath(), MountPath: "/certs/acme.json"},
			{HostName: "/var/run/docker.sock", MountPath: "/var/run/docker.sock", ReadOnly: true},
		},
		Ports: []runtime.PortBinding{
			{HostPort: c.httpPort, ContainerPort: 80},
			{HostPort: c.httpsPort, ContainerPort: 443},
			{HostIP: "127.0.0.1", HostPort: c.adminPort, ContainerPort: 8080},
		},
	})
	if err != nil {
		return err
	}
	return c.awaitRunning(ctx, proxyContainerName)
}

func (c *Controller) launchStaticServer(ctx context.Context) error {
	_, err := c.rt.Run(ctx, runtime.RunConfig{
		Name: staticContainerName, Image: model.StaticServerImage, App: "static",
		Network: c.network, RestartPolicy: "unless-stopped",
		Volumes: []runtime.VolumeMount{
			{HostName: c.nginxConfigPath(), MountPath: "/etc/nginx/conf.d/default.conf", ReadOnly: true},
			{HostName: filepath.Join(c.dataDir, "sites"), MountPath: "/sites", ReadOnly: true},
		},
	})
	if err != nil {
		return err
	}
	return c.awaitRunning(ctx, staticContainerName)
}

func (c *Controller) launchSidecar(ctx context.Context) error {
	cfg, ok, err := c.oidc.Load()
	if err != nil {
		return err
	}
	if !ok {
		return apierr.User("OIDC is not configured")
	}

	env := map[string]string{
		"OAUTH2_PROXY_PROVIDER":             "oidc",
		"OAUTH2_PROXY_OIDC_ISSUER_URL":      cfg.IssuerURL,
		"OAUTH2_PROXY_CLIENT_ID":            cfg.ClientID,
		"OAUTH2_PROXY_CLIENT_SECRET":        cfg.ClientSecret,
		"OAUTH2_PROXY_COOKIE_SECRET":        cfg.CookieSecret,
		"OAUTH2_PROXY_COOKIE_DOMAINS":       "." + c.opDomain,
		"OAUTH2_PROXY_WHITELIST_DOMAINS":    "." + c.opDomain,
		"OAUTH2_PROXY_SET_XAUTHREQUEST":     "true",
		"OAUTH2_PROXY_REVERSE_PROXY":        "true",
		"OAUTH2_PROXY_UPSTREAMS":            "http://" + c.controlAPI,
		"OAUTH2_PROXY_HTTP_ADDRESS":         "0.0.0.0:4180",
		"OAUTH2_PROXY_EMAIL_DOMAINS":        "*",
	}
	_, err = c.rt.Run(ctx, runtime.RunConfig{
		Name: sidecarContainerName, Image: sidecarImage, App: "oauth2",
		Network: c.network, RestartPolicy: "unless-stopped", Env: env,
	})
	if err != nil {
		return err
	}
	return c.awaitRunning(ctx, sidecarContainerName)
}

// RestartSidecar tears down and relaunches the sidecar, required whenever
// the OIDC config changes.
func (c *Controller) RestartSidecar(ctx context.Context) error {
	if exists, _ := c.rt.ContainerExists(ctx, sidecarContainerName); exists {
		if err := c.rt.Remove(ctx, sidecarContainerName); err != nil {
			return err
		}
	}
	return c.launchSidecar(ctx)
}

func (c *Controller) awaitRunning(ctx context.Context, name string) error {
	deadline := time.Now().Add(readinessTimeout)
	for time.Now().Before(deadline) {
		running, err := c.rt.IsRunning(ctx, name)
		if err == nil && running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readinessPollInterval):
		}
	}
	logs, _ := c.rt.Logs(ctx, name, 100)
	return apierr.System("%s did not reach running state: %s", name, logs)
}

// TLSStatusReport queries the proxy admin API and classifies each router's
// certificate, per edge.TLSStatus. The admin API is published to the host's
// loopback interface on c.adminPort by launchProxy, so it is reachable from
// this process even though the proxy itself runs in its own container.
func (c *Controller) TLSStatusReport(ctx context.Context) (map[string]TLSStatus, error) {
	return QueryTLSStatus(ctx, fmt.Sprintf("127.0.0.1:%d", c.adminPort))
}
