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

// Command siteio-agent runs the deployment agent: the authenticated HTTP
// control plane, the deployment engine, and the edge proxy supervisor, all
// wired to a single data directory.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/plosson/siteio/internal/authz"
	"github.com/plosson/siteio/internal/deploy"
	"github.com/plosson/siteio/internal/edge"
	"github.com/plosson/siteio/internal/gitadapter"
	"github.com/plosson/siteio/internal/httpapi"
	"github.com/plosson/siteio/internal/runtime"
	"github.com/plosson/siteio/internal/store"
)

const defaultNetwork = "siteio"

func main() {
	domain := os.Getenv("DOMAIN")
	if domain == "" {
		log.Fatal("DOMAIN is required")
	}
	email := os.Getenv("EMAIL")
	if email == "" {
		log.Fatal("EMAIL is required for ACME")
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "/data"
	}
	httpPort := envInt("HTTP_PORT", 80)
	httpsPort := envInt("HTTPS_PORT", 443)
	port := envInt("PORT", 3000)
	maxUpload, err := parseSize(os.Getenv("MAX_UPLOAD_SIZE"), 50<<20)
	if err != nil {
		log.Fatalf("invalid MAX_UPLOAD_SIZE: %v", err)
	}

	for _, dir := range []string{
		dataDir,
		filepath.Join(dataDir, "sites"),
		filepath.Join(dataDir, "metadata"),
		filepath.Join(dataDir, "history"),
		filepath.Join(dataDir, "apps"),
		filepath.Join(dataDir, "repos"),
		filepath.Join(dataDir, "volumes"),
	} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			log.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	apiKey, err := loadOrGenerateAPIKey(filepath.Join(dataDir, "api-key"))
	if err != nil {
		log.Fatalf("failed to load API key: %v", err)
	}

	apps := store.NewAppStore(filepath.Join(dataDir, "apps"))
	sites := store.NewSiteStore(dataDir)
	groups := store.NewGroupStore(filepath.Join(dataDir, "groups.json"))
	oidc := store.NewOIDCConfigStore(filepath.Join(dataDir, "oauth-config.json"))

	git := gitadapter.New(dataDir)
	rt := runtime.New("docker", filepath.Join(dataDir, "volumes"))

	authzSvc := authz.New(apps, sites, groups, domain)

	var edgeCtl *edge.Controller
	engine := deploy.New(apps, rt, git, defaultNetwork, domain, oidc.Enabled, func() {
		if edgeCtl != nil {
			if err := edgeCtl.RefreshDynamicConfig(context.Background()); err != nil {
				log.Printf("failed to refresh dynamic config: %v", err)
			}
		}
	})

	edgeCtl = edge.New(edge.Config{
		Runtime:        rt,
		Sites:          sites,
		Apps:           apps,
		OIDC:           oidc,
		DataDir:        dataDir,
		OperatorDomain: domain,
		ACMEEmail:      email,
		Network:        defaultNetwork,
		ControlAPIAddr: fmt.Sprintf("host.docker.internal:%d", port),
		HTTPPort:       httpPort,
		HTTPSPort:      httpsPort,
	})

	server := httpapi.New(httpapi.Config{
		Apps: apps, Sites: sites, Groups: groups, OIDC: oidc,
		Engine: engine, Edge: edgeCtl, Authz: authzSvc,
		OperatorDomain: domain, APIKey: apiKey, MaxUploadSize: maxUpload,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !rt.IsAvailable(ctx) {
		log.Println("warning: container runtime is not reachable at startup")
	}
	if err := edgeCtl.Start(ctx); err != nil {
		log.Fatalf("failed to start edge proxy: %v", err)
	}

	internalSrv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: server}
	go func() {
		log.Printf("control plane listening on :%d", port)
		if err := internalSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("control plane server failed: %v", err)
		}
	}()

	log.Printf("agent serving domain %s (proxy ports %d/%d)", domain, httpPort, httpsPort)

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := internalSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("control plane shutdown error: %v", err)
	}
	if err := edgeCtl.Stop(shutdownCtx); err != nil {
		log.Printf("edge proxy shutdown error: %v", err)
	}
}

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return n
}

// parseSize parses values like "50MB", "100KB", "1GB", or a bare byte
// count, returning def if raw is empty.
func parseSize(raw string, def int64) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	upper := strings.ToUpper(raw)
	multipliers := []struct {
		suffix string
		factor int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(upper, m.suffix) {
			numPart := strings.TrimSpace(upper[:len(upper)-len(m.suffix)])
			n, err := strconv.ParseInt(numPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q", raw)
			}
			return n * m.factor, nil
		}
	}
	n, err := strconv.ParseInt(upper, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n, nil
}

// loadOrGenerateAPIKey reads a persisted key from path, generating and
// persisting a fresh 32-byte hex key if none exists yet.
func loadOrGenerateAPIKey(path string) (string, error) {
	if existing, err := os.ReadFile(path); err == nil {
		key := strings.TrimSpace(string(existing))
		if key != "" {
			return key, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	key := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return "", err
	}
	log.Printf("generated API key, persisted to %s", path)
	return key, nil
}
