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
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// TLSStatus is the observed certificate state for one router's host.
type TLSStatus string

const (
	TLSValid   TLSStatus = "valid"
	TLSPending TLSStatus = "pending"
	TLSError   TLSStatus = "error"
	TLSNone    TLSStatus = "none"
)

const tlsProbeTimeout = 5 * time.Second

var hostRuleRE = regexp.MustCompile("Host\\(`([^`]+)`\\)")

type adminRouter struct {
	Name string `json:"name"`
	Rule string `json:"rule"`
	TLS  *struct {
		CertResolver string `json:"certResolver"`
	} `json:"tls"`
}

// QueryTLSStatus asks the proxy admin API (bound to adminAddr, typically
// 127.0.0.1:8080) for all configured routers, then opens a direct TLS
// connection to the first Host of each TLS-enabled router to classify its
// certificate (routers sharing a host are each probed). Lookups run in
// parallel.
func QueryTLSStatus(ctx context.Context, adminAddr string) (map[string]TLSStatus, error) {
	routers, err := fetchRouters(ctx, adminAddr)
	if err != nil {
		return nil, err
	}

	result := make(map[string]TLSStatus, len(routers))
	g, gctx := errgroup.WithContext(ctx)
	type pair struct {
		name   string
		status TLSStatus
	}
	results := make([]pair, len(routers))

	for i, r := range routers {
		i, r := i, r
		g.Go(func() error {
			host := hostFromRule(r.Rule)
			if host == "" {
				results[i] = pair{r.Name, TLSNone}
				return nil
			}
			if r.TLS == nil {
				results[i] = pair{r.Name, TLSNone}
				return nil
			}
			results[i] = pair{r.Name, probeHost(gctx, host)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, p := range results {
		result[p.name] = p.status
	}
	return result, nil
}

func fetchRouters(ctx context.Context, adminAddr string) ([]adminRouter, error) {
	url := fmt.Sprintf("http://%s/api/http/routers", adminAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build admin API request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach admin API: %w", err)
	}
	defer resp.Body.Close()

	var routers []adminRouter
	if err := json.NewDecoder(resp.Body).Decode(&routers); err != nil {
		return nil, fmt.Errorf("failed to decode admin API response: %w", err)
	}
	return routers, nil
}

func hostFromRule(rule string) string {
	m := hostRuleRE.FindStringSubmatch(rule)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// probeHost opens a TLS connection to host:443 and classifies the served
// certificate's issuer. This is the only authoritative signal available
// that ACME issuance has completed, since the admin API does not publish
// per-router certificate details.
func probeHost(ctx context.Context, host string) TLSStatus {
	dialCtx, cancel := context.WithTimeout(ctx, tlsProbeTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, "443"))
	if err != nil {
		return TLSError
	}
	defer rawConn.Close()

	conn := tls.Client(rawConn, &tls.Config{ServerName: host, InsecureSkipVerify: true})
	conn.SetDeadline(time.Now().Add(tlsProbeTimeout))
	if err := conn.Handshake(); err != nil {
		return TLSError
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return TLSNone
	}
	issuer := state.PeerCertificates[0].Issuer
	for _, org := range issuer.Organization {
		if strings.Contains(org, "Let's Encrypt") {
			return TLSValid
		}
	}
	return TLSPending
}
