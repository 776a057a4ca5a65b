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

// Package authz implements the forward-auth decision consulted by the edge
// proxy for every request to a protected resource.
package authz

import (
	"fmt"
	"net"
	"strings"

	"github.com/plosson/siteio/internal/model"
	"github.com/plosson/siteio/internal/store"
)

// Decision is the outcome of Check: an HTTP status to return to the proxy
// plus, for a 403, the body to serve.
type Decision struct {
	Status int
	Body   string
}

func allow() Decision { return Decision{Status: 200} }

func unauthorized() Decision { return Decision{Status: 401} }

// Service resolves a subdomain to its policy and decides whether a request
// carrying the given headers may proceed.
type Service struct {
	apps     *store.AppStore
	sites    *store.SiteStore
	groups   *store.GroupStore
	opDomain string
}

// New returns a Service wired to its collaborators.
func New(apps *store.AppStore, sites *store.SiteStore, groups *store.GroupStore, opDomain string) *Service {
	return &Service{apps: apps, sites: sites, groups: groups, opDomain: opDomain}
}

// Check implements the algorithm: strip the host's port, verify it belongs
// to the operator domain, look up the resource's policy, and evaluate the
// supplied email against it.
func (s *Service) Check(host, forwardedEmail, authRequestEmail string) Decision {
	host = stripPort(host)
	suffix := "." + s.opDomain
	if !strings.HasSuffix(host, suffix) {
		return allow() // not ours
	}
	sub := strings.TrimSuffix(host, suffix)
	if sub == "" || sub == "api" {
		return allow()
	}

	policy := s.lookupPolicy(sub)
	if policy == nil {
		return allow()
	}

	email := strings.ToLower(strings.TrimSpace(forwardedEmail))
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(authRequestEmail))
	}
	if email == "" {
		return unauthorized()
	}

	if policy.IsEmpty() {
		return allow() // present-but-empty policy: any authenticated email
	}
	if policy.AllowedEmails[email] {
		return allow()
	}
	if policy.AllowedDomain != "" {
		if at := strings.LastIndex(email, "@"); at >= 0 && email[at+1:] == policy.AllowedDomain {
			return allow()
		}
	}
	if len(policy.AllowedGroups) > 0 {
		members, err := s.groups.ResolveGroups(setToSlice(policy.AllowedGroups))
		if err == nil && members[email] {
			return allow()
		}
	}
	return forbidden(email, s.opDomain)
}

// lookupPolicy resolves sub to an App's policy first, falling back to a
// Site's. An absent resource returns nil (treated as public, since the
// proxy's own routing will 404 it).
func (s *Service) lookupPolicy(sub string) *model.OAuthPolicy {
	if app, ok := s.apps.GetOk(sub); ok {
		return app.OAuth
	}
	if site, ok := s.sites.GetMetadataOk(sub); ok {
		return site.OAuth
	}
	return nil
}

func forbidden(email, opDomain string) Decision {
	signOut := fmt.Sprintf("https://auth.%s/oauth2/sign_out?rd=https://%s", opDomain, opDomain)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Forbidden</title></head>
<body>
<p>%s is not authorized to access this resource.</p>
<p><a href="%s">Sign out</a></p>
</body>
</html>
`, email, signOut)
	return Decision{Status: 403, Body: body}
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func setToSlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
