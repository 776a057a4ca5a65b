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

import "strings"

// OAuthPolicy is the optional authorization policy attached to an App or
// Site. A nil policy means public. A non-nil policy with every field empty
// means "any authenticated email". All comparisons are case-folded, so
// every setter below lowercases on the way in.
type OAuthPolicy struct {
	AllowedEmails map[string]bool `json:"allowedEmails,omitempty"`
	AllowedDomain string          `json:"allowedDomain,omitempty"`
	AllowedGroups map[string]bool `json:"allowedGroups,omitempty"`
}

// IsEmpty reports whether the policy has no restrictions configured, in
// which case any authenticated user is accepted.
func (p *OAuthPolicy) IsEmpty() bool {
	return p == nil || (len(p.AllowedEmails) == 0 && p.AllowedDomain == "" && len(p.AllowedGroups) == 0)
}

// hasAnyField reports whether the policy has at least one restriction set.
func (p *OAuthPolicy) hasAnyField() bool {
	return p != nil && (len(p.AllowedEmails) > 0 || p.AllowedDomain != "" || len(p.AllowedGroups) > 0)
}

// NewOAuthPolicy builds a policy from CSV/plain inputs, lowercasing and
// trimming every value.
func NewOAuthPolicy(emails []string, domain string, groups []string) *OAuthPolicy {
	p := &OAuthPolicy{
		AllowedEmails: toSet(emails),
		AllowedDomain: strings.ToLower(strings.TrimSpace(domain)),
		AllowedGroups: toSet(groups),
	}
	return p
}

// MergeOAuthPolicy applies a PATCH-style partial update to existing,
// returning the resulting policy. When remove is true, the named emails and
// groups are removed from the existing sets and, if domain matches the
// existing AllowedDomain, the domain restriction is cleared too. If the
// result ends up with every field empty, the policy is deleted entirely
// (the resource becomes public) by returning nil.
func MergeOAuthPolicy(existing *OAuthPolicy, emails, groups []string, domain *string, remove bool) *OAuthPolicy {
	result := &OAuthPolicy{
		AllowedEmails: cloneSet(existing.AllowedEmailsOrNil()),
		AllowedDomain: existingDomain(existing),
		AllowedGroups: cloneSet(existing.AllowedGroupsOrNil()),
	}

	if remove {
		for _, e := range emails {
			delete(result.AllowedEmails, normalize(e))
		}
		for _, g := range groups {
			delete(result.AllowedGroups, normalize(g))
		}
		if domain != nil && strings.EqualFold(*domain, result.AllowedDomain) {
			result.AllowedDomain = ""
		}
	} else {
		for _, e := range emails {
			e = normalize(e)
			if e == "" {
				continue
			}
			if result.AllowedEmails == nil {
				result.AllowedEmails = map[string]bool{}
			}
			result.AllowedEmails[e] = true
		}
		for _, g := range groups {
			g = normalize(g)
			if g == "" {
				continue
			}
			if result.AllowedGroups == nil {
				result.AllowedGroups = map[string]bool{}
			}
			result.AllowedGroups[g] = true
		}
		if domain != nil {
			result.AllowedDomain = normalize(*domain)
		}
	}

	if !result.hasAnyField() {
		return nil
	}
	return result
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func toSet(vals []string) map[string]bool {
	var out map[string]bool
	for _, v := range vals {
		v = normalize(v)
		if v == "" {
			continue
		}
		if out == nil {
			out = map[string]bool{}
		}
		out[v] = true
	}
	return out
}

func (p *OAuthPolicy) AllowedEmailsOrNil() map[string]bool {
	if p == nil {
		return nil
	}
	return p.AllowedEmails
}

func (p *OAuthPolicy) AllowedGroupsOrNil() map[string]bool {
	if p == nil {
		return nil
	}
	return p.AllowedGroups
}

func existingDomain(p *OAuthPolicy) string {
	if p == nil {
		return ""
	}
	return p.AllowedDomain
}

func cloneSet(m map[string]bool) map[string]bool {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
