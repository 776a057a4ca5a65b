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

import "testing"

func TestNewOAuthPolicy_LowercasesAndTrims(t *testing.T) {
	p := NewOAuthPolicy([]string{" Alice@X.com ", "BOB@x.com"}, " Company.com ", []string{" Admins "})
	if !p.AllowedEmails["alice@x.com"] || !p.AllowedEmails["bob@x.com"] {
		t.Errorf("AllowedEmails = %v, want lowercased", p.AllowedEmails)
	}
	if p.AllowedDomain != "company.com" {
		t.Errorf("AllowedDomain = %q, want company.com", p.AllowedDomain)
	}
	if !p.AllowedGroups["admins"] {
		t.Errorf("AllowedGroups = %v, want admins", p.AllowedGroups)
	}
}

func TestMergeOAuthPolicy_IncrementalRemovalDeletesPolicy(t *testing.T) {
	existing := NewOAuthPolicy([]string{"alice@x.com"}, "", nil)

	domain := "x.com"
	withDomain := MergeOAuthPolicy(existing, nil, nil, &domain, false)
	if withDomain == nil || withDomain.AllowedDomain != "x.com" {
		t.Fatalf("after adding domain: %+v", withDomain)
	}

	removedEmails := MergeOAuthPolicy(withDomain, []string{"alice@x.com"}, nil, nil, true)
	if removedEmails == nil || len(removedEmails.AllowedEmails) != 0 {
		t.Fatalf("after removing email: %+v", removedEmails)
	}

	cleared := MergeOAuthPolicy(removedEmails, nil, nil, &domain, true)
	if cleared != nil {
		t.Fatalf("policy with every field cleared should be deleted, got %+v", cleared)
	}
}

func TestOAuthPolicy_IsEmpty(t *testing.T) {
	var nilPolicy *OAuthPolicy
	if !nilPolicy.IsEmpty() {
		t.Error("nil policy should be empty")
	}
	empty := &OAuthPolicy{}
	if !empty.IsEmpty() {
		t.Error("zero-value policy should be empty")
	}
	withEmail := &OAuthPolicy{AllowedEmails: map[string]bool{"a@x.com": true}}
	if withEmail.IsEmpty() {
		t.Error("policy with an allowed email should not be empty")
	}
}
