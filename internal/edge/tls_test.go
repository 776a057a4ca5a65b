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

import "testing"

func TestHostFromRule(t *testing.T) {
	tests := []struct {
		name string
		rule string
		want string
	}{
		{name: "single host", rule: "Host(`blog.example.com`)", want: "blog.example.com"},
		{name: "ored hosts takes the first", rule: "Host(`a.example.com`) || Host(`b.example.com`)", want: "a.example.com"},
		{name: "host regexp has no match", rule: "HostRegexp(`{sub:.+}.example.com`) && PathPrefix(`/oauth2/`)", want: ""},
		{name: "empty rule", rule: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hostFromRule(tt.rule); got != tt.want {
				t.Errorf("hostFromRule(%q) = %q, want %q", tt.rule, got, tt.want)
			}
		})
	}
}
