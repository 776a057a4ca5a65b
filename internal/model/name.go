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

import (
	"regexp"

	"github.com/plosson/siteio/internal/apierr"
)

// nameRE matches the shared app/site name grammar: lowercase alphanumeric
// with interior hyphens, or a single character.
var nameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// ReservedNames are names the control plane refuses to assign to an app or
// site because they collide with the agent's own routing.
var ReservedNames = map[string]bool{
	"api": true,
}

// ValidateName checks name against the shared app/site grammar and the
// reserved-word list.
func ValidateName(kind, name string) error {
	if name == "" {
		return apierr.User("%s name must not be empty", kind)
	}
	if ReservedNames[name] {
		return apierr.User("%s name %q is reserved", kind, name)
	}
	if !nameRE.MatchString(name) {
		return apierr.User("%s name %q must be lowercase alphanumeric with interior hyphens", kind, name)
	}
	return nil
}
