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

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "web", wantErr: false},
		{name: "single char", input: "a", wantErr: false},
		{name: "interior hyphen", input: "my-app", wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "reserved api", input: "api", wantErr: true},
		{name: "uppercase", input: "Web", wantErr: true},
		{name: "underscore", input: "my_app", wantErr: true},
		{name: "leading hyphen", input: "-web", wantErr: true},
		{name: "trailing hyphen", input: "web-", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName("app", tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
