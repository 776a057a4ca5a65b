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

import "fmt"

// buildNginxConfig renders the shared static-file server's single vhost: a
// regex server_name extracts the leading label of the Host header and maps
// it to the matching extracted site directory under /sites. SPA routes
// fall back to index.html; the default server (no Host match) returns 404.
func buildNginxConfig() string {
	return fmt.Sprintf(`server {
    listen 80 default_server;
    server_name _;
    return 404;
}

server {
    listen 80;
    server_name ~^(?<subdomain>[a-z0-9-]+)\..*$;
    root /sites/$subdomain;
    index index.html;

    location / {
        try_files $uri $uri/ /index.html;
    }
}
`)
}
