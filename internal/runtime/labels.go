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

package runtime

import (
	"fmt"
	"strings"
)

// BuildTraefikLabels emits the label set the edge proxy's container
// provider reads for service discovery: enable flag, entrypoint, cert
// resolver, load-balancer port, a Host(...) rule ORed across domains, and
// (when requireAuth) a reference to the shared file-provider middleware
// chain.
func BuildTraefikLabels(appName string, domains []string, port int, requireAuth bool) map[string]string {
	router := "siteio-" + appName
	hostClauses := make([]string, 0, len(domains))
	for _, d := range domains {
		hostClauses = append(hostClauses, fmt.Sprintf("Host(`%s`)", d))
	}
	rule := strings.Join(hostClauses, " || ")

	labels := map[string]string{
		"traefik.enable":                                       "true",
		"traefik.http.routers." + router + ".rule":             rule,
		"traefik.http.routers." + router + ".entrypoints":      "websecure",
		"traefik.http.routers." + router + ".tls.certresolver": "letsencrypt",
		"traefik.http.services." + router + ".loadbalancer.server.port": fmt.Sprintf("%d", port),
	}
	if requireAuth {
		labels["traefik.http.routers."+router+".middlewares"] = "oauth2-errors@file,oauth2-auth@file,siteio-auth@file"
	}
	return labels
}
