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
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/plosson/siteio/internal/apierr"
)

func TestImageTag(t *testing.T) {
	if got, want := ImageTag("web"), "siteio-web:latest"; got != want {
		t.Errorf("ImageTag() = %q, want %q", got, want)
	}
}

func TestResolveHostPath(t *testing.T) {
	a := New("docker", "/data/volumes")

	tests := []struct {
		name string
		vol  VolumeMount
		want string
	}{
		{name: "absolute host path passes through", vol: VolumeMount{HostName: "/srv/data"}, want: "/srv/data"},
		{name: "named volume is rooted under volumeRoot/app", vol: VolumeMount{HostName: "db-data"}, want: "/data/volumes/web/db-data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.resolveHostPath("web", tt.vol); got != tt.want {
				t.Errorf("resolveHostPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildRunArgs_PublishesPorts(t *testing.T) {
	a := New("docker", "/data/volumes")
	cfg := RunConfig{
		Name: "siteio-proxy", Image: "traefik:v3.1", App: "proxy",
		Ports: []PortBinding{
			{HostPort: 80, ContainerPort: 80},
			{HostPort: 443, ContainerPort: 443},
			{HostIP: "127.0.0.1", HostPort: 8080, ContainerPort: 8080},
		},
	}
	args := a.buildRunArgs(cfg)
	joined := strings.Join(args, " ")

	for _, want := range []string{"-p 80:80/tcp", "-p 443:443/tcp", "-p 127.0.0.1:8080:8080/tcp"} {
		if !strings.Contains(joined, want) {
			t.Errorf("buildRunArgs() = %q, missing %q", joined, want)
		}
	}
}

func TestRemoteDigest_RejectsInvalidReference(t *testing.T) {
	_, err := RemoteDigest(context.Background(), "THIS IS NOT A VALID IMAGE REF::")
	if err == nil {
		t.Fatal("RemoteDigest() = nil error, want a user error for an unparsable reference")
	}
	if got := apierr.StatusFor(err); got != http.StatusBadRequest {
		t.Errorf("RemoteDigest() status = %d, want %d", got, http.StatusBadRequest)
	}
}

func TestBuildRunArgs_ExplicitPortProtocolPreserved(t *testing.T) {
	a := New("docker", "/data/volumes")
	args := a.buildRunArgs(RunConfig{
		Name: "web", Image: "nginx",
		Ports: []PortBinding{{HostPort: 53, ContainerPort: 53, Protocol: "udp"}},
	})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-p 53:53/udp") {
		t.Errorf("buildRunArgs() = %q, want explicit protocol preserved", joined)
	}
}
