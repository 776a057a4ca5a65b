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

// Package runtime is a thin wrapper over the container runtime CLI. It is
// the single point where the child-process contract (args, stdout/stderr
// capture, exit codes) is encoded; every other component consumes its typed
// results and never shells out to the runtime itself.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/plosson/siteio/internal/apierr"
)

// minVersion is the lowest daemon version this adapter has been exercised
// against; isAvailable logs rather than fails below it, since the CLI
// surface used here has been stable for a long time.
var minVersion = semver.MustParse("20.10.0")

// Adapter drives the runtime through its CLI binary (conventionally
// "docker", but any CLI speaking the same flags works).
type Adapter struct {
	bin        string
	volumeRoot string
}

// New returns an adapter invoking bin (typically "docker"), rooting named
// volumes under volumeRoot/<app>/<hostName>.
func New(bin, volumeRoot string) *Adapter {
	if bin == "" {
		bin = "docker"
	}
	return &Adapter{bin: bin, volumeRoot: volumeRoot}
}

func (a *Adapter) cmd(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, a.bin, args...)
}

func (a *Adapter) run(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := a.cmd(ctx, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", apierr.System("%s %s: %v: %s", a.bin, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// IsAvailable probes the daemon and, if reachable, logs a warning when its
// reported version predates minVersion.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	out, err := a.run(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return false
	}
	if v, err := semver.NewVersion(strings.TrimSpace(out)); err == nil {
		if v.LessThan(minVersion) {
			fmt.Printf("runtime: daemon version %s is older than the tested minimum %s\n", v, minVersion)
		}
	}
	return true
}

// EnsureNetwork idempotently creates a user-defined bridge network.
func (a *Adapter) EnsureNetwork(ctx context.Context, name string) error {
	out, err := a.run(ctx, "network", "inspect", name)
	if err == nil && strings.TrimSpace(out) != "" {
		return nil
	}
	if _, err := a.run(ctx, "network", "create", "--driver", "bridge", name); err != nil {
		return err
	}
	return nil
}

// Pull blocks until the image is fetched.
func (a *Adapter) Pull(ctx context.Context, image string) error {
	_, err := a.run(ctx, "pull", image)
	return err
}

// RemoteDigest resolves image's current digest from its registry without
// pulling, letting callers skip a redundant pull when the locally cached
// image is already current.
func RemoteDigest(ctx context.Context, image string) (ocispec.Descriptor, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return ocispec.Descriptor{}, apierr.User("invalid image reference %q: %v", image, err)
	}
	desc, err := remote.Get(ref, remote.WithContext(ctx))
	if err != nil {
		return ocispec.Descriptor{}, apierr.System("failed to resolve remote digest for %s: %v", image, err)
	}
	return ocispec.Descriptor{
		MediaType: string(desc.MediaType),
		Digest:    digest.Digest(desc.Digest.String()),
		Size:      desc.Size,
	}, nil
}

// LocalDigest returns the repo digest docker recorded the last time image
// was pulled, or "" if the image isn't present locally or carries no repo
// digest (e.g. it was only ever built locally). Failures are swallowed:
// callers treat an empty result as "no optimization available" rather than
// an error.
func (a *Adapter) LocalDigest(ctx context.Context, image string) string {
	out, err := a.run(ctx, "image", "inspect", "--format", "{{json .RepoDigests}}", image)
	if err != nil {
		return ""
	}
	var digests []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &digests); err != nil {
		return ""
	}
	for _, d := range digests {
		if i := strings.LastIndex(d, "@"); i != -1 {
			return d[i+1:]
		}
	}
	return ""
}

// BuildConfig describes a single image build.
type BuildConfig struct {
	ContextPath string
	Dockerfile  string // resolved relative to ContextPath
	Tag         string
	BuildArgs   map[string]string
	NoCache     bool
}

// Build invokes the daemon's builder, failing with captured stderr.
func (a *Adapter) Build(ctx context.Context, cfg BuildConfig) error {
	dockerfile := cfg.Dockerfile
	if !filepath.IsAbs(dockerfile) {
		// docker build resolves a relative -f against the working
		// directory, not the context, so anchor it to the context here.
		dockerfile = filepath.Join(cfg.ContextPath, dockerfile)
	}
	args := []string{"build", "-t", cfg.Tag, "-f", dockerfile}
	if cfg.NoCache {
		args = append(args, "--no-cache")
	}
	for k, v := range cfg.BuildArgs {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, cfg.ContextPath)
	_, err := a.run(ctx, args...)
	return err
}

// RunConfig describes a single detached container start.
type RunConfig struct {
	Name          string
	Image         string
	App           string // owning app name, used to namespace volume host dirs
	Env           map[string]string
	Volumes       []VolumeMount
	Ports         []PortBinding
	RestartPolicy string
	Network       string
	Labels        map[string]string
}

// PortBinding publishes a container port onto the host, mirroring a single
// `-p [hostIP:]hostPort:containerPort[/protocol]` flag.
type PortBinding struct {
	HostIP        string // empty publishes on every host interface
	HostPort      int
	ContainerPort int
	Protocol      string // defaults to "tcp"
}

// VolumeMount mirrors model.Volume, kept independent of the model package
// so this adapter has no upward dependency.
type VolumeMount struct {
	HostName  string
	MountPath string
	ReadOnly  bool
}

func (a *Adapter) resolveHostPath(app string, v VolumeMount) string {
	if strings.HasPrefix(v.HostName, "/") {
		return v.HostName
	}
	return fmt.Sprintf("%s/%s/%s", a.volumeRoot, app, v.HostName)
}

// buildRunArgs renders cfg into the argument list for `docker run`.
func (a *Adapter) buildRunArgs(cfg RunConfig) []string {
	args := []string{"run", "-d", "--name", cfg.Name}
	if cfg.Network != "" {
		args = append(args, "--network", cfg.Network)
	}
	if cfg.RestartPolicy != "" && cfg.RestartPolicy != "no" {
		args = append(args, "--restart", cfg.RestartPolicy)
	}
	for k, v := range cfg.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	for _, vol := range cfg.Volumes {
		spec := fmt.Sprintf("%s:%s", a.resolveHostPath(cfg.App, vol), vol.MountPath)
		if vol.ReadOnly {
			spec += ":ro"
		}
		args = append(args, "-v", spec)
	}
	for _, p := range cfg.Ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		var spec string
		if p.HostIP != "" {
			spec = fmt.Sprintf("%s:%d:%d/%s", p.HostIP, p.HostPort, p.ContainerPort, proto)
		} else {
			spec = fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, proto)
		}
		args = append(args, "-p", spec)
	}
	for k, v := range cfg.Labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	return append(args, cfg.Image)
}

// Run starts config detached and returns the runtime's container id.
func (a *Adapter) Run(ctx context.Context, cfg RunConfig) (string, error) {
	out, err := a.run(ctx, a.buildRunArgs(cfg)...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Stop stops the named container.
func (a *Adapter) Stop(ctx context.Context, name string) error {
	_, err := a.run(ctx, "stop", name)
	return err
}

// Remove removes the named container. "No such container" is swallowed.
func (a *Adapter) Remove(ctx context.Context, name string) error {
	_, err := a.run(ctx, "rm", "-f", name)
	if err != nil && strings.Contains(err.Error(), "No such container") {
		return nil
	}
	return err
}

// Restart restarts the named container.
func (a *Adapter) Restart(ctx context.Context, name string) error {
	_, err := a.run(ctx, "restart", name)
	return err
}

// ContainerState is the subset of `docker inspect` state fields consumed by
// the deployment engine and the edge controller's readiness poll.
type ContainerState struct {
	Running   bool      `json:"Running"`
	Status    string    `json:"Status"`
	StartedAt time.Time `json:"StartedAt"`
	ExitCode  int       `json:"ExitCode"`
}

// ContainerInfo is the decoded result of Inspect.
type ContainerInfo struct {
	ID    string          `json:"Id"`
	State ContainerState  `json:"State"`
	Image string          `json:"Image"`
	Ports json.RawMessage `json:"Ports,omitempty"`
}

type inspectResult struct {
	ID    string `json:"Id"`
	State struct {
		Running   bool      `json:"Running"`
		Status    string    `json:"Status"`
		StartedAt time.Time `json:"StartedAt"`
		ExitCode  int       `json:"ExitCode"`
	} `json:"State"`
	Config struct {
		Image string `json:"Image"`
	} `json:"Config"`
	NetworkSettings struct {
		Ports json.RawMessage `json:"Ports"`
	} `json:"NetworkSettings"`
}

// Inspect returns the container's observed state.
func (a *Adapter) Inspect(ctx context.Context, name string) (*ContainerInfo, error) {
	out, err := a.run(ctx, "inspect", name)
	if err != nil {
		return nil, err
	}
	var results []inspectResult
	if err := json.Unmarshal([]byte(out), &results); err != nil || len(results) == 0 {
		return nil, apierr.System("failed to parse inspect output for %s", name)
	}
	r := results[0]
	return &ContainerInfo{
		ID: r.ID,
		State: ContainerState{
			Running: r.State.Running, Status: r.State.Status,
			StartedAt: r.State.StartedAt, ExitCode: r.State.ExitCode,
		},
		Image: r.Config.Image,
		Ports: r.NetworkSettings.Ports,
	}, nil
}

// IsRunning reports whether name's container is currently running.
func (a *Adapter) IsRunning(ctx context.Context, name string) (bool, error) {
	info, err := a.Inspect(ctx, name)
	if err != nil {
		if apierr.IsNotFound(err) || strings.Contains(err.Error(), "No such") {
			return false, nil
		}
		return false, err
	}
	return info.State.Running, nil
}

// ContainerExists reports whether a container named name exists, running or
// not.
func (a *Adapter) ContainerExists(ctx context.Context, name string) (bool, error) {
	_, err := a.Inspect(ctx, name)
	if err != nil {
		if strings.Contains(err.Error(), "No such") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Logs returns the last tail lines of the container's log output.
func (a *Adapter) Logs(ctx context.Context, name string, tail int) (string, error) {
	args := []string{"logs"}
	if tail > 0 {
		args = append(args, "--tail", fmt.Sprintf("%d", tail))
	}
	args = append(args, name)
	return a.run(ctx, args...)
}

// StreamLogs follows name's log output, writing each chunk to w until ctx
// is canceled or the container's log stream ends.
func (a *Adapter) StreamLogs(ctx context.Context, name string, w io.Writer) error {
	cmd := a.cmd(ctx, "logs", "-f", "--tail", "100", name)
	cmd.Stdout = w
	cmd.Stderr = w
	return cmd.Run()
}

// ImageTag derives the local build tag for a git-sourced app.
func ImageTag(appName string) string {
	return fmt.Sprintf("siteio-%s:latest", appName)
}

// ImageExists reports whether tag is present in the local image store.
func (a *Adapter) ImageExists(ctx context.Context, tag string) (bool, error) {
	out, err := a.run(ctx, "images", "-q", tag)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// RemoveImage removes tag from the local image store.
func (a *Adapter) RemoveImage(ctx context.Context, tag string) error {
	_, err := a.run(ctx, "rmi", tag)
	if err != nil && strings.Contains(err.Error(), "No such image") {
		return nil
	}
	return err
}
