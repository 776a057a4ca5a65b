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

// Package deploy is the per-resource state machine carrying an app from
// declared to running: clone-and-build or pull, run, and the corresponding
// stop/restart/delete/teardown transitions.
package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/gitadapter"
	"github.com/plosson/siteio/internal/model"
	"github.com/plosson/siteio/internal/runtime"
	"github.com/plosson/siteio/internal/store"
)

// Engine drives App records through the runtime and git adapters. It never
// touches the on-disk record directly outside of AppStore.Update, so every
// transition is serialized per app name by the store's name locks.
type Engine struct {
	apps       *store.AppStore
	runtime    *runtime.Adapter
	git        *gitadapter.Adapter
	network    string
	opDomain   string
	oidcOn     func() bool
	onMutation func()
}

// New returns an engine wired to its collaborators. oidcOn reports whether
// the OIDC sidecar is currently configured (requireAuth is only honored
// when it is); onMutation, if non-nil, is invoked after every state change
// so the edge controller can refresh its dynamic config.
func New(apps *store.AppStore, rt *runtime.Adapter, git *gitadapter.Adapter, network, opDomain string, oidcOn func() bool, onMutation func()) *Engine {
	if oidcOn == nil {
		oidcOn = func() bool { return false }
	}
	if onMutation == nil {
		onMutation = func() {}
	}
	return &Engine{apps: apps, runtime: rt, git: git, network: network, opDomain: opDomain, oidcOn: oidcOn, onMutation: onMutation}
}

// Deploy carries app through build/pull and run, persisting the resulting
// state (or status=failed on error) before returning.
func (e *Engine) Deploy(ctx context.Context, appName string, noCache bool) (*model.App, error) {
	app, err := e.apps.Get(appName)
	if err != nil {
		return nil, err
	}

	if !e.runtime.IsAvailable(ctx) {
		return e.fail(appName, apierr.System("container runtime is not available"))
	}
	if err := e.runtime.EnsureNetwork(ctx, e.network); err != nil {
		return e.fail(appName, err)
	}

	containerName := model.ContainerName(appName)
	if exists, _ := e.runtime.ContainerExists(ctx, containerName); exists {
		if err := e.runtime.Remove(ctx, containerName); err != nil {
			return e.fail(appName, err)
		}
	}

	imageToRun, commitHash, builtAt, err := e.resolveImage(ctx, app, noCache)
	if err != nil {
		return e.fail(appName, err)
	}

	domains := app.EffectiveDomains(e.opDomain)
	requireAuth := app.OAuth != nil && e.oidcOn()
	labels := runtime.BuildTraefikLabels(appName, domains, app.InternalPort, requireAuth)

	volumes := make([]runtime.VolumeMount, len(app.Volumes))
	for i, v := range app.Volumes {
		volumes[i] = runtime.VolumeMount{HostName: v.HostName, MountPath: v.MountPath, ReadOnly: v.ReadOnly}
	}

	containerID, err := e.runtime.Run(ctx, runtime.RunConfig{
		Name: containerName, Image: imageToRun, App: appName,
		Env: app.Env, Volumes: volumes, RestartPolicy: string(app.RestartPolicy),
		Network: e.network, Labels: labels,
	})
	if err != nil {
		return e.fail(appName, err)
	}

	now := time.Now().UTC()
	updated, err := e.apps.Update(appName, func(a *model.App) error {
		a.Status = model.StatusRunning
		a.ContainerID = containerID
		a.DeployedAt = &now
		if commitHash != "" {
			a.CommitHash = commitHash
		}
		if builtAt != nil {
			a.LastBuildAt = builtAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.onMutation()
	return updated, nil
}

// resolveImage builds (git-sourced) or pulls (image-sourced) app's image,
// returning the tag to run plus any newly observed commit hash / build
// time.
func (e *Engine) resolveImage(ctx context.Context, app *model.App, noCache bool) (string, string, *time.Time, error) {
	if app.Source.Git == nil {
		if local := e.runtime.LocalDigest(ctx, app.Source.Image); local != "" {
			if remote, err := runtime.RemoteDigest(ctx, app.Source.Image); err == nil && remote.Digest.String() == local {
				fmt.Printf("deploy: %s is already at %s, skipping pull\n", app.Source.Image, local)
				return app.Source.Image, "", nil, nil
			}
		}
		if err := e.runtime.Pull(ctx, app.Source.Image); err != nil {
			return "", "", nil, err
		}
		return app.Source.Image, "", nil, nil
	}

	g := app.Source.Git
	if err := e.git.Clone(app.Name, g.RepoURL, g.Branch); err != nil {
		return "", "", nil, err
	}
	contextPath := e.git.RepoPath(app.Name)
	if g.Context != "" {
		contextPath = filepath.Join(contextPath, g.Context)
	}
	dockerfilePath := filepath.Join(contextPath, g.Dockerfile)
	if _, err := os.Stat(dockerfilePath); err != nil {
		return "", "", nil, apierr.User("Dockerfile not found at %s", dockerfilePath)
	}

	tag := runtime.ImageTag(app.Name)
	if err := e.runtime.Build(ctx, runtime.BuildConfig{
		ContextPath: contextPath, Dockerfile: g.Dockerfile, Tag: tag, NoCache: noCache,
	}); err != nil {
		return "", "", nil, err
	}

	commit, err := e.git.GetCommitHash(app.Name)
	if err != nil {
		return "", "", nil, err
	}
	builtAt := time.Now().UTC()
	return tag, commit, &builtAt, nil
}

func (e *Engine) fail(appName string, cause error) (*model.App, error) {
	e.apps.Update(appName, func(a *model.App) error {
		a.Status = model.StatusFailed
		return nil
	})
	return nil, cause
}

// Stop stops app's container if present and marks it stopped.
func (e *Engine) Stop(ctx context.Context, appName string) (*model.App, error) {
	if _, err := e.apps.Get(appName); err != nil {
		return nil, err
	}
	containerName := model.ContainerName(appName)
	if exists, _ := e.runtime.ContainerExists(ctx, containerName); exists {
		if err := e.runtime.Stop(ctx, containerName); err != nil {
			return nil, err
		}
	}
	updated, err := e.apps.Update(appName, func(a *model.App) error {
		a.Status = model.StatusStopped
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.onMutation()
	return updated, nil
}

// Restart restarts app's existing container, refusing if it was never
// deployed.
func (e *Engine) Restart(ctx context.Context, appName string) (*model.App, error) {
	if _, err := e.apps.Get(appName); err != nil {
		return nil, err
	}
	containerName := model.ContainerName(appName)
	exists, err := e.runtime.ContainerExists(ctx, containerName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apierr.User("deploy first")
	}
	if err := e.runtime.Restart(ctx, containerName); err != nil {
		return nil, err
	}
	updated, err := e.apps.Update(appName, func(a *model.App) error {
		a.Status = model.StatusRunning
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.onMutation()
	return updated, nil
}

// Delete best-effort tears down app's container, clone directory, and
// git-built image, then deletes its record. Individual cleanup failures do
// not prevent the record from being removed.
func (e *Engine) Delete(ctx context.Context, appName string) error {
	app, err := e.apps.Get(appName)
	if err != nil {
		return err
	}

	containerName := model.ContainerName(appName)
	if err := e.runtime.Remove(ctx, containerName); err != nil {
		fmt.Printf("deploy: best-effort container remove for %s failed: %v\n", appName, err)
	}
	if app.Source.Git != nil {
		if err := e.git.Remove(appName); err != nil {
			fmt.Printf("deploy: best-effort clone remove for %s failed: %v\n", appName, err)
		}
		tag := runtime.ImageTag(appName)
		if err := e.runtime.RemoveImage(ctx, tag); err != nil {
			fmt.Printf("deploy: best-effort image remove for %s failed: %v\n", appName, err)
		}
	}

	if err := e.apps.Delete(appName); err != nil {
		return err
	}
	e.onMutation()
	return nil
}

// Logs returns the tail of app's container log output.
func (e *Engine) Logs(ctx context.Context, appName string, tail int) (string, error) {
	if _, err := e.apps.Get(appName); err != nil {
		return "", err
	}
	return e.runtime.Logs(ctx, model.ContainerName(appName), tail)
}

// StreamLogs follows app's container log output into w until ctx is
// canceled.
func (e *Engine) StreamLogs(ctx context.Context, appName string, w io.Writer) error {
	if _, err := e.apps.Get(appName); err != nil {
		return err
	}
	return e.runtime.StreamLogs(ctx, model.ContainerName(appName), w)
}
