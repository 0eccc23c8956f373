// Package runtime resolves how a project is installed, built and started.
package runtime

import (
	"context"
	"errors"
	"maps"
	"slices"
)

var (
	// ErrNoManifest is returned when the workspace has no recognised project manifest.
	ErrNoManifest = errors.New("no project manifest found")
	// ErrNoStartCommand is returned when nothing can start a dev server.
	ErrNoStartCommand = errors.New("no start command available")
)

// Descriptor lists the commands the pipeline runs for a project.
// An empty BuildCommand means the project has no build step.
type Descriptor struct {
	Name string `json:"name,omitempty"`

	InstallCommand string   `json:"installCommand,omitempty"`
	InstallArgs    []string `json:"installArgs,omitempty"`

	BuildCommand string   `json:"buildCommand,omitempty"`
	BuildArgs    []string `json:"buildArgs,omitempty"`

	StartCommand string   `json:"startCommand"`
	StartArgs    []string `json:"startArgs,omitempty"`

	Env map[string]string `json:"env,omitempty"`
}

// HasInstall reports whether an install step is configured.
func (d Descriptor) HasInstall() bool { return d.InstallCommand != "" }

// HasBuild reports whether a build step is configured.
func (d Descriptor) HasBuild() bool { return d.BuildCommand != "" }

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	d.InstallArgs = slices.Clone(d.InstallArgs)
	d.BuildArgs = slices.Clone(d.BuildArgs)
	d.StartArgs = slices.Clone(d.StartArgs)
	d.Env = maps.Clone(d.Env)
	return d
}

// Locator resolves the runtime descriptor for a workspace directory.
type Locator interface {
	Locate(ctx context.Context, dir string) (Descriptor, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, dir string) (Descriptor, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context, dir string) (Descriptor, error) {
	return f(ctx, dir)
}
