package cmd

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/smazurov/devnode/internal/config"
	"github.com/smazurov/devnode/internal/events"
	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/pipeline"
	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/runtime"
	"github.com/smazurov/devnode/internal/tracker"
	"github.com/smazurov/devnode/internal/vcs"
)

// Engine bundles the components one devnode session runs on.
type Engine struct {
	Bus          *events.Bus
	Registry     *process.Registry
	Tracker      *tracker.Tracker
	Orchestrator *pipeline.Orchestrator

	overrides atomic.Pointer[runtime.Overrides]
}

// NewEngine loads the tracker file and wires the orchestrator with the
// structured settings of the config file.
func NewEngine(opts *Options, settings config.Settings) (*Engine, error) {
	e := &Engine{Bus: events.New()}
	e.SetRuntimeOverrides(settings.Runtime)

	e.Registry = process.NewRegistry(&process.RegistryOptions{
		Logger: logging.GetLogger("process"),
	})

	e.Tracker = tracker.New(opts.TrackerPath(), logging.GetLogger("tracker"))
	e.Tracker.Load()

	git := vcs.NewGit(logging.GetLogger("vcs"))
	if opts.GitBinary != "" {
		git.Binary = opts.GitBinary
	}

	orch, err := pipeline.New(pipeline.Options{
		Registry:         e.Registry,
		Tracker:          e.Tracker,
		VCS:              git,
		Locator:          runtime.LocatorFunc(e.locate),
		Bus:              e.Bus,
		Logger:           logging.GetLogger("pipeline"),
		GracePeriod:      opts.Grace(),
		ReadinessMarkers: settings.Readiness.Markers,
		Identity:         settings.Identity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	e.Orchestrator = orch
	return e, nil
}

// SetRuntimeOverrides replaces the command overrides used by later runs.
func (e *Engine) SetRuntimeOverrides(o runtime.Overrides) {
	e.overrides.Store(&o)
}

// ApplySettings pushes reloadable settings into the running engine.
func (e *Engine) ApplySettings(s config.Settings) {
	e.SetRuntimeOverrides(s.Runtime)
	e.Orchestrator.SetReadinessMarkers(s.Readiness.Markers)
}

func (e *Engine) locate(ctx context.Context, dir string) (runtime.Descriptor, error) {
	return runtime.WithOverrides(runtime.NodeLocator{}, *e.overrides.Load()).Locate(ctx, dir)
}
