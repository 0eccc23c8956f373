package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/devnode/internal/events"
	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/metrics"
	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/readiness"
	"github.com/smazurov/devnode/internal/runtime"
	"github.com/smazurov/devnode/internal/tracker"
	"github.com/smazurov/devnode/internal/vcs"
	"github.com/smazurov/devnode/internal/workspace"
)

// Orchestrator runs pipelines. At most one run per project is active.
type Orchestrator struct {
	registry *process.Registry
	tracker  *tracker.Tracker
	vcs      vcs.Service
	locator  runtime.Locator
	bus      *events.Bus
	logger   logging.Logger
	grace    time.Duration
	identity vcs.Identity
	limit    int

	detector atomic.Pointer[readiness.Detector]

	mu      sync.Mutex
	active  map[string]*Run    // project id → active run
	history []*Run             // finished runs, oldest first
	servers map[string]*server // project id → live server
	closed  bool

	wg sync.WaitGroup
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil || opts.Tracker == nil || opts.VCS == nil || opts.Locator == nil {
		return nil, errors.New("pipeline: registry, tracker, vcs and locator are required")
	}

	o := &Orchestrator{
		registry: opts.Registry,
		tracker:  opts.Tracker,
		vcs:      opts.VCS,
		locator:  opts.Locator,
		bus:      opts.Bus,
		logger:   opts.Logger,
		grace:    opts.GracePeriod,
		identity: opts.Identity,
		limit:    opts.HistoryLimit,
		active:   make(map[string]*Run),
		servers:  make(map[string]*server),
	}
	if o.bus == nil {
		o.bus = events.New()
	}
	if o.logger == nil {
		o.logger = logging.GetLogger("pipeline")
	}
	if o.grace <= 0 {
		o.grace = process.DefaultGracePeriod
	}
	if o.limit <= 0 {
		o.limit = 50
	}
	o.detector.Store(readiness.New(opts.ReadinessMarkers...))

	return o, nil
}

// Bus returns the bus events are published on.
func (o *Orchestrator) Bus() *events.Bus {
	return o.bus
}

// SetReadinessMarkers replaces the readiness markers for servers started
// from now on. An empty list restores the defaults.
func (o *Orchestrator) SetReadinessMarkers(markers []string) {
	d := readiness.New(markers...)
	o.detector.Store(d)
	o.logger.Info("Readiness markers updated", "markers", d.Markers())
}

// Create starts a run that acquires a checkout as req.Mode says and then
// prepares and starts it.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*Run, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	kind := KindCreate
	if req.Mode == ModeReuse {
		kind = KindOpen
	}
	return o.start(ctx, kind, req)
}

// Open starts a run on an existing checkout.
func (o *Orchestrator) Open(ctx context.Context, req OpenRequest) (*Run, error) {
	creq := req.toCreate()
	if err := creq.validate(); err != nil {
		return nil, err
	}
	return o.start(ctx, KindOpen, creq)
}

// Reopen stops everything the project still has running, including
// processes left by a previous session, and then behaves like Open.
func (o *Orchestrator) Reopen(ctx context.Context, req OpenRequest) (*Run, error) {
	creq := req.toCreate()
	if err := creq.validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	_, busy := o.active[req.ProjectID]
	o.mu.Unlock()
	if busy {
		return nil, ErrRunActive
	}

	stopped := o.registry.TerminateAllMatching(process.MatchProject(req.ProjectID), o.grace)
	orphans := o.stopTracked(req.ProjectID)
	if len(stopped) > 0 || len(orphans) > 0 {
		o.logger.Info("Stopped previous processes before reopen", "project_id", req.ProjectID,
			"stopped", stopped, "orphans", orphans)
	}

	return o.start(ctx, KindReopen, creq)
}

// start registers a run and launches its goroutine. The run outlives ctx;
// only Cancel or Shutdown stop it.
func (o *Orchestrator) start(ctx context.Context, kind Kind, req CreateRequest) (*Run, error) {
	if req.Identity.IsZero() {
		req.Identity = o.identity
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return nil, errors.New("pipeline: orchestrator is shut down")
	}
	if _, busy := o.active[req.ProjectID]; busy {
		o.mu.Unlock()
		cancel()
		return nil, ErrRunActive
	}
	run := newRun(req.ProjectID, kind, cancel)
	o.active[req.ProjectID] = run
	o.wg.Add(1)
	o.mu.Unlock()

	metrics.RunStarted()
	o.logger.Info("Pipeline run started", "run_id", run.ID, "project_id", run.ProjectID,
		"kind", kind, "mode", req.Mode.String(), "target", req.Target)
	o.publishState(run, StateInitializing)

	go func() {
		defer o.wg.Done()
		defer cancel()
		o.execute(runCtx, run, req)
	}()

	return run, nil
}

// Cancel stops the project's active run, terminates every process the
// project owns and then either deletes the workspace (DeleteFiles) or
// removes a partial checkout left behind. Files are kept by default.
func (o *Orchestrator) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	if req.ProjectID == "" {
		return CancelResult{}, fmt.Errorf("%w: project id is required", ErrInvalidRequest)
	}

	o.mu.Lock()
	run := o.active[req.ProjectID]
	o.mu.Unlock()

	var res CancelResult
	if run != nil {
		res.RunID = run.ID
		if run.requestCancel() {
			o.logger.Info("Cancelling pipeline run", "run_id", run.ID, "project_id", run.ProjectID)
			o.publishState(run, StateCancelling)
		}
	}

	res.Stopped = o.registry.TerminateAllMatching(process.MatchProject(req.ProjectID), o.grace)
	res.StoppedOrphans = o.stopTracked(req.ProjectID)

	if run != nil {
		select {
		case <-run.Done():
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}

	dir := req.WorkspacePath
	if req.RepoFolderName != "" {
		dir = filepath.Join(dir, req.RepoFolderName)
	}
	if dir == "" && run != nil {
		dir = run.Workspace()
	}
	res.Workspace = dir
	if dir == "" {
		return res, nil
	}

	if req.DeleteFiles {
		if err := workspace.Remove(dir); err != nil {
			return res, err
		}
		res.Deleted = true
		o.logger.Info("Workspace deleted", "project_id", req.ProjectID, "dir", dir)
		return res, nil
	}

	removed, err := workspace.RemoveIfPartial(ctx, o.vcs, dir)
	if err != nil {
		return res, err
	}
	res.PartialRemoved = removed
	if removed {
		o.logger.Info("Partial checkout removed", "project_id", req.ProjectID, "dir", dir)
	}
	return res, nil
}

// stopTracked terminates tracked processes of the project that this session
// does not own, then drops the project's tracker entries.
func (o *Orchestrator) stopTracked(projectID string) []int {
	owned := make(map[int]bool)
	for _, info := range o.registry.List() {
		owned[info.PID] = true
	}

	var stopped []int
	for _, e := range o.tracker.ForProject(projectID) {
		if owned[e.PID] {
			continue
		}
		res := tracker.OSProbe(e.PID, e.Command)
		if !res.Exists || !res.MatchesSignature {
			continue
		}
		if err := process.TerminatePID(e.PID, o.grace); err != nil {
			o.logger.Error("Failed to stop tracked process", "project_id", projectID, "pid", e.PID, "error", err)
			continue
		}
		stopped = append(stopped, e.PID)
	}
	o.tracker.RemoveProject(projectID)
	return stopped
}

// ActiveRun returns the project's active run, if any.
func (o *Orchestrator) ActiveRun(projectID string) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.active[projectID]
	return run, ok
}

// ActiveProjects returns the ids of projects with a run in progress.
func (o *Orchestrator) ActiveProjects() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Runs returns snapshots of active runs followed by finished runs, most
// recent first.
func (o *Orchestrator) Runs() []RunInfo {
	o.mu.Lock()
	runs := make([]*Run, 0, len(o.active)+len(o.history))
	for _, r := range o.active {
		runs = append(runs, r)
	}
	for i := len(o.history) - 1; i >= 0; i-- {
		runs = append(runs, o.history[i])
	}
	o.mu.Unlock()

	infos := make([]RunInfo, 0, len(runs))
	for _, r := range runs {
		infos = append(infos, r.Info())
	}
	return infos
}

// FindRun returns the run with id among active and retained runs.
func (o *Orchestrator) FindRun(id string) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.active {
		if r.ID == id {
			return r, true
		}
	}
	for _, r := range o.history {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Shutdown cancels active runs, waits for them to finish (bounded by ctx)
// and stops every process the registry owns.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	runs := make([]*Run, 0, len(o.active))
	for _, r := range o.active {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		if r.requestCancel() {
			o.publishState(r, StateCancelling)
		}
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	o.registry.Shutdown(o.grace)
	o.logger.Info("Pipeline orchestrator shut down", "cancelled_runs", len(runs))
	return err
}

// retire moves a finished run from active to history.
func (o *Orchestrator) retire(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[run.ProjectID] == run {
		delete(o.active, run.ProjectID)
	}
	o.history = append(o.history, run)
	if len(o.history) > o.limit {
		o.history = o.history[len(o.history)-o.limit:]
	}
}

// publishState announces a state the run has already entered.
func (o *Orchestrator) publishState(run *Run, state State) {
	o.bus.Publish(events.PipelineStateEvent{
		ProjectID: run.ProjectID,
		RunID:     run.ID,
		State:     string(state),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
