package pipeline

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StepRecord is the outcome of one step of a run.
type StepRecord struct {
	Step     State         `json:"step"`
	Status   string        `json:"status" doc:"success, failure, skipped or warning"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// RunInfo is a point-in-time copy of a Run.
type RunInfo struct {
	ID              string       `json:"id"`
	ProjectID       string       `json:"project_id"`
	Kind            Kind         `json:"kind"`
	State           State        `json:"state"`
	Status          Status       `json:"status"`
	Workspace       string       `json:"workspace,omitempty"`
	Steps           []StepRecord `json:"steps"`
	Error           string       `json:"error,omitempty"`
	CancelRequested bool         `json:"cancel_requested"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
}

// Run is one execution of the pipeline for a project.
type Run struct {
	ID        string
	ProjectID string
	Kind      Kind
	StartedAt time.Time

	mu         sync.Mutex
	state      State
	status     Status
	workspace  string
	steps      []StepRecord
	err        error
	finishedAt time.Time

	cancelRequested atomic.Bool
	cancel          context.CancelFunc
	done            chan struct{}
}

func newRun(projectID string, kind Kind, cancel context.CancelFunc) *Run {
	return &Run{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Kind:      kind,
		StartedAt: time.Now(),
		state:     StateInitializing,
		status:    StatusRunning,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns the current status.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the error that ended the run, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Workspace returns the checkout directory once acquired.
func (r *Run) Workspace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workspace
}

// CancelRequested reports whether Cancel was called for this run.
func (r *Run) CancelRequested() bool {
	return r.cancelRequested.Load()
}

// Done is closed when the run reaches a terminal status.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done and returns the run's
// error: nil on success, ErrCancelled, or the step failure.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns a snapshot of the run.
func (r *Run) Info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := RunInfo{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Kind:            r.Kind,
		State:           r.state,
		Status:          r.status,
		Workspace:       r.workspace,
		Steps:           slices.Clone(r.steps),
		CancelRequested: r.cancelRequested.Load(),
		StartedAt:       r.StartedAt,
	}
	if info.Steps == nil {
		info.Steps = []StepRecord{}
	}
	if r.err != nil {
		info.Error = r.err.Error()
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		info.FinishedAt = &t
	}
	return info
}

// requestCancel flags the run, moves it to Cancelling and interrupts its
// current step. It reports false if the run had already finished or was
// already cancelling.
func (r *Run) requestCancel() bool {
	r.mu.Lock()
	if r.status.Terminal() || r.cancelRequested.Load() {
		r.mu.Unlock()
		return false
	}
	r.cancelRequested.Store(true)
	r.state = StateCancelling
	r.mu.Unlock()

	r.cancel()
	return true
}

// advance enters state s unless cancellation was requested.
func (r *Run) advance(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelRequested.Load() {
		return false
	}
	r.state = s
	return true
}

// markRunning moves a finished, successful run to Running when its server
// becomes ready. It reports whether the state changed.
func (r *Run) markRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusSucceeded || r.state != StateServerStarting {
		return false
	}
	r.state = StateRunning
	return true
}

func (r *Run) setWorkspace(dir string) {
	r.mu.Lock()
	r.workspace = dir
	r.mu.Unlock()
}

func (r *Run) record(rec StepRecord) {
	r.mu.Lock()
	r.steps = append(r.steps, rec)
	r.mu.Unlock()
}

func (r *Run) finish(status Status, state State, err error) {
	r.mu.Lock()
	r.status = status
	r.state = state
	r.err = err
	r.finishedAt = time.Now()
	r.mu.Unlock()
	close(r.done)
}
