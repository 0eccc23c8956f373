package process

import (
	"context"
	"os/exec"
	"slices"
	"sync/atomic"
	"time"
)

// Handle is a live child process owned by a Registry.
type Handle struct {
	Key       string
	PID       int
	Command   string
	Args      []string
	Dir       string
	StartedAt time.Time

	cmd       *exec.Cmd
	done      chan struct{}
	exit      Exit
	requested atomic.Bool
}

// Info is a point-in-time copy of a Handle for listings.
type Info struct {
	Key       string    `json:"key"`
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	Dir       string    `json:"dir"`
	StartedAt time.Time `json:"started_at"`
}

// Done is closed once the process has exited and left the registry.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exit returns the exit classification once Done is closed.
func (h *Handle) Exit() (Exit, bool) {
	select {
	case <-h.done:
		return h.exit, true
	default:
		return Exit{}, false
	}
}

// Wait blocks until the process exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Exit, error) {
	select {
	case <-h.done:
		return h.exit, nil
	case <-ctx.Done():
		return Exit{}, ctx.Err()
	}
}

// Info returns a snapshot of the handle.
func (h *Handle) Info() Info {
	return Info{
		Key:       h.Key,
		PID:       h.PID,
		Command:   h.Command,
		Args:      slices.Clone(h.Args),
		Dir:       h.Dir,
		StartedAt: h.StartedAt,
	}
}
