package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/metrics"
	"github.com/sourcegraph/conc"
	"golang.org/x/sys/unix"
)

// Registry owns live child processes keyed by string. A key identifies at
// most one live process.
type Registry struct {
	mu            sync.Mutex
	procs         map[string]*Handle
	logger        logging.Logger
	settleTimeout time.Duration
	waitDelay     time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry(opts *RegistryOptions) *Registry {
	r := &Registry{
		procs:         make(map[string]*Handle),
		settleTimeout: 2 * time.Second,
		waitDelay:     2 * time.Second,
	}
	if opts != nil {
		r.logger = opts.Logger
		if opts.SettleTimeout > 0 {
			r.settleTimeout = opts.SettleTimeout
		}
		if opts.WaitDelay > 0 {
			r.waitDelay = opts.WaitDelay
		}
	}
	if r.logger == nil {
		r.logger = logging.GetLogger("process")
	}
	return r
}

// Spawn starts a child described by spec and registers it under spec.Key.
func (r *Registry) Spawn(spec Spec) (*Handle, error) {
	if spec.Key == "" || spec.Command == "" {
		metrics.ProcessSpawned(false)
		return nil, &SpawnError{Key: spec.Key, Command: spec.Command, Err: errors.New("key and command are required")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.procs[spec.Key]; exists {
		metrics.ProcessSpawned(false)
		return nil, &SpawnError{Key: spec.Key, Command: spec.Command, Err: ErrKeyInUse}
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.waitDelay
	cmd.Stdout = &sinkWriter{key: spec.Key, stream: "stdout", sink: spec.Sink}
	cmd.Stderr = &sinkWriter{key: spec.Key, stream: "stderr", sink: spec.Sink}

	if err := cmd.Start(); err != nil {
		metrics.ProcessSpawned(false)
		r.logger.Error("Failed to start process", "key", spec.Key, "command", spec.Command, "error", err)
		return nil, &SpawnError{Key: spec.Key, Command: spec.Command, Err: err}
	}

	h := &Handle{
		Key:       spec.Key,
		PID:       cmd.Process.Pid,
		Command:   spec.Command,
		Args:      slices.Clone(spec.Args),
		Dir:       spec.Dir,
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}
	r.procs[spec.Key] = h
	metrics.ProcessSpawned(true)

	r.logger.Info("Process started", "key", h.Key, "pid", h.PID, "command", spec.Command, "args", spec.Args, "dir", spec.Dir)

	go r.wait(h, spec.OnExit)
	return h, nil
}

// wait reaps the child, releases its key and reports the exit.
func (r *Registry) wait(h *Handle, onExit ExitHandler) {
	waitErr := h.cmd.Wait()
	exit := classify(h.cmd.ProcessState, waitErr)
	exit.Requested = h.requested.Load()

	r.mu.Lock()
	if r.procs[h.Key] == h {
		delete(r.procs, h.Key)
	}
	r.mu.Unlock()

	h.exit = exit
	close(h.done)
	metrics.ProcessExited(exit.Kind.String())

	switch {
	case exit.Kind == ExitNonZero && !exit.Requested:
		r.logger.Warn("Process exited", "key", h.Key, "pid", h.PID, "outcome", exit.Kind.String(), "exit_code", exit.Code)
	default:
		r.logger.Info("Process exited", "key", h.Key, "pid", h.PID, "outcome", exit.Kind.String(), "exit_code", exit.Code, "requested", exit.Requested)
	}

	if onExit != nil {
		onExit(h, exit)
	}
}

// Terminate stops the process under key: SIGTERM to its process group, then
// SIGKILL once grace elapses. It returns when the exit is observed or after
// the forced signal (plus a bounded settle wait). Absent keys are a no-op.
func (r *Registry) Terminate(key string, grace time.Duration) error {
	r.mu.Lock()
	h := r.procs[key]
	r.mu.Unlock()

	if h == nil {
		return nil
	}
	return r.stop(h, grace)
}

// TerminateAllMatching terminates every key for which match returns true,
// concurrently, and returns the keys it stopped.
func (r *Registry) TerminateAllMatching(match func(key string) bool, grace time.Duration) []string {
	r.mu.Lock()
	var targets []*Handle
	for key, h := range r.procs {
		if match(key) {
			targets = append(targets, h)
		}
	}
	r.mu.Unlock()

	var wg conc.WaitGroup
	keys := make([]string, 0, len(targets))
	for _, h := range targets {
		keys = append(keys, h.Key)
		wg.Go(func() {
			if err := r.stop(h, grace); err != nil {
				r.logger.Error("Failed to terminate process", "key", h.Key, "error", err)
			}
		})
	}
	wg.Wait()

	sort.Strings(keys)
	return keys
}

// Shutdown terminates every live process.
func (r *Registry) Shutdown(grace time.Duration) {
	stopped := r.TerminateAllMatching(func(string) bool { return true }, grace)
	if len(stopped) > 0 {
		r.logger.Info("Registry shut down", "stopped", len(stopped))
	}
}

func (r *Registry) stop(h *Handle, grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	h.requested.Store(true)

	r.logger.Info("Sending SIGTERM to process group", "key", h.Key, "pid", h.PID)
	if err := signalGroup(h.PID, unix.SIGTERM); err != nil {
		r.logger.Debug("SIGTERM not delivered", "key", h.Key, "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}

	r.logger.Warn("Grace period expired, forcing kill", "key", h.Key, "pid", h.PID, "grace", grace)
	metrics.ForcedKill()
	if err := signalGroup(h.PID, unix.SIGKILL); err != nil {
		select {
		case <-h.done:
			return nil
		default:
		}
		return fmt.Errorf("kill %s (pid %d): %w", h.Key, h.PID, err)
	}

	settle := time.NewTimer(r.settleTimeout)
	defer settle.Stop()
	select {
	case <-h.done:
	case <-settle.C:
		r.logger.Error("Process did not exit after kill signal", "key", h.Key, "pid", h.PID)
	}
	return nil
}

// Get returns a snapshot of the process under key.
func (r *Registry) Get(key string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.procs[key]
	if !ok {
		return Info{}, false
	}
	return h.Info(), true
}

// Has reports whether key has a live process.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.procs[key]
	return ok
}

// Keys returns the live keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.procs))
	for key := range r.procs {
		keys = append(keys, key)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// List returns snapshots of all live processes sorted by key.
func (r *Registry) List() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.procs))
	for _, h := range r.procs {
		infos = append(infos, h.Info())
	}
	r.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// Len returns the number of live processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// sinkWriter adapts an OutputSink to io.Writer for exec.Cmd.
type sinkWriter struct {
	key    string
	stream string
	sink   OutputSink
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	if w.sink != nil && len(p) > 0 {
		w.sink(w.key, w.stream, slices.Clone(p))
	}
	return len(p), nil
}

// mergeEnv layers overrides on top of base KEY=VALUE entries.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[name]; !replaced {
			env = append(env, kv)
		}
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		env = append(env, name+"="+overrides[name])
	}
	return env
}
