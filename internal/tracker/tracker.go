// Package tracker keeps a durable, best-effort record of server processes so
// they can be found again after the application restarts or crashes.
//
// The file is advisory: a recorded pid may have exited or been reused, so
// entries must be validated (ValidateAgainstOS) before they are trusted.
package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/metrics"
)

// Entry is the persisted identity of one server process.
type Entry struct {
	PID       int    `json:"pid"`
	Port      *int   `json:"port"`
	ProjectID string `json:"projectId"`
	StartTime int64  `json:"startTime"` // epoch milliseconds
	Command   string `json:"command"`
	Cwd       string `json:"cwd"`
}

// StartedAt returns StartTime as a time.Time.
func (e Entry) StartedAt() time.Time {
	return time.UnixMilli(e.StartTime)
}

func (e Entry) clone() Entry {
	if e.Port != nil {
		port := *e.Port
		e.Port = &port
	}
	return e
}

// PersistenceError reports that the tracker file could not be read or written.
// It is logged and kept for inspection, never returned to pipeline callers.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("tracker %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Tracker is a JSON-file backed map of pid to Entry. Every mutation rewrites
// the whole file.
type Tracker struct {
	path    string
	mu      sync.Mutex
	entries map[int]Entry
	lastErr error
	logger  logging.Logger
}

// New creates a tracker persisting to path. Nothing is read until Load.
func New(path string, logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.GetLogger("tracker")
	}
	return &Tracker{
		path:    path,
		entries: make(map[int]Entry),
		logger:  logger,
	}
}

// Path returns the backing file path.
func (t *Tracker) Path() string {
	return t.path
}

// Load replaces the in-memory state with the file contents and returns a copy.
// A missing file is an empty map; unreadable or corrupt files are logged and
// also yield an empty map.
func (t *Tracker) Load() map[int]Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[int]Entry)

	data, err := os.ReadFile(t.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return t.snapshot()
	case err != nil:
		t.fail("read", err)
		return t.snapshot()
	}

	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		t.fail("parse", err)
		return t.snapshot()
	}

	for key, entry := range raw {
		pid, convErr := strconv.Atoi(key)
		if convErr != nil || pid <= 0 {
			t.logger.Warn("Skipping tracker entry with invalid pid", "key", key)
			continue
		}
		entry.PID = pid
		t.entries[pid] = entry
	}
	metrics.SetTrackedEntries(len(t.entries))
	t.logger.Debug("Tracker loaded", "path", t.path, "entries", len(t.entries))
	return t.snapshot()
}

// Add records or replaces the entry for e.PID.
func (t *Tracker) Add(e Entry) {
	if e.PID <= 0 {
		t.logger.Warn("Ignoring tracker entry without pid", "project_id", e.ProjectID)
		return
	}
	if e.StartTime == 0 {
		e.StartTime = time.Now().UnixMilli()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[e.PID] = e.clone()
	t.save()
}

// SetPort records the port a tracked server is listening on.
// Returns false when pid is not tracked.
func (t *Tracker) SetPort(pid, port int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[pid]
	if !ok {
		return false
	}
	e.Port = &port
	t.entries[pid] = e
	t.save()
	return true
}

// Remove forgets pid. Removing an unknown pid does not touch the file.
func (t *Tracker) Remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[pid]; !ok {
		return
	}
	delete(t.entries, pid)
	t.save()
}

// RemoveProject forgets every entry owned by projectID and returns them.
func (t *Tracker) RemoveProject(projectID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Entry
	for pid, e := range t.entries {
		if e.ProjectID == projectID {
			removed = append(removed, e.clone())
			delete(t.entries, pid)
		}
	}
	if len(removed) > 0 {
		t.save()
	}
	sortEntries(removed)
	return removed
}

// Get returns a copy of the entry for pid.
func (t *Tracker) Get(pid int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[pid]
	return e.clone(), ok
}

// All returns a copy of every entry.
func (t *Tracker) All() map[int]Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// ForProject returns copies of the entries owned by projectID, ordered by pid.
func (t *Tracker) ForProject(projectID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, e := range t.entries {
		if e.ProjectID == projectID {
			out = append(out, e.clone())
		}
	}
	sortEntries(out)
	return out
}

// LastError returns the most recent persistence failure, or nil once a
// later write succeeded.
func (t *Tracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// ValidateAgainstOS prunes entries whose pid no longer exists or no longer
// runs the recorded command, and returns the pruned entries ordered by pid.
func (t *Tracker) ValidateAgainstOS(probe Probe) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pruned []Entry
	for pid, e := range t.entries {
		res := probe(pid, e.Command)
		if res.Exists && res.MatchesSignature {
			continue
		}
		t.logger.Info("Pruning stale tracker entry", "pid", pid, "project_id", e.ProjectID,
			"exists", res.Exists, "matches_signature", res.MatchesSignature)
		pruned = append(pruned, e.clone())
		delete(t.entries, pid)
	}
	if len(pruned) > 0 {
		t.save()
	}
	sortEntries(pruned)
	return pruned
}

// snapshot copies the entries (must hold lock).
func (t *Tracker) snapshot() map[int]Entry {
	out := make(map[int]Entry, len(t.entries))
	for pid, e := range t.entries {
		out[pid] = e.clone()
	}
	return out
}

// save rewrites the whole file (must hold lock). Failures are recorded and
// logged; the in-memory state stays authoritative.
func (t *Tracker) save() {
	metrics.SetTrackedEntries(len(t.entries))

	raw := make(map[string]Entry, len(t.entries))
	for pid, e := range t.entries {
		raw[strconv.Itoa(pid)] = e
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		t.fail("marshal", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		t.fail("write", err)
		return
	}
	if err := writeAtomic(t.path, data); err != nil {
		t.fail("write", err)
		return
	}
	t.lastErr = nil
}

// writeAtomic replaces path through a temp file in the same directory, so a
// crash mid-write leaves the previous file intact.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (t *Tracker) fail(op string, err error) {
	perr := &PersistenceError{Op: op, Path: t.path, Err: err}
	t.lastErr = perr
	if op == "write" || op == "marshal" {
		metrics.TrackerWriteFailed()
	}
	t.logger.Warn("Tracker persistence failed, continuing in memory", "error", perr)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].PID < entries[j].PID })
}
