package pipeline

import (
	"sort"

	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/tracker"
)

// ReapResult reports what ReapOrphans found in the tracker.
type ReapResult struct {
	// Pruned entries no longer matched a live process.
	Pruned []tracker.Entry `json:"pruned"`
	// Terminated entries were live servers from a previous session and were stopped.
	Terminated []tracker.Entry `json:"terminated"`
	// Kept entries are live and were left running.
	Kept []tracker.Entry `json:"kept"`
}

// ReapOrphans reconciles the tracker with the OS, typically at startup.
// Stale entries are pruned. Live servers left by a previous session are
// stopped when terminate is set, and kept otherwise.
func (o *Orchestrator) ReapOrphans(probe tracker.Probe, terminate bool) ReapResult {
	if probe == nil {
		probe = tracker.OSProbe
	}

	res := ReapResult{
		Pruned:     []tracker.Entry{},
		Terminated: []tracker.Entry{},
		Kept:       []tracker.Entry{},
	}
	res.Pruned = append(res.Pruned, o.tracker.ValidateAgainstOS(probe)...)

	owned := make(map[int]bool)
	for _, info := range o.registry.List() {
		owned[info.PID] = true
	}

	for _, e := range sortedEntries(o.tracker.All()) {
		if owned[e.PID] {
			continue
		}
		if !terminate {
			res.Kept = append(res.Kept, e)
			continue
		}
		if err := process.TerminatePID(e.PID, o.grace); err != nil {
			o.logger.Error("Failed to stop orphaned server", "pid", e.PID, "project_id", e.ProjectID, "error", err)
			res.Kept = append(res.Kept, e)
			continue
		}
		o.tracker.Remove(e.PID)
		res.Terminated = append(res.Terminated, e)
	}

	o.logger.Info("Orphan reconciliation complete", "pruned", len(res.Pruned),
		"terminated", len(res.Terminated), "kept", len(res.Kept))
	return res
}

func sortedEntries(m map[int]tracker.Entry) []tracker.Entry {
	out := make([]tracker.Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}
