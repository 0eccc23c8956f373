// Package metrics provides Prometheus metrics for managed processes and pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devnode",
		Subsystem: "process",
		Name:      "running",
		Help:      "Child processes currently owned by the registry",
	})

	processSpawns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devnode",
		Subsystem: "process",
		Name:      "spawns_total",
		Help:      "Spawn attempts by result",
	}, []string{"result"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devnode",
		Subsystem: "process",
		Name:      "exits_total",
		Help:      "Process exits by outcome (success, signaled, nonzero)",
	}, []string{"outcome"})

	forcedKills = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devnode",
		Subsystem: "process",
		Name:      "forced_kills_total",
		Help:      "Terminations that escalated to SIGKILL after the grace period",
	})

	trackedEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devnode",
		Subsystem: "tracker",
		Name:      "entries",
		Help:      "Server processes recorded in the persistent tracker",
	})

	trackerWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devnode",
		Subsystem: "tracker",
		Name:      "write_errors_total",
		Help:      "Failed rewrites of the tracker file",
	})
)

// ProcessSpawned records a spawn attempt. ok=false counts a SpawnError.
func ProcessSpawned(ok bool) {
	if !ok {
		processSpawns.WithLabelValues("error").Inc()
		return
	}
	processSpawns.WithLabelValues("ok").Inc()
	processesRunning.Inc()
}

// ProcessExited records an exit of a registry-owned process.
func ProcessExited(outcome string) {
	processesRunning.Dec()
	processExits.WithLabelValues(outcome).Inc()
}

// ForcedKill records a SIGKILL escalation.
func ForcedKill() {
	forcedKills.Inc()
}

// SetTrackedEntries sets the tracker entry count.
func SetTrackedEntries(n int) {
	trackedEntries.Set(float64(n))
}

// TrackerWriteFailed records a failed tracker rewrite.
func TrackerWriteFailed() {
	trackerWriteErrors.Inc()
}
