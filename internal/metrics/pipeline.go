package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devnode",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Finished pipeline runs by kind and terminal status",
	}, []string{"kind", "status"})

	pipelineActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devnode",
		Subsystem: "pipeline",
		Name:      "active_runs",
		Help:      "Pipeline runs currently executing",
	})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "devnode",
		Subsystem: "pipeline",
		Name:      "step_duration_seconds",
		Help:      "Duration of pipeline steps",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"step", "status"})

	serversReady = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devnode",
		Subsystem: "server",
		Name:      "ready_total",
		Help:      "Servers that emitted a readiness marker",
	})
)

// RunStarted records a pipeline run entering execution.
func RunStarted() {
	pipelineActive.Inc()
}

// RunFinished records a pipeline run reaching a terminal status.
func RunFinished(kind, status string) {
	pipelineActive.Dec()
	pipelineRuns.WithLabelValues(kind, status).Inc()
}

// ObserveStep records how long a step took.
func ObserveStep(step, status string, d time.Duration) {
	stepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// ServerReady records a server readiness detection.
func ServerReady() {
	serversReady.Inc()
}
