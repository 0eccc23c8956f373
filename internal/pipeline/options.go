package pipeline

import (
	"time"

	"github.com/smazurov/devnode/internal/events"
	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/runtime"
	"github.com/smazurov/devnode/internal/tracker"
	"github.com/smazurov/devnode/internal/vcs"
)

// Options configures an Orchestrator. Registry, Tracker, VCS and Locator are
// required.
type Options struct {
	Registry *process.Registry
	Tracker  *tracker.Tracker
	VCS      vcs.Service
	Locator  runtime.Locator

	// Bus receives pipeline events. If nil, a private bus is created.
	Bus *events.Bus

	// Logger for pipeline operations. If nil, uses logging.GetLogger("pipeline").
	Logger logging.Logger

	// GracePeriod between SIGTERM and SIGKILL. Default process.DefaultGracePeriod.
	GracePeriod time.Duration

	// ReadinessMarkers override the default readiness markers.
	ReadinessMarkers []string

	// Identity is used when a request does not carry one.
	Identity vcs.Identity

	// HistoryLimit bounds how many finished runs are kept. Default 50.
	HistoryLimit int
}
