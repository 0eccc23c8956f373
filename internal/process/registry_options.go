package process

import (
	"time"

	"github.com/smazurov/devnode/internal/logging"
)

// DefaultGracePeriod is how long Terminate waits after SIGTERM before SIGKILL.
const DefaultGracePeriod = 3 * time.Second

// OutputSink receives raw output chunks from a child. stream is "stdout" or
// "stderr". The chunk is owned by the sink.
type OutputSink func(key, stream string, chunk []byte)

// ExitHandler is called once after a child exits and its key was released.
type ExitHandler func(h *Handle, exit Exit)

// Spec describes a child to spawn.
type Spec struct {
	Key     string
	Command string
	Args    []string
	Dir     string
	// Env entries are layered over the parent environment.
	Env    map[string]string
	Sink   OutputSink
	OnExit ExitHandler
}

// RegistryOptions configures a new Registry.
type RegistryOptions struct {
	// Logger for registry operations. If nil, uses logging.GetLogger("process").
	Logger logging.Logger

	// SettleTimeout bounds the wait for exit after SIGKILL. Default 2s.
	SettleTimeout time.Duration

	// WaitDelay bounds how long output pipes may stay open after the child
	// exits, e.g. when a grandchild inherited them. Default 2s.
	WaitDelay time.Duration
}
