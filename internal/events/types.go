package events

// Event type constants for kelindar/event.
const (
	TypeStepOutput uint32 = iota + 1
	TypeServerOutput
	TypeStepStatus
	TypePipelineState
	TypeServerReady
	TypeServerExited
)

// Step status tokens carried by StepStatusEvent.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Output stream names. StreamPipeline carries notes written by the
// orchestrator itself rather than by a child process.
const (
	StreamStdout   = "stdout"
	StreamStderr   = "stderr"
	StreamPipeline = "pipeline"
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StepOutputEvent carries text produced while a pipeline step runs.
type StepOutputEvent struct {
	ProjectID string `json:"project_id" example:"web" doc:"Project identifier"`
	RunID     string `json:"run_id" doc:"Pipeline run identifier"`
	Step      string `json:"step" example:"DependencyInstall" doc:"Pipeline step"`
	Stream    string `json:"stream" example:"stdout" doc:"stdout, stderr or pipeline"`
	Text      string `json:"text" doc:"Raw output chunk"`
}

// Type returns the event type identifier for StepOutputEvent.
func (e StepOutputEvent) Type() uint32 { return TypeStepOutput }

// ServerOutputEvent carries text produced by a project's long-running server.
type ServerOutputEvent struct {
	ProjectID string `json:"project_id" example:"web" doc:"Project identifier"`
	Stream    string `json:"stream" example:"stdout" doc:"stdout or stderr"`
	Text      string `json:"text" doc:"Raw output chunk"`
}

// Type returns the event type identifier for ServerOutputEvent.
func (e ServerOutputEvent) Type() uint32 { return TypeServerOutput }

// StepStatusEvent reports the outcome of a single pipeline step.
type StepStatusEvent struct {
	ProjectID string `json:"project_id" example:"web" doc:"Project identifier"`
	RunID     string `json:"run_id" doc:"Pipeline run identifier"`
	Step      string `json:"step" example:"Build" doc:"Pipeline step"`
	Status    string `json:"status" example:"success" doc:"success or failure"`
	Error     string `json:"error,omitempty" doc:"Failure description"`
}

// Type returns the event type identifier for StepStatusEvent.
func (e StepStatusEvent) Type() uint32 { return TypeStepStatus }

// PipelineStateEvent is published on every pipeline state transition.
type PipelineStateEvent struct {
	ProjectID string `json:"project_id" example:"web" doc:"Project identifier"`
	RunID     string `json:"run_id" doc:"Pipeline run identifier"`
	State     string `json:"state" example:"Build" doc:"New pipeline state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition time"`
}

// Type returns the event type identifier for PipelineStateEvent.
func (e PipelineStateEvent) Type() uint32 { return TypePipelineState }

// ServerReadyEvent is published once per server process when its output
// first contains a readiness marker. It is distinct from the server being spawned.
type ServerReadyEvent struct {
	ProjectID string `json:"project_id" example:"web" doc:"Project identifier"`
	URL       string `json:"url,omitempty" example:"http://localhost:5173/" doc:"First endpoint URL seen in output"`
	PID       int    `json:"pid" doc:"Server process id"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Ready time"`
}

// Type returns the event type identifier for ServerReadyEvent.
func (e ServerReadyEvent) Type() uint32 { return TypeServerReady }

// ServerExitedEvent is published when a project's server process exits.
type ServerExitedEvent struct {
	ProjectID string `json:"project_id" example:"web" doc:"Project identifier"`
	PID       int    `json:"pid" doc:"Server process id"`
	Outcome   string `json:"outcome" example:"signaled" doc:"success, signaled or nonzero"`
	ExitCode  int    `json:"exit_code" doc:"Exit code, -1 when signaled"`
	Requested bool   `json:"requested" doc:"Whether termination was requested"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Exit time"`
}

// Type returns the event type identifier for ServerExitedEvent.
func (e ServerExitedEvent) Type() uint32 { return TypeServerExited }
