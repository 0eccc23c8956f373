package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by steps interrupted by Cancel.
	ErrCancelled = errors.New("pipeline cancelled")
	// ErrRunActive is returned when a project already has a run in progress.
	ErrRunActive = errors.New("a pipeline run is already active for this project")
	// ErrTargetNotEmpty is returned by ModeCloneInto when the target has content.
	ErrTargetNotEmpty = errors.New("clone target is not empty")
	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("invalid pipeline request")
)

// StepError is a step failure with the output the step produced.
// For failed child processes Err is a *process.ExitError; for processes that
// could not be started it is a *process.SpawnError.
type StepError struct {
	Step   State
	Output string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
