package process

import (
	"fmt"
	"os"
	"syscall"
)

// ExitKind classifies how a child process ended.
type ExitKind int

// Exit classifications.
const (
	ExitSuccess  ExitKind = iota // exit code zero
	ExitSignaled                 // killed by a signal
	ExitNonZero                  // exited with a failure code
)

func (k ExitKind) String() string {
	switch k {
	case ExitSuccess:
		return "success"
	case ExitSignaled:
		return "signaled"
	case ExitNonZero:
		return "nonzero"
	default:
		return "unknown"
	}
}

// Exit describes a finished child process.
type Exit struct {
	Kind      ExitKind
	Code      int    // -1 when signaled or unknown
	Signal    string // signal name when Kind is ExitSignaled
	Requested bool   // Terminate was called for this process
	Err       error  // raw wait error, if any
}

// Success reports whether the process exited with code zero.
func (e Exit) Success() bool {
	return e.Kind == ExitSuccess
}

// ExitError wraps an unsuccessful Exit so it can travel as an error.
type ExitError struct {
	Key  string
	Exit Exit
}

func (e *ExitError) Error() string {
	if e.Exit.Kind == ExitSignaled {
		return fmt.Sprintf("process %s terminated by signal %s", e.Key, e.Exit.Signal)
	}
	return fmt.Sprintf("process %s exited with code %d", e.Key, e.Exit.Code)
}

// classify converts the state left by exec.Cmd.Wait into an Exit.
// A zero exit code counts as success even when Wait reported a pipe
// still held open by a grandchild (exec.ErrWaitDelay).
func classify(state *os.ProcessState, waitErr error) Exit {
	if state == nil {
		return Exit{Kind: ExitNonZero, Code: -1, Err: waitErr}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Exit{Kind: ExitSignaled, Code: -1, Signal: ws.Signal().String(), Err: waitErr}
	}
	code := state.ExitCode()
	if code == 0 {
		return Exit{Kind: ExitSuccess}
	}
	return Exit{Kind: ExitNonZero, Code: code, Err: waitErr}
}
