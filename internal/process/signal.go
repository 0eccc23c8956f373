package process

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval is how often TerminatePID checks a foreign pid for exit.
const pollInterval = 50 * time.Millisecond

// signalGroup signals the process group led by pid, falling back to the
// single process when no such group exists.
func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(pid, sig)
	}
	return err
}

// Alive reports whether pid refers to an existing process. A process owned
// by another user still counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// TerminatePID stops a process this registry does not own using the same
// graceful-then-forced escalation as Terminate. Since the caller cannot wait
// on a foreign pid, exit is detected by polling.
func TerminatePID(pid int, grace time.Duration) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if !Alive(pid) {
		return nil
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	if err := signalGroup(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	if waitGone(pid, grace) {
		return nil
	}

	if err := signalGroup(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	if !waitGone(pid, time.Second) {
		return fmt.Errorf("pid %d still alive after SIGKILL", pid)
	}
	return nil
}

func waitGone(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
