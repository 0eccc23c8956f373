package process

import (
	"errors"
	"fmt"
)

// ErrKeyInUse is returned when spawning under a key that already has a live process.
var ErrKeyInUse = errors.New("key already in use")

// SpawnError reports that a child could not be started: the key was taken,
// the executable could not be resolved, or the OS refused to start it.
type SpawnError struct {
	Key     string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (%s): %v", e.Key, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
