// Package vcs provides version control operations used to acquire and
// prepare a project workspace.
package vcs

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Identity is the commit author configured in a workspace.
type Identity struct {
	Name  string `toml:"name" json:"name"`
	Email string `toml:"email" json:"email"`
}

// IsZero reports whether neither name nor email is set.
func (i Identity) IsZero() bool { return i.Name == "" && i.Email == "" }

// Service is the version control collaborator used by the pipeline.
// Progress output of long-running operations is copied to out when non-nil.
type Service interface {
	Clone(ctx context.Context, url, dest string, out io.Writer) error
	CheckoutBranch(ctx context.Context, dir, branch string, create bool, out io.Writer) error
	ConfigureIdentity(ctx context.Context, dir string, id Identity) error
	HasHistory(ctx context.Context, dir string) (bool, error)
}

// CommandError is returned when a version control command fails.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
