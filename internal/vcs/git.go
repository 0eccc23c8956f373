package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/devnode/internal/logging"
)

// Git implements Service with the git command line client.
type Git struct {
	// Binary is the git executable, "git" when empty.
	Binary string
	// Env is appended to the environment of every git invocation.
	Env []string

	logger logging.Logger
}

// NewGit returns a Git service. Interactive credential prompts are disabled.
func NewGit(logger logging.Logger) *Git {
	if logger == nil {
		logger = logging.GetLogger("vcs")
	}
	return &Git{
		Env:    []string{"GIT_TERMINAL_PROMPT=0"},
		logger: logger,
	}
}

// Clone clones url into dest.
func (g *Git) Clone(ctx context.Context, url, dest string, out io.Writer) error {
	_, err := g.run(ctx, "", out, "clone", "--progress", url, dest)
	return err
}

// CheckoutBranch switches dir to branch, creating it from HEAD when create is set.
func (g *Git) CheckoutBranch(ctx context.Context, dir, branch string, create bool, out io.Writer) error {
	args := []string{"checkout"}
	if create {
		args = append(args, "-b")
	}
	args = append(args, branch)
	_, err := g.run(ctx, dir, out, args...)
	return err
}

// ConfigureIdentity sets the repository-local author name and email.
// Empty fields are left untouched.
func (g *Git) ConfigureIdentity(ctx context.Context, dir string, id Identity) error {
	if id.Name != "" {
		if _, err := g.run(ctx, dir, nil, "config", "user.name", id.Name); err != nil {
			return err
		}
	}
	if id.Email != "" {
		if _, err := g.run(ctx, dir, nil, "config", "user.email", id.Email); err != nil {
			return err
		}
	}
	return nil
}

// HasHistory reports whether dir is a repository with at least one commit.
// A directory that is not a repository reports false without error. The
// lookup never leaves dir, so a broken checkout nested in another repository
// does not borrow the outer history.
func (g *Git) HasHistory(ctx context.Context, dir string) (bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	ceiling := "GIT_CEILING_DIRECTORIES=" + filepath.Dir(abs)
	_, err = g.runEnv(ctx, abs, []string{ceiling}, nil, "rev-parse", "--verify", "--quiet", "HEAD")
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, err
	}
	var cmdErr *CommandError
	var exitErr *exec.ExitError
	if errors.As(err, &cmdErr) && errors.As(cmdErr.Err, &exitErr) {
		return false, nil
	}
	return false, err
}

func (g *Git) run(ctx context.Context, dir string, out io.Writer, args ...string) ([]byte, error) {
	return g.runEnv(ctx, dir, nil, out, args...)
}

// runEnv is run with env appended after Env.
func (g *Git) runEnv(ctx context.Context, dir string, env []string, out io.Writer, args ...string) ([]byte, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = append(append(os.Environ(), g.Env...), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// git spawns helpers (remote-https, index-pack); kill the whole group.
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var buf bytes.Buffer
	if out != nil {
		cmd.Stdout = io.MultiWriter(&buf, out)
		cmd.Stderr = io.MultiWriter(&buf, out)
	} else {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}

	g.logger.Debug("Running git", "args", args, "dir", dir)

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return buf.Bytes(), &CommandError{Args: args, Output: buf.String(), Err: err}
	}
	return buf.Bytes(), nil
}
