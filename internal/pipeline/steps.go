package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/smazurov/devnode/internal/events"
	"github.com/smazurov/devnode/internal/metrics"
	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/runtime"
	"github.com/smazurov/devnode/internal/workspace"
)

// execute walks the run through every step and settles its final status.
func (o *Orchestrator) execute(ctx context.Context, run *Run, req CreateRequest) {
	err := o.runSteps(ctx, run, req)
	o.complete(run, err)
}

func (o *Orchestrator) runSteps(ctx context.Context, run *Run, req CreateRequest) error {
	dir, err := o.acquireWorkspace(ctx, run, req)
	if err != nil {
		return err
	}

	if req.Mode == ModeReuse || req.Branch == "" {
		if err := o.skip(ctx, run, StateBranchSetup); err != nil {
			return err
		}
	} else {
		err := o.step(ctx, run, StateBranchSetup, func(out *stepOutput) error {
			return o.vcs.CheckoutBranch(ctx, dir, req.Branch, req.CreateBranch, out)
		})
		if err != nil {
			return err
		}
	}

	if req.Identity.IsZero() {
		if err := o.skip(ctx, run, StateIdentityConfiguration); err != nil {
			return err
		}
	} else {
		err := o.step(ctx, run, StateIdentityConfiguration, func(out *stepOutput) error {
			if err := o.vcs.ConfigureIdentity(ctx, dir, req.Identity); err != nil {
				if ctx.Err() != nil {
					return err
				}
				o.logger.Warn("Identity configuration failed, continuing", "run_id", run.ID,
					"project_id", run.ProjectID, "error", err)
				out.warn(fmt.Sprintf("could not configure commit identity: %v", err))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	var desc runtime.Descriptor
	err = o.step(ctx, run, StateDependencyInstall, func(out *stepOutput) error {
		d, err := o.locator.Locate(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to resolve runtime: %w", err)
		}
		desc = d
		if !desc.HasInstall() {
			out.note("no install command configured")
			return nil
		}
		return o.runCommand(ctx, run, out, roleInstall, desc.InstallCommand, desc.InstallArgs, dir, desc.Env)
	})
	if err != nil {
		return err
	}

	if !desc.HasBuild() {
		if err := o.skip(ctx, run, StateBuild); err != nil {
			return err
		}
	} else {
		err := o.step(ctx, run, StateBuild, func(out *stepOutput) error {
			return o.runCommand(ctx, run, out, roleBuild, desc.BuildCommand, desc.BuildArgs, dir, desc.Env)
		})
		if err != nil {
			return err
		}
	}

	return o.step(ctx, run, StateServerStarting, func(out *stepOutput) error {
		return o.startServer(run, desc, dir, out)
	})
}

// step enters state, runs fn and records and publishes the outcome. Errors
// other than cancellation come back as *StepError carrying the step output.
func (o *Orchestrator) step(ctx context.Context, run *Run, state State, fn func(out *stepOutput) error) error {
	if ctx.Err() != nil || !run.advance(state) {
		return ErrCancelled
	}
	o.publishState(run, state)
	o.logger.Debug("Entering step", "run_id", run.ID, "project_id", run.ProjectID, "step", state)

	out := newStepOutput(o.bus, run, state)
	start := time.Now()
	err := fn(out)
	elapsed := time.Since(start)

	if err != nil && (run.CancelRequested() || errors.Is(err, context.Canceled)) {
		err = ErrCancelled
	}

	rec := StepRecord{Step: state, Status: stepSuccess, Duration: elapsed}
	status := events.StatusSuccess
	message := ""
	switch {
	case err != nil:
		if !errors.Is(err, ErrCancelled) {
			err = &StepError{Step: state, Output: out.String(), Err: err}
		}
		rec.Status = stepFailure
		rec.Error = err.Error()
		status = events.StatusFailure
		message = err.Error()
	case out.warned() != "":
		rec.Status = stepWarning
		rec.Error = out.warned()
		message = out.warned()
	}

	run.record(rec)
	metrics.ObserveStep(string(state), rec.Status, elapsed)
	o.bus.Publish(events.StepStatusEvent{
		ProjectID: run.ProjectID,
		RunID:     run.ID,
		Step:      string(state),
		Status:    status,
		Error:     message,
	})
	return err
}

// skip records a step that does not apply to this run.
func (o *Orchestrator) skip(ctx context.Context, run *Run, state State) error {
	if ctx.Err() != nil || run.CancelRequested() {
		return ErrCancelled
	}
	run.record(StepRecord{Step: state, Status: stepSkipped})
	o.logger.Debug("Skipping step", "run_id", run.ID, "project_id", run.ProjectID, "step", state)
	return nil
}

// complete records the final status, retires the run and wakes waiters.
func (o *Orchestrator) complete(run *Run, err error) {
	var (
		status Status
		state  State
	)
	switch {
	case errors.Is(err, ErrCancelled) || run.CancelRequested():
		status, state, err = StatusCancelled, StateCancelled, ErrCancelled
	case err != nil:
		status, state = StatusFailed, StateFailed
	default:
		status, state = StatusSucceeded, StateServerStarting
	}

	o.retire(run)
	run.finish(status, state, err)
	metrics.RunFinished(string(run.Kind), string(status))

	switch status {
	case StatusSucceeded:
		o.logger.Info("Pipeline run succeeded, server spawned", "run_id", run.ID, "project_id", run.ProjectID,
			"duration", time.Since(run.StartedAt))
		if srv, ok := o.server(run.ProjectID); ok && srv.run == run && srv.latch.Ready() {
			o.promote(run)
		}
	case StatusCancelled:
		o.logger.Info("Pipeline run cancelled", "run_id", run.ID, "project_id", run.ProjectID)
		o.publishState(run, state)
	default:
		o.logger.Error("Pipeline run failed", "run_id", run.ID, "project_id", run.ProjectID, "error", err)
		o.publishState(run, state)
	}
}

// acquireWorkspace resolves the checkout directory and clones into it when
// the mode asks for a clone.
func (o *Orchestrator) acquireWorkspace(ctx context.Context, run *Run, req CreateRequest) (string, error) {
	var dir string
	err := o.step(ctx, run, StateAcquiringWorkspace, func(out *stepOutput) error {
		switch req.Mode {
		case ModeReuse:
			info, err := os.Stat(req.Target)
			if err != nil {
				return fmt.Errorf("workspace %s: %w", req.Target, err)
			}
			if !info.IsDir() {
				return fmt.Errorf("workspace %s is not a directory", req.Target)
			}
			dir = req.Target
			run.setWorkspace(dir)
			out.note("using existing checkout " + dir)
			return nil

		case ModeCloneInto:
			dir = req.Target
			if err := o.clearPartial(ctx, dir, out); err != nil {
				return err
			}
			empty, err := workspace.IsEmptyDir(dir)
			if err != nil {
				return err
			}
			if !empty {
				return fmt.Errorf("%w: %s", ErrTargetNotEmpty, dir)
			}

		case ModeCloneSubfolder:
			name := req.FolderName
			if name == "" {
				name = workspace.RepoNameFromURL(req.RepoURL)
			}
			// Interrupted clones may sit at any suffix; clearing them lets
			// NextAvailable hand the name back out.
			for i := 0; ; i++ {
				candidate := workspace.Candidate(req.Target, name, i)
				info, err := os.Lstat(candidate)
				if err != nil {
					break
				}
				if !info.IsDir() {
					continue
				}
				if err := o.clearPartial(ctx, candidate, out); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(req.Target, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", req.Target, err)
			}
			next, err := workspace.NextAvailable(req.Target, name)
			if err != nil {
				return err
			}
			dir = next
		}

		run.setWorkspace(dir)
		out.note(fmt.Sprintf("cloning %s into %s", req.RepoURL, dir))
		return o.vcs.Clone(ctx, req.RepoURL, dir, out)
	})
	return dir, err
}

// clearPartial removes an interrupted checkout at dir so the clone can
// target the same path again.
func (o *Orchestrator) clearPartial(ctx context.Context, dir string, out *stepOutput) error {
	removed, err := workspace.RemoveIfPartial(ctx, o.vcs, dir)
	if err != nil {
		return err
	}
	if removed {
		o.logger.Info("Removed partial checkout", "dir", dir)
		out.note("removed partial checkout at " + dir)
	}
	return nil
}

// runCommand runs one short-lived child to completion under the project's
// role key. Cancellation terminates it.
func (o *Orchestrator) runCommand(ctx context.Context, run *Run, out *stepOutput, role, command string, args []string, dir string, env map[string]string) error {
	key := process.Key(run.ProjectID, role)
	h, err := o.registry.Spawn(process.Spec{
		Key:     key,
		Command: command,
		Args:    args,
		Dir:     dir,
		Env:     env,
		Sink:    out.sink,
	})
	if err != nil {
		return err
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		if err := o.registry.Terminate(key, o.grace); err != nil {
			o.logger.Error("Failed to stop step process", "key", key, "error", err)
		}
		return ErrCancelled
	}

	exit, _ := h.Exit()
	if !exit.Success() {
		return &process.ExitError{Key: key, Exit: exit}
	}
	return nil
}
