package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/devnode/internal/config"
	"github.com/smazurov/devnode/internal/events"
	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/pipeline"
	"github.com/smazurov/devnode/internal/tracker"
)

// CreateOpenCmd creates the open command, which runs the pipeline on an
// existing checkout in the foreground.
func CreateOpenCmd() *cobra.Command {
	var projectID string
	var reopen bool

	cmd := &cobra.Command{
		Use:   "open [dir]",
		Short: "Install, build and serve an existing checkout",
		Long: `Runs dependency install, build and the dev server for a checkout in the foreground. ` +
			`Output is streamed to the terminal; Ctrl-C stops the server and exits.`,
		Args: cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				exitOnError(cmd, err)
			}
			if projectID == "" {
				projectID = filepath.Base(abs)
			}

			exitOnError(cmd, runForeground(cmd.Context(), cmd.OutOrStdout(), opts, func(o *pipeline.Orchestrator) (*pipeline.Run, error) {
				req := pipeline.OpenRequest{ProjectID: projectID, Dir: abs}
				if reopen {
					return o.Reopen(context.Background(), req)
				}
				return o.Open(context.Background(), req)
			}))
		}),
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (default: folder name)")
	cmd.Flags().BoolVar(&reopen, "reopen", false, "Stop servers tracked for the project by an earlier session first")
	return cmd
}

// CreateCloneCmd creates the clone command, which clones a repository and
// runs the pipeline on it in the foreground.
func CreateCloneCmd() *cobra.Command {
	var projectID, folder, branch string
	var into, createBranch bool

	cmd := &cobra.Command{
		Use:   "clone <repo-url> [target]",
		Short: "Clone a repository, then install, build and serve it",
		Long: `Clones into a new folder under target (repo, repo-1, ... on collision), or directly into ` +
			`an empty target with --into, then runs the pipeline in the foreground.`,
		Args: cobra.RangeArgs(1, 2),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			target := opts.WorkspaceRoot
			if len(args) == 2 {
				target = args[1]
			}
			if target == "" {
				target = "."
			}
			abs, err := filepath.Abs(target)
			if err != nil {
				exitOnError(cmd, err)
			}

			req := pipeline.CreateRequest{
				ProjectID:    projectID,
				RepoURL:      args[0],
				Mode:         pipeline.ModeCloneSubfolder,
				Target:       abs,
				FolderName:   folder,
				Branch:       branch,
				CreateBranch: createBranch,
			}
			if into {
				req.Mode = pipeline.ModeCloneInto
			}
			if req.ProjectID == "" {
				req.ProjectID = strings.TrimSuffix(filepath.Base(args[0]), ".git")
			}

			exitOnError(cmd, runForeground(cmd.Context(), cmd.OutOrStdout(), opts, func(o *pipeline.Orchestrator) (*pipeline.Run, error) {
				return o.Create(context.Background(), req)
			}))
		}),
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (default: repository name)")
	cmd.Flags().StringVar(&folder, "folder", "", "Subfolder name (default: repository name)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to check out")
	cmd.Flags().BoolVar(&createBranch, "create-branch", false, "Create the branch from HEAD")
	cmd.Flags().BoolVar(&into, "into", false, "Clone directly into target, which must be empty")
	return cmd
}

func exitOnError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	os.Exit(1)
}

// runForeground starts a run, streams its events to out and keeps the
// server alive until it exits or the user interrupts.
func runForeground(parent context.Context, out io.Writer, opts *Options, start func(*pipeline.Orchestrator) (*pipeline.Run, error)) error {
	if parent == nil {
		parent = context.Background()
	}
	logging.Initialize(opts.LoggingConfig())
	logger := logging.GetLogger("main")

	settings, err := config.LoadSettings(opts.Config)
	if err != nil {
		return err
	}
	engine, err := NewEngine(opts, settings)
	if err != nil {
		return err
	}
	// Prune only: live entries may belong to a serve daemon sharing the file.
	engine.Orchestrator.ReapOrphans(tracker.OSProbe, false)

	p := &printer{out: out}
	unsubOutput := engine.Bus.SubscribeOutput(p.stepOutput, p.serverOutput, p.stepStatus)
	defer unsubOutput()
	unsubReady := engine.Bus.Subscribe(p.serverReady)
	defer unsubReady()

	exited := make(chan any, 1)
	unsubExit := events.SubscribeToChannel[events.ServerExitedEvent](engine.Bus, exited)
	defer unsubExit()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout())
		defer cancel()
		if err := engine.Orchestrator.Shutdown(sctx); err != nil {
			logger.Warn("Shutdown did not complete", "error", err)
		}
	}
	defer shutdown()

	run, err := start(engine.Orchestrator)
	if err != nil {
		return err
	}

	if err := run.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		var stepErr *pipeline.StepError
		if errors.As(err, &stepErr) && stepErr.Output != "" {
			p.printf("\n%s failed, captured output:\n%s\n", stepErr.Step, stepErr.Output)
		}
		return err
	}

	info := run.Info()
	p.printf("Workspace %s is up, press Ctrl-C to stop\n", info.Workspace)

	select {
	case <-ctx.Done():
	case ev := <-exited:
		if e, ok := ev.(events.ServerExitedEvent); ok && !e.Requested {
			return fmt.Errorf("dev server exited: %s (code %d)", e.Outcome, e.ExitCode)
		}
	}
	return nil
}

var (
	stepOKStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	stepFailedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	readyStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

// printer renders bus events as terminal lines. Events arrive on several
// goroutines, so writes are serialised.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) stepOutput(e events.StepOutputEvent) {
	p.printf("%s", e.Text)
}

func (p *printer) serverOutput(e events.ServerOutputEvent) {
	p.printf("%s", e.Text)
}

func (p *printer) stepStatus(e events.StepStatusEvent) {
	switch {
	case e.Status == events.StatusFailure:
		p.printf("%s %s\n", stepFailedStyle.Render("==> "+e.Step+" FAILED:"), e.Error)
	case e.Error != "":
		// Successful steps carry an error only for non-fatal warnings.
		p.printf("%s %s\n", stepOKStyle.Render("==> "+e.Step+" ok"), warnStyle.Render("("+e.Error+")"))
	default:
		p.printf("%s\n", stepOKStyle.Render("==> "+e.Step+" ok"))
	}
}

func (p *printer) serverReady(e events.ServerReadyEvent) {
	msg := "==> server ready"
	if e.URL != "" {
		msg += " at " + e.URL
	}
	p.printf("%s\n", readyStyle.Render(msg))
}
