package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/devnode/internal/events"
	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/runtime"
	"github.com/smazurov/devnode/internal/tracker"
	"github.com/smazurov/devnode/internal/vcs"
)

const repoURL = "https://example.com/acme/repo.git"

// fakeVCS clones by creating a .git directory with a history marker.
type fakeVCS struct {
	mu          sync.Mutex
	clones      []string
	branches    []string
	identityErr error
}

func (f *fakeVCS) Clone(_ context.Context, url, dest string, out io.Writer) error {
	if err := os.MkdirAll(filepath.Join(dest, ".git"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dest, ".git", "history"), []byte(url), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "Cloning into '%s'...\n", dest)
	f.mu.Lock()
	f.clones = append(f.clones, dest)
	f.mu.Unlock()
	return nil
}

func (f *fakeVCS) CheckoutBranch(_ context.Context, _, branch string, _ bool, _ io.Writer) error {
	f.mu.Lock()
	f.branches = append(f.branches, branch)
	f.mu.Unlock()
	return nil
}

func (f *fakeVCS) ConfigureIdentity(context.Context, string, vcs.Identity) error {
	return f.identityErr
}

func (f *fakeVCS) HasHistory(_ context.Context, dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, ".git", "history"))
	return err == nil, nil
}

func (f *fakeVCS) clonedDirs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.clones)
}

func shell(script string) (string, []string) {
	return "sh", []string{"-c", script}
}

func descriptor(install, build, start string) runtime.Descriptor {
	var d runtime.Descriptor
	if install != "" {
		d.InstallCommand, d.InstallArgs = shell(install)
	}
	if build != "" {
		d.BuildCommand, d.BuildArgs = shell(build)
	}
	if start != "" {
		d.StartCommand, d.StartArgs = shell(start)
	}
	return d
}

type fixture struct {
	orch     *Orchestrator
	registry *process.Registry
	tracker  *tracker.Tracker
	vcs      *fakeVCS
	parent   string
}

func newFixture(t *testing.T, desc runtime.Descriptor) *fixture {
	t.Helper()

	f := &fixture{
		registry: process.NewRegistry(&process.RegistryOptions{SettleTimeout: time.Second}),
		tracker:  tracker.New(filepath.Join(t.TempDir(), "processes.json"), nil),
		vcs:      &fakeVCS{},
		parent:   t.TempDir(),
	}

	orch, err := New(Options{
		Registry:    f.registry,
		Tracker:     f.tracker,
		VCS:         f.vcs,
		Locator:     runtime.LocatorFunc(func(context.Context, string) (runtime.Descriptor, error) { return desc.Clone(), nil }),
		GracePeriod: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.orch = orch

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return f
}

func (f *fixture) create(t *testing.T, projectID string) *Run {
	t.Helper()
	run, err := f.orch.Create(context.Background(), CreateRequest{
		ProjectID: projectID,
		RepoURL:   repoURL,
		Mode:      ModeCloneSubfolder,
		Target:    f.parent,
	})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", projectID, err)
	}
	return run
}

func waitRun(t *testing.T, run *Run) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := run.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run %s did not finish; state %s", run.ID, run.State())
	}
	return err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func stepStatus(info RunInfo, step State) string {
	for _, rec := range info.Steps {
		if rec.Step == step {
			return rec.Status
		}
	}
	return ""
}

func TestCreateStartsServerAndDetectsReadiness(t *testing.T) {
	f := newFixture(t, descriptor(
		"echo installing",
		"",
		"echo building...; sleep 0.2; echo compiled successfully; sleep 0.2; echo http://localhost:4321/; exec sleep 30",
	))

	readyCh := make(chan any, 4)
	unsub := events.SubscribeToChannel[events.ServerReadyEvent](f.orch.Bus(), readyCh)
	defer unsub()

	run := f.create(t, "web")
	if err := waitRun(t, run); err != nil {
		t.Fatalf("run error = %v", err)
	}
	if run.Status() != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", run.Status())
	}

	info := run.Info()
	if got := stepStatus(info, StateBranchSetup); got != stepSkipped {
		t.Errorf("BranchSetup = %q, want skipped (no branch requested)", got)
	}
	if got := stepStatus(info, StateBuild); got != stepSkipped {
		t.Errorf("Build = %q, want skipped", got)
	}
	if got := stepStatus(info, StateDependencyInstall); got != stepSuccess {
		t.Errorf("DependencyInstall = %q, want success", got)
	}

	var ready events.ServerReadyEvent
	select {
	case ev := <-readyCh:
		ready = ev.(events.ServerReadyEvent)
	case <-time.After(10 * time.Second):
		t.Fatal("no ServerReadyEvent")
	}
	if ready.ProjectID != "web" {
		t.Errorf("ready project = %q", ready.ProjectID)
	}

	waitFor(t, "Running state", func() bool { return run.State() == StateRunning })

	waitFor(t, "server URL", func() bool {
		st, ok := f.orch.ServerStatus("web")
		return ok && st.Port == 4321
	})
	st, _ := f.orch.ServerStatus("web")
	if st.PID != ready.PID {
		t.Errorf("ready pid %d != server pid %d", ready.PID, st.PID)
	}
	if st.URL != "http://localhost:4321/" {
		t.Errorf("URL = %q", st.URL)
	}

	waitFor(t, "tracked port", func() bool {
		e, ok := f.tracker.Get(st.PID)
		return ok && e.Port != nil && *e.Port == 4321
	})
	e, _ := f.tracker.Get(st.PID)
	if e.ProjectID != "web" || e.Command != "sh" || e.Cwd != run.Workspace() {
		t.Errorf("tracker entry = %+v", e)
	}
}

func TestServerExitRemovesTrackerEntry(t *testing.T) {
	f := newFixture(t, descriptor("", "", "echo ready; exec sleep 30"))

	exitCh := make(chan any, 4)
	unsub := events.SubscribeToChannel[events.ServerExitedEvent](f.orch.Bus(), exitCh)
	defer unsub()

	run := f.create(t, "api")
	if err := waitRun(t, run); err != nil {
		t.Fatalf("run error = %v", err)
	}
	st, ok := f.orch.ServerStatus("api")
	if !ok {
		t.Fatal("no server status")
	}
	if _, ok := f.tracker.Get(st.PID); !ok {
		t.Fatal("server pid not tracked")
	}

	res, err := f.orch.Cancel(context.Background(), CancelRequest{ProjectID: "api"})
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !slices.Equal(res.Stopped, []string{"api:server"}) {
		t.Errorf("Stopped = %v", res.Stopped)
	}

	select {
	case ev := <-exitCh:
		exited := ev.(events.ServerExitedEvent)
		if !exited.Requested || exited.PID != st.PID {
			t.Errorf("exit event = %+v", exited)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no ServerExitedEvent")
	}

	if len(f.tracker.ForProject("api")) != 0 {
		t.Error("tracker still holds the project's server")
	}
	if _, ok := f.orch.ServerStatus("api"); ok {
		t.Error("server status still reported after exit")
	}
	if run.Status() != StatusSucceeded {
		t.Errorf("finished run status changed to %s", run.Status())
	}
}

func TestCancelDuringBuild(t *testing.T) {
	tests := []struct {
		name        string
		deleteFiles bool
	}{
		{"keep files", false},
		{"delete files", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, descriptor("", "echo compiling; exec sleep 30", "exec sleep 30"))

			run := f.create(t, "shop")
			waitFor(t, "build process", func() bool { return f.registry.Has(process.Key("shop", roleBuild)) })

			res, err := f.orch.Cancel(context.Background(), CancelRequest{
				ProjectID:     "shop",
				WorkspacePath: run.Workspace(),
				DeleteFiles:   tt.deleteFiles,
			})
			if err != nil {
				t.Fatalf("Cancel() error = %v", err)
			}

			if !slices.Contains(res.Stopped, "shop:build") {
				t.Errorf("Stopped = %v, want shop:build", res.Stopped)
			}
			if res.RunID != run.ID {
				t.Errorf("RunID = %q, want %q", res.RunID, run.ID)
			}
			if run.Status() != StatusCancelled || run.State() != StateCancelled {
				t.Errorf("run = %s/%s, want cancelled/Cancelled", run.Status(), run.State())
			}
			if !errors.Is(run.Err(), ErrCancelled) {
				t.Errorf("run.Err() = %v, want ErrCancelled", run.Err())
			}
			if !run.CancelRequested() {
				t.Error("cancel flag not set")
			}
			if f.registry.Len() != 0 {
				t.Errorf("registry still has %v", f.registry.Keys())
			}

			_, statErr := os.Stat(run.Workspace())
			if tt.deleteFiles {
				if !res.Deleted || !os.IsNotExist(statErr) {
					t.Errorf("workspace should be deleted: deleted=%v stat=%v", res.Deleted, statErr)
				}
			} else {
				if res.Deleted || statErr != nil {
					t.Errorf("workspace should be kept: deleted=%v stat=%v", res.Deleted, statErr)
				}
			}
		})
	}
}

func TestCancelDuringServerStart(t *testing.T) {
	desc := descriptor("", "", "exec sleep 30")
	tests := []struct {
		name  string
		start func(f *fixture, run *Run, out *stepOutput) error
	}{
		{"after spawn", func(f *fixture, run *Run, out *stepOutput) error {
			run.requestCancel()
			return f.orch.startServer(run, desc, t.TempDir(), out)
		}},
		{"step returns nil", func(_ *fixture, run *Run, _ *stepOutput) error {
			run.requestCancel()
			return nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, desc)
			run := newRun("site", KindOpen, func() {})

			err := f.orch.step(context.Background(), run, StateServerStarting, func(out *stepOutput) error {
				return tt.start(f, run, out)
			})
			f.orch.complete(run, err)

			if run.Status() != StatusCancelled || run.State() != StateCancelled {
				t.Errorf("run = %s/%s, want cancelled/Cancelled", run.Status(), run.State())
			}
			if !errors.Is(run.Err(), ErrCancelled) {
				t.Errorf("run.Err() = %v, want ErrCancelled", run.Err())
			}
			waitFor(t, "server stopped", func() bool { return f.registry.Len() == 0 })
			waitFor(t, "tracker emptied", func() bool { return len(f.tracker.All()) == 0 })
			waitFor(t, "server status cleared", func() bool {
				_, ok := f.orch.ServerStatus("site")
				return !ok
			})
		})
	}
}

func TestCancelRemovesPartialCheckout(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))

	dir := filepath.Join(f.parent, "half")
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := f.orch.Cancel(context.Background(), CancelRequest{
		ProjectID:      "half",
		WorkspacePath:  f.parent,
		RepoFolderName: "half",
	})
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !res.PartialRemoved {
		t.Error("partial checkout not reported as removed")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("partial checkout still exists: %v", err)
	}
}

func TestSubfolderNaming(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))

	var got []string
	for i := range 3 {
		run := f.create(t, fmt.Sprintf("p%d", i))
		if err := waitRun(t, run); err != nil {
			t.Fatalf("run %d error = %v", i, err)
		}
		got = append(got, filepath.Base(run.Workspace()))
	}

	want := []string{"repo", "repo-1", "repo-2"}
	if !slices.Equal(got, want) {
		t.Errorf("workspaces = %v, want %v", got, want)
	}
}

func TestPartialCheckoutRemovedBeforeClone(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))

	partial := filepath.Join(f.parent, "repo")
	if err := os.MkdirAll(filepath.Join(partial, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	run := f.create(t, "retry")
	if err := waitRun(t, run); err != nil {
		t.Fatalf("run error = %v", err)
	}
	if run.Workspace() != partial {
		t.Errorf("workspace = %q, want the partial path %q reused", run.Workspace(), partial)
	}
	if dirs := f.vcs.clonedDirs(); !slices.Equal(dirs, []string{partial}) {
		t.Errorf("clones = %v", dirs)
	}
}

func TestPartialCheckoutAtSuffixReused(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))

	complete := filepath.Join(f.parent, "repo")
	if err := f.vcs.Clone(context.Background(), repoURL, complete, io.Discard); err != nil {
		t.Fatal(err)
	}
	partial := filepath.Join(f.parent, "repo-1")
	if err := os.MkdirAll(filepath.Join(partial, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	run := f.create(t, "retry")
	if err := waitRun(t, run); err != nil {
		t.Fatalf("run error = %v", err)
	}
	if run.Workspace() != partial {
		t.Errorf("workspace = %q, want the partial path %q reused", run.Workspace(), partial)
	}
	if _, err := os.Stat(filepath.Join(complete, ".git", "history")); err != nil {
		t.Errorf("complete checkout was touched: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.parent, "repo-2")); !os.IsNotExist(err) {
		t.Errorf("repo-2 should not exist: %v", err)
	}
}

func TestCloneIntoRequiresEmptyTarget(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))

	target := filepath.Join(f.parent, "occupied")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	run, err := f.orch.Create(context.Background(), CreateRequest{
		ProjectID: "into", RepoURL: repoURL, Mode: ModeCloneInto, Target: target,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err = waitRun(t, run)
	if !errors.Is(err, ErrTargetNotEmpty) {
		t.Fatalf("run error = %v, want ErrTargetNotEmpty", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StateAcquiringWorkspace {
		t.Errorf("error = %v, want StepError at AcquiringWorkspace", err)
	}
	if run.State() != StateFailed {
		t.Errorf("state = %s, want Failed", run.State())
	}
}

func TestIdentityFailureIsWarning(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))
	f.vcs.identityErr = errors.New("config locked")

	run, err := f.orch.Create(context.Background(), CreateRequest{
		ProjectID: "id", RepoURL: repoURL, Mode: ModeCloneSubfolder, Target: f.parent,
		Branch: "feature", CreateBranch: true,
		Identity: vcs.Identity{Name: "Dev", Email: "dev@example.com"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := waitRun(t, run); err != nil {
		t.Fatalf("run error = %v", err)
	}

	info := run.Info()
	if got := stepStatus(info, StateIdentityConfiguration); got != stepWarning {
		t.Errorf("IdentityConfiguration = %q, want warning", got)
	}
	if got := stepStatus(info, StateBranchSetup); got != stepSuccess {
		t.Errorf("BranchSetup = %q, want success", got)
	}
	if run.Status() != StatusSucceeded {
		t.Errorf("status = %s", run.Status())
	}
}

func TestInstallFailure(t *testing.T) {
	f := newFixture(t, descriptor("echo fetching; echo registry unreachable >&2; exit 3", "echo never", "exec sleep 30"))

	statusCh := make(chan any, 16)
	unsub := events.SubscribeToChannel[events.StepStatusEvent](f.orch.Bus(), statusCh)
	defer unsub()

	run := f.create(t, "broken")
	err := waitRun(t, run)

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("run error = %v, want *StepError", err)
	}
	if stepErr.Step != StateDependencyInstall {
		t.Errorf("Step = %s", stepErr.Step)
	}
	if !strings.Contains(stepErr.Output, "fetching") || !strings.Contains(stepErr.Output, "registry unreachable") {
		t.Errorf("Output = %q", stepErr.Output)
	}
	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) || exitErr.Exit.Code != 3 {
		t.Errorf("error = %v, want ExitError with code 3", err)
	}
	if run.State() != StateFailed || run.Status() != StatusFailed {
		t.Errorf("run = %s/%s", run.Status(), run.State())
	}
	if f.registry.Len() != 0 {
		t.Errorf("registry = %v, want empty", f.registry.Keys())
	}
	if stepStatus(run.Info(), StateBuild) != "" {
		t.Error("Build should not run after a failed install")
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-statusCh:
			st := ev.(events.StepStatusEvent)
			if st.Step == string(StateDependencyInstall) {
				if st.Status != events.StatusFailure {
					t.Errorf("install status = %q", st.Status)
				}
				return
			}
		case <-deadline:
			t.Fatal("no StepStatusEvent for DependencyInstall")
		}
	}
}

func TestMissingExecutableFailsStep(t *testing.T) {
	desc := runtime.Descriptor{
		InstallCommand: "devnode-test-missing-binary",
		StartCommand:   "sleep", StartArgs: []string{"30"},
	}
	f := newFixture(t, desc)

	run := f.create(t, "missing")
	err := waitRun(t, run)

	var spawnErr *process.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("run error = %v, want SpawnError", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("error = %v, want exec.ErrNotFound", err)
	}
}

func TestOneActiveRunPerProject(t *testing.T) {
	f := newFixture(t, descriptor("exec sleep 30", "", "exec sleep 30"))

	run := f.create(t, "solo")
	_, err := f.orch.Create(context.Background(), CreateRequest{
		ProjectID: "solo", RepoURL: repoURL, Mode: ModeCloneSubfolder, Target: f.parent,
	})
	if !errors.Is(err, ErrRunActive) {
		t.Errorf("second Create error = %v, want ErrRunActive", err)
	}

	if active, ok := f.orch.ActiveRun("solo"); !ok || active != run {
		t.Error("ActiveRun did not return the running run")
	}

	if _, err := f.orch.Cancel(context.Background(), CancelRequest{ProjectID: "solo"}); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, ok := f.orch.ActiveRun("solo"); ok {
		t.Error("run still active after cancel")
	}
	if found, ok := f.orch.FindRun(run.ID); !ok || found != run {
		t.Error("cancelled run not retained in history")
	}
}

func TestReopenReplacesServer(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))

	dir := filepath.Join(f.parent, "existing")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	first, err := f.orch.Open(context.Background(), OpenRequest{ProjectID: "blog", Dir: dir})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := waitRun(t, first); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	if first.Kind != KindOpen || stepStatus(first.Info(), StateBranchSetup) != stepSkipped {
		t.Errorf("open run = %+v", first.Info())
	}
	before, _ := f.orch.ServerStatus("blog")

	second, err := f.orch.Reopen(context.Background(), OpenRequest{ProjectID: "blog", Dir: dir})
	if err != nil {
		t.Fatalf("Reopen() error = %v", err)
	}
	if err := waitRun(t, second); err != nil {
		t.Fatalf("reopen run error = %v", err)
	}

	after, ok := f.orch.ServerStatus("blog")
	if !ok || after.PID == before.PID {
		t.Errorf("server not replaced: before %d after %d", before.PID, after.PID)
	}
	if process.Alive(before.PID) {
		t.Errorf("old server %d still alive", before.PID)
	}
	if entries := f.tracker.ForProject("blog"); len(entries) != 1 || entries[0].PID != after.PID {
		t.Errorf("tracked = %+v", entries)
	}
	if len(f.vcs.clonedDirs()) != 0 {
		t.Error("reuse mode must not clone")
	}
}

func TestReapOrphans(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))

	orphan := exec.Command("sleep", "30")
	orphan.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := orphan.Start(); err != nil {
		t.Fatal(err)
	}
	go func() { _ = orphan.Wait() }()
	t.Cleanup(func() { _ = orphan.Process.Kill() })

	f.tracker.Add(tracker.Entry{PID: orphan.Process.Pid, ProjectID: "old", Command: "sleep", StartTime: time.Now().UnixMilli()})
	f.tracker.Add(tracker.Entry{PID: 999999, ProjectID: "gone", Command: "node"})

	probe := func(pid int, sig string) tracker.ProbeResult {
		if pid == orphan.Process.Pid {
			return tracker.OSProbe(pid, sig)
		}
		return tracker.ProbeResult{}
	}

	kept := f.orch.ReapOrphans(probe, false)
	if len(kept.Pruned) != 1 || kept.Pruned[0].PID != 999999 {
		t.Errorf("Pruned = %+v", kept.Pruned)
	}
	if len(kept.Kept) != 1 || kept.Kept[0].PID != orphan.Process.Pid {
		t.Errorf("Kept = %+v", kept.Kept)
	}

	res := f.orch.ReapOrphans(probe, true)
	if len(res.Terminated) != 1 || res.Terminated[0].PID != orphan.Process.Pid {
		t.Fatalf("Terminated = %+v", res.Terminated)
	}
	if _, ok := f.tracker.Get(orphan.Process.Pid); ok {
		t.Error("terminated orphan still tracked")
	}
	waitFor(t, "orphan exit", func() bool { return !process.Alive(orphan.Process.Pid) })
}

func TestSetReadinessMarkers(t *testing.T) {
	f := newFixture(t, descriptor("", "", "echo Server started on http://127.0.0.1:8080; exec sleep 30"))
	f.orch.SetReadinessMarkers([]string{"Server started"})

	run := f.create(t, "custom")
	if err := waitRun(t, run); err != nil {
		t.Fatalf("run error = %v", err)
	}
	waitFor(t, "Running state", func() bool { return run.State() == StateRunning })

	st, ok := f.orch.ServerStatus("custom")
	if !ok || !st.Ready || st.Port != 8080 {
		t.Errorf("status = %+v", st)
	}
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, descriptor("", "", "exec sleep 30"))
	ctx := context.Background()

	cases := []CreateRequest{
		{RepoURL: repoURL, Mode: ModeCloneInto, Target: f.parent},
		{ProjectID: "x", Mode: ModeCloneInto, Target: f.parent},
		{ProjectID: "x", RepoURL: repoURL, Mode: ModeCloneSubfolder},
		{ProjectID: "x", RepoURL: repoURL, Mode: Mode(9), Target: f.parent},
	}
	for i, req := range cases {
		if _, err := f.orch.Create(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("case %d: error = %v, want ErrInvalidRequest", i, err)
		}
	}
	if _, err := f.orch.Cancel(ctx, CancelRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Cancel error = %v, want ErrInvalidRequest", err)
	}
}
