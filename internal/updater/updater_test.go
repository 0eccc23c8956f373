package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/devnode/internal/logging"
)

type fakeSource struct {
	found bool
	err   error
}

func (f *fakeSource) DetectLatest(context.Context, selfupdate.Repository) (*selfupdate.Release, bool, error) {
	return nil, f.found, f.err
}

func (f *fakeSource) UpdateTo(context.Context, *selfupdate.Release, string) error {
	return errors.New("not expected")
}

func newTestService(t *testing.T, src releaseSource, exe string) *service {
	t.Helper()
	svc, err := newService(&Options{
		Repository: "smazurov/devnode",
		BackupDir:  filepath.Join(t.TempDir(), "backup"),
		Restarter:  RestarterFunc(func(context.Context) error { return nil }),
	}, src, func() (string, error) { return exe, nil }, logging.GetLogger("updater"))
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func errCode(t *testing.T, err error) Code {
	t.Helper()
	code := CodeOf(err)
	if code == "" {
		t.Fatalf("error %v is not an updater error", err)
	}
	return code
}

func TestErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("apply: %w", newError(ErrCodeNoBackup, "no backup available for rollback", nil))
	if !errors.Is(err, &Error{Code: ErrCodeNoBackup}) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, &Error{Code: ErrCodeDisabled}) {
		t.Error("errors.Is matched a different code")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf(plain error) should be empty")
	}
}

func TestCheckForUpdateSourceError(t *testing.T) {
	svc := newTestService(t, &fakeSource{err: errors.New("rate limited")}, "")

	_, err := svc.CheckForUpdate(context.Background())
	if got := errCode(t, err); got != ErrCodeCheckFailed {
		t.Fatalf("code = %s, want %s", got, ErrCodeCheckFailed)
	}
	st := svc.GetStatus(context.Background())
	if st.State != StateError || st.Error == "" {
		t.Errorf("status = %+v, want error state", st)
	}
}

func TestCheckForUpdateNoReleases(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, "")

	_, err := svc.CheckForUpdate(context.Background())
	if got := errCode(t, err); got != ErrCodeNotFound {
		t.Fatalf("code = %s, want %s", got, ErrCodeNotFound)
	}
	if svc.GetStatus(context.Background()).LastChecked == nil {
		t.Error("last checked not recorded")
	}
}

func TestApplyUpdatePropagatesCheckFailure(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, "")

	err := svc.ApplyUpdate(context.Background())
	if got := errCode(t, err); got != ErrCodeNotFound {
		t.Fatalf("code = %s, want %s", got, ErrCodeNotFound)
	}
}

func TestRollbackWithoutBackup(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, "")

	err := svc.Rollback(context.Background())
	if got := errCode(t, err); got != ErrCodeNoBackup {
		t.Fatalf("code = %s, want %s", got, ErrCodeNoBackup)
	}
}

func TestDisabledService(t *testing.T) {
	svc := &service{state: StateIdle, disabled: "read-only", logger: logging.GetLogger("updater")}

	if svc.IsEnabled() || svc.DisabledReason() != "read-only" {
		t.Fatalf("enabled = %v, reason = %q", svc.IsEnabled(), svc.DisabledReason())
	}
	for _, err := range []error{
		func() error { _, err := svc.CheckForUpdate(context.Background()); return err }(),
		svc.ApplyUpdate(context.Background()),
		svc.Rollback(context.Background()),
	} {
		if got := errCode(t, err); got != ErrCodeDisabled {
			t.Errorf("code = %s, want %s", got, ErrCodeDisabled)
		}
	}
	if st := svc.GetStatus(context.Background()); st.BackupAvailable {
		t.Errorf("status = %+v", st)
	}
}

func TestBackupCreateAndRestore(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "devnode")
	if err := os.WriteFile(exe, []byte("v1"), 0o755); err != nil {
		t.Fatal(err)
	}

	logger := logging.GetLogger("updater")
	m, err := newBackupManager(filepath.Join(dir, "backup"), logger)
	if err != nil {
		t.Fatal(err)
	}
	if m.hasBackup() {
		t.Fatal("fresh manager reports a backup")
	}
	if err := m.create(exe, "v1.0.0"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(exe, []byte("v2"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.restore(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v1" {
		t.Errorf("restored content = %q, want v1", data)
	}

	reloaded, err := newBackupManager(filepath.Join(dir, "backup"), logger)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.version() != "v1.0.0" {
		t.Errorf("reloaded version = %q", reloaded.version())
	}
}

func TestRollbackRestoresAndRestarts(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "devnode")
	if err := os.WriteFile(exe, []byte("old"), 0o755); err != nil {
		t.Fatal(err)
	}

	restarted := make(chan struct{}, 1)
	svc, err := newService(&Options{
		BackupDir: filepath.Join(dir, "backup"),
		Restarter: RestarterFunc(func(context.Context) error {
			restarted <- struct{}{}
			return nil
		}),
	}, &fakeSource{}, func() (string, error) { return exe, nil }, logging.GetLogger("updater"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.backups.create(exe, "v0.9.0"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(exe, []byte("new"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := svc.Rollback(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-restarted

	data, _ := os.ReadFile(exe)
	if string(data) != "old" {
		t.Errorf("binary = %q, want old", data)
	}
	if st := svc.GetStatus(context.Background()); st.State != StateRestarting || st.BackupVersion != "v0.9.0" {
		t.Errorf("status = %+v", st)
	}
}

func TestApplyRefusedWhileRunsActive(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, "")
	svc.busy = func() []string { return []string{"site"} }

	for _, err := range []error{svc.ApplyUpdate(context.Background()), svc.Rollback(context.Background())} {
		if got := errCode(t, err); got != ErrCodeBusy {
			t.Errorf("code = %s, want %s", got, ErrCodeBusy)
		}
	}
	st := svc.GetStatus(context.Background())
	if st.State != StateIdle || len(st.ActiveProjects) != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestRestoreRejectsDamagedBackup(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "devnode")
	if err := os.WriteFile(exe, []byte("good"), 0o755); err != nil {
		t.Fatal(err)
	}
	m, err := newBackupManager(filepath.Join(dir, "backup"), logging.GetLogger("updater"))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.create(exe, "v1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.binaryPath(), []byte("corrupt"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(exe, []byte("current"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := m.restore(); err == nil {
		t.Fatal("restore accepted a damaged backup")
	}
	if data, _ := os.ReadFile(exe); string(data) != "current" {
		t.Errorf("executable = %q, want it untouched", data)
	}
}
