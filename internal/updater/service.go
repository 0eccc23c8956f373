package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/version"
)

// restartDelay lets the API answer before the process goes away.
const restartDelay = 500 * time.Millisecond

// releaseSource is the part of *selfupdate.Updater the service uses.
type releaseSource interface {
	DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

type service struct {
	repository selfupdate.Repository
	source     releaseSource
	backups    *backupManager
	restarter  Restarter
	busy       func() []string
	execPath   func() (string, error)
	logger     logging.Logger

	// disabled holds the reason the service cannot update; empty when enabled.
	disabled string

	mu        sync.Mutex
	state     State
	release   *selfupdate.Release
	checkedAt *time.Time
	lastErr   error
}

// NewService creates the updater. When the executable's directory is not
// writable the returned service is disabled rather than failing.
func NewService(opts *Options) (Service, error) {
	logger := logging.GetLogger("updater")

	if reason := unwritableReason(); reason != "" {
		logger.Warn("Update service disabled", "reason", reason)
		return &service{state: StateIdle, disabled: reason, logger: logger}, nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	return newService(opts, updater, selfupdate.ExecutablePath, logger)
}

func newService(opts *Options, source releaseSource, execPath func() (string, error), logger logging.Logger) (*service, error) {
	dir := opts.BackupDir
	if dir == "" {
		d, err := defaultBackupDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	backups, err := newBackupManager(dir, logger)
	if err != nil {
		logger.Warn("Rollback unavailable", "error", err)
	}

	s := &service{
		repository: selfupdate.ParseSlug(opts.Repository),
		source:     source,
		backups:    backups,
		restarter:  opts.Restarter,
		busy:       opts.Busy,
		execPath:   execPath,
		logger:     logger,
		state:      StateIdle,
	}
	if s.restarter == nil {
		s.restarter = RestarterFunc(signalSelf)
	}
	if s.busy == nil {
		s.busy = func() []string { return nil }
	}
	return s, nil
}

// unwritableReason probes the executable's directory with a temp file.
func unwritableReason() string {
	exe, err := os.Executable()
	if err == nil {
		exe, err = filepath.EvalSymlinks(exe)
	}
	if err != nil {
		return fmt.Sprintf("cannot locate executable: %v", err)
	}

	dir := filepath.Dir(exe)
	f, err := os.CreateTemp(dir, ".devnode.update.*")
	if err != nil {
		return fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return ""
}

func (s *service) IsEnabled() bool { return s.disabled == "" }

func (s *service) DisabledReason() string { return s.disabled }

// CheckForUpdate asks GitHub for the latest release. A "dev" build is
// always considered outdated.
func (s *service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := s.enter(StateChecking, StateIdle, StateAvailable, StateError, StateRolledBack); err != nil {
		return nil, err
	}

	release, found, err := s.source.DetectLatest(ctx, s.repository)
	now := time.Now()
	s.mu.Lock()
	s.checkedAt = &now
	s.mu.Unlock()
	switch {
	case err != nil:
		return nil, s.fail(newError(ErrCodeCheckFailed, "failed to check for updates", err))
	case !found:
		return nil, s.fail(newError(ErrCodeNotFound, "repository not found or has no releases", nil))
	}

	info := describe(release)
	s.mu.Lock()
	if info.UpdateAvailable {
		s.release, s.state = release, StateAvailable
	} else {
		s.release, s.state = nil, StateIdle
	}
	s.mu.Unlock()
	return info, nil
}

func describe(release *selfupdate.Release) *UpdateInfo {
	current := version.Version
	info := &UpdateInfo{CurrentVersion: current, LatestVersion: release.Version()}
	if current != "dev" && !release.GreaterThan(current) {
		return info
	}
	info.UpdateAvailable = true
	info.ReleaseNotes = release.ReleaseNotes
	info.ReleaseURL = release.URL
	info.PublishedAt = release.PublishedAt
	info.AssetSize = release.AssetByteSize
	return info
}

// ApplyUpdate backs up the current binary, installs the latest release and
// schedules a restart. Refused while pipeline runs are in progress, since the
// restart would cut them off. A failed install restores the backup.
func (s *service) ApplyUpdate(ctx context.Context) error {
	if err := s.idle(); err != nil {
		return err
	}

	if s.currentState() != StateAvailable {
		info, err := s.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if !info.UpdateAvailable {
			return newError(ErrCodeNoUpdate, "already running the latest release", nil)
		}
	}
	if err := s.enter(StateDownloading, StateAvailable); err != nil {
		return err
	}

	s.mu.Lock()
	release := s.release
	s.mu.Unlock()

	exe, err := s.execPath()
	if err != nil {
		return s.fail(newError(ErrCodeApplyFailed, "cannot locate executable", err))
	}
	if s.backups != nil {
		if err := s.backups.create(exe, version.Version); err != nil {
			return s.fail(newError(ErrCodeBackupFailed, "failed to create backup", err))
		}
	}

	s.setState(StateApplying)
	if err := s.source.UpdateTo(ctx, release, exe); err != nil {
		failure := s.fail(newError(ErrCodeApplyFailed, "failed to apply update", err))
		s.restoreAfterFailure()
		return failure
	}

	s.logger.Info("Update applied, restarting", "from", version.Version, "to", release.Version())
	s.scheduleRestart()
	return nil
}

// Rollback restores the backed up binary and schedules a restart.
func (s *service) Rollback(_ context.Context) error {
	if err := s.idle(); err != nil {
		return err
	}
	if s.backups == nil || !s.backups.hasBackup() {
		return newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := s.backups.restore(); err != nil {
		return s.fail(newError(ErrCodeRollbackFailed, "failed to restore backup", err))
	}

	s.setState(StateRolledBack)
	s.logger.Info("Rollback completed, restarting", "version", s.backups.version())
	s.scheduleRestart()
	return nil
}

func (s *service) GetStatus(_ context.Context) *Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &Status{
		State:          s.state,
		CurrentVersion: version.Version,
		LastChecked:    s.checkedAt,
		ActiveProjects: s.activeProjects(),
	}
	if s.release != nil {
		status.TargetVersion = s.release.Version()
	}
	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	if s.backups != nil {
		status.BackupAvailable = s.backups.hasBackup()
		status.BackupVersion = s.backups.version()
	}
	return status
}

func (s *service) activeProjects() []string {
	if s.busy == nil {
		return nil
	}
	return s.busy()
}

func (s *service) guard() error {
	if s.disabled != "" {
		return newError(ErrCodeDisabled, s.disabled, nil)
	}
	return nil
}

// idle is guard plus the requirement that no pipeline run is in progress.
func (s *service) idle() error {
	if err := s.guard(); err != nil {
		return err
	}
	if projects := s.activeProjects(); len(projects) > 0 {
		return newError(ErrCodeBusy, "pipeline runs in progress: "+strings.Join(projects, ", "), nil)
	}
	return nil
}

// enter moves to state when the current state is one of from.
func (s *service) enter(state State, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(from, s.state) {
		return newError(ErrCodeInvalidState, fmt.Sprintf("cannot move to %s from %s", state, s.state), nil)
	}
	s.logger.Debug("State transition", "from", s.state, "to", state)
	s.state = state
	s.lastErr = nil
	return nil
}

func (s *service) setState(state State) {
	s.mu.Lock()
	s.logger.Debug("State transition", "from", s.state, "to", state)
	s.state = state
	s.mu.Unlock()
}

func (s *service) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// fail records err and moves to the error state.
func (s *service) fail(err *Error) error {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// restoreAfterFailure puts the backup back after a failed install. The
// recorded error stays visible in the status.
func (s *service) restoreAfterFailure() {
	if s.backups == nil || !s.backups.hasBackup() {
		s.logger.Error("No backup available for automatic rollback")
		return
	}
	if err := s.backups.restore(); err != nil {
		s.logger.Error("Failed to restore backup", "error", err)
		return
	}
	s.setState(StateRolledBack)
	s.logger.Info("Automatic rollback completed")
}

func (s *service) scheduleRestart() {
	s.setState(StateRestarting)
	time.AfterFunc(restartDelay, func() {
		if err := s.restarter.Restart(context.Background()); err != nil {
			s.logger.Error("Restart failed", "error", err)
		}
	})
}

// signalSelf sends SIGTERM to the current process.
func signalSelf(context.Context) error {
	return syscall.Kill(os.Getpid(), syscall.SIGTERM)
}
