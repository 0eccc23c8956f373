package updater

import (
	"context"
	"time"
)

// State represents the current state of the update process.
type State string

// Update states.
const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateAvailable   State = "available"
	StateDownloading State = "downloading"
	StateApplying    State = "applying"
	StateRestarting  State = "restarting"
	StateError       State = "error"
	StateRolledBack  State = "rolled_back"
)

// Service replaces the running devnode binary with a newer release.
type Service interface {
	// CheckForUpdate checks for available updates without downloading.
	CheckForUpdate(ctx context.Context) (*UpdateInfo, error)

	// ApplyUpdate backs up the binary, replaces it and schedules a restart.
	ApplyUpdate(ctx context.Context) error

	// Rollback restores the backed up binary and schedules a restart.
	Rollback(ctx context.Context) error

	// GetStatus returns current update state and info.
	GetStatus(ctx context.Context) *Status

	// IsEnabled is false when the binary's directory is not writable.
	IsEnabled() bool

	// DisabledReason returns why the service is disabled, empty if enabled.
	DisabledReason() string
}

// Restarter restarts the running devnode after its binary changed.
type Restarter interface {
	Restart(ctx context.Context) error
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(ctx context.Context) error

// Restart calls f.
func (f RestarterFunc) Restart(ctx context.Context) error { return f(ctx) }

// UpdateInfo contains information about an available update.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitempty"`
	AssetSize       int       `json:"asset_size,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status contains the current state of the updater.
type Status struct {
	State           State      `json:"state"`
	CurrentVersion  string     `json:"current_version"`
	TargetVersion   string     `json:"target_version,omitempty"`
	Error           string     `json:"error,omitempty"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	BackupAvailable bool       `json:"backup_available"`
	BackupVersion   string     `json:"backup_version,omitempty"`
	ActiveProjects  []string   `json:"active_projects,omitempty"`
}

// Options contains configuration for the updater service.
type Options struct {
	Repository string // GitHub repo slug (e.g., "smazurov/devnode")
	Prerelease bool   // Whether to include prereleases

	// Restarter runs after a binary swap. Defaults to SIGTERM to self, which
	// a supervisor such as systemd turns into a restart.
	Restarter Restarter

	// BackupDir holds the previous binary. Default: <user cache dir>/devnode/backup.
	BackupDir string

	// Busy lists projects whose pipeline runs would be cut off by a restart.
	// Apply and Rollback are refused while it is non-empty.
	Busy func() []string
}
