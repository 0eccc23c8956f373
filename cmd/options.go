// Package cmd holds the devnode CLI: the options shared by every command and
// the subcommands added next to the default serve command.
package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/systemd"
	"github.com/smazurov/devnode/internal/updater"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"devnode.toml"`

	// Server settings
	Port        string `help:"Address to listen on" short:"p" default:":8095" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigins string `help:"Comma separated origins allowed to call the API (empty allows any)" default:"" toml:"server.cors_origins" env:"SERVER_CORS_ORIGINS"`

	// Process settings
	TrackerFile    string `help:"Tracked server file (default: <user cache dir>/devnode/processes.json)" default:"" toml:"process.tracker_file" env:"PROCESS_TRACKER_FILE"`
	GracePeriod    string `help:"Time between SIGTERM and SIGKILL" default:"3s" toml:"process.grace_period" env:"PROCESS_GRACE_PERIOD"`
	ReapOnStart    bool   `help:"Stop dev servers left running by a previous session" default:"true" toml:"process.reap_on_start" env:"PROCESS_REAP_ON_START"`
	ShutdownWindow string `help:"How long shutdown waits for active runs" default:"10s" toml:"process.shutdown_window" env:"PROCESS_SHUTDOWN_WINDOW"`

	// Workspace settings
	WorkspaceRoot string `help:"Default parent folder for clones" default:"" toml:"workspace.root" env:"WORKSPACE_ROOT"`
	GitBinary     string `help:"git executable" default:"git" toml:"workspace.git_binary" env:"WORKSPACE_GIT_BINARY"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Update settings
	UpdateEnabled    bool   `help:"Expose self-update endpoints" default:"true" toml:"update.enabled" env:"UPDATE_ENABLED"`
	UpdateRepository string `help:"GitHub repository releases are fetched from" default:"smazurov/devnode" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Include prereleases" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`
	UpdateUnit       string `help:"systemd unit restarted after an update (empty: send SIGTERM to self)" default:"" toml:"update.unit" env:"UPDATE_UNIT"`
	UpdateUserUnit   bool   `help:"The update unit runs on the user bus" default:"true" toml:"update.user_unit" env:"UPDATE_USER_UNIT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingProcess  string `help:"Process registry logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingTracker  string `help:"Tracker logging level" default:"info" toml:"logging.tracker" env:"LOGGING_TRACKER"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingVCS      string `help:"Version control logging level" default:"info" toml:"logging.vcs" env:"LOGGING_VCS"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP     string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingUpdater  string `help:"Updater logging level" default:"info" toml:"logging.updater" env:"LOGGING_UPDATER"`
}

// LoggingConfig builds the logging configuration from the options.
func (o *Options) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"process":  o.LoggingProcess,
			"tracker":  o.LoggingTracker,
			"pipeline": o.LoggingPipeline,
			"vcs":      o.LoggingVCS,
			"api":      o.LoggingAPI,
			"http":     o.LoggingHTTP,
			"updater":  o.LoggingUpdater,
		},
	}
}

// UpdaterOptions builds the self-update configuration. A configured unit is
// restarted over D-Bus; otherwise the updater signals its own process.
func (o *Options) UpdaterOptions() *updater.Options {
	uo := &updater.Options{
		Repository: o.UpdateRepository,
		Prerelease: o.UpdatePrerelease,
	}
	if o.UpdateUnit != "" {
		uo.Restarter = systemd.UnitRestarter{Unit: o.UpdateUnit, User: o.UpdateUserUnit}
	}
	return uo
}

// Grace returns the parsed grace period, falling back to the registry default.
func (o *Options) Grace() time.Duration {
	return parseDuration(o.GracePeriod, process.DefaultGracePeriod)
}

// ShutdownTimeout returns the parsed shutdown window.
func (o *Options) ShutdownTimeout() time.Duration {
	return parseDuration(o.ShutdownWindow, 10*time.Second)
}

// TrackerPath resolves the tracker file location.
func (o *Options) TrackerPath() string {
	if o.TrackerFile != "" {
		return o.TrackerFile
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "devnode", "processes.json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
