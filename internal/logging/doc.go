// Package logging provides structured logging with per-module log level configuration.
//
// The logging system is a thin layer over log/slog:
//   - Logs go to stdout (text or json) when stdout is usable
//   - Logs go to the systemd journal when journald is reachable
//   - Both when both are available, unless stdout is itself the journal
//     stream of a systemd service
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"pipeline": "debug",
//			"process":  "warn",
//		},
//	})
//
// Then take a module logger:
//
//	logger := logging.GetLogger("pipeline").With("project_id", id)
//	logger.Info("Step finished", "step", step)
//
// Module levels override the global level for that module only and can be
// changed at runtime with SetModuleLevel.
//
// Journal entries carry SYSLOG_IDENTIFIER=devnode and upper-cased attribute
// fields, so they can be filtered with e.g.
//
//	journalctl -t devnode MODULE=pipeline PROJECT_ID=web
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	pipeline = "debug"
//	tracker = "warn"
package logging
