package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/devnode/cmd"
	"github.com/smazurov/devnode/internal/api"
	"github.com/smazurov/devnode/internal/config"
	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/tracker"
	"github.com/smazurov/devnode/internal/updater"
	"github.com/smazurov/devnode/internal/version"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *cmd.Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.LoggingConfig())
		logger := logging.GetLogger("main")

		var (
			engine  *cmd.Engine
			server  *api.Server
			watcher *config.Watcher[config.Settings]
		)

		hooks.OnStart(func() {
			logger.Info("Starting devnode", "version", version.String())

			settings, err := config.LoadSettings(opts.Config)
			if err != nil {
				logger.Error("Failed to load settings", "config", opts.Config, "error", err)
				os.Exit(1)
			}

			engine, err = cmd.NewEngine(opts, settings)
			if err != nil {
				logger.Error("Failed to initialize", "error", err)
				os.Exit(1)
			}
			engine.Orchestrator.ReapOrphans(tracker.OSProbe, opts.ReapOnStart)

			watcher = config.NewWatcher(opts.Config, config.LoadSettings, logging.GetLogger("config"))
			watcher.OnReload(engine.ApplySettings)
			if err := watcher.Start(); err != nil {
				logger.Warn("Config watcher disabled", "error", err)
				watcher = nil
			}

			apiOpts := &api.Options{
				AuthUsername: opts.AuthUsername,
				AuthPassword: opts.AuthPassword,
				Pipeline:     engine.Orchestrator,
				Processes:    engine.Registry,
				Tracked:      engine.Tracker,
				Bus:          engine.Bus,
				CORSOrigins:  splitList(opts.CORSOrigins),
			}
			if opts.MetricsEnabled {
				apiOpts.PrometheusHandler = promhttp.Handler()
			}
			if opts.UpdateEnabled {
				uo := opts.UpdaterOptions()
				uo.Busy = engine.Orchestrator.ActiveProjects
				svc, err := updater.NewService(uo)
				if err != nil {
					logger.Warn("Self-update unavailable", "error", err)
				} else {
					apiOpts.Updater = svc
				}
			}
			server = api.NewServer(apiOpts)

			ln, err := listener(opts.Port)
			if err != nil {
				logger.Error("Failed to listen", "addr", opts.Port, "error", err)
				os.Exit(1)
			}

			if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
				logger.Debug("sd_notify failed", "error", err)
			}

			if err := server.Serve(ln); err != nil {
				logger.Error("HTTP server failed", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if server != nil {
				if err := server.Stop(); err != nil {
					logger.Error("Error stopping HTTP server", "error", err)
				}
			}
			if watcher != nil {
				_ = watcher.Stop()
			}

			// Stop runs and child processes after the API stops accepting requests
			if engine != nil {
				ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout())
				defer cancel()
				if err := engine.Orchestrator.Shutdown(ctx); err != nil {
					logger.Warn("Shutdown did not complete", "error", err)
				}
			}
		})
	})

	cli.Root().Use = "devnode"
	cli.Root().Short = "Workspace pipeline and dev server supervisor"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateOpenCmd())
	cli.Root().AddCommand(cmd.CreateCloneCmd())
	cli.Root().AddCommand(cmd.CreatePsCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	cli.Run()
}

// listener prefers a socket passed by systemd socket activation.
func listener(addr string) (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err == nil && len(listeners) > 0 && listeners[0] != nil {
		return listeners[0], nil
	}
	return net.Listen("tcp", addr)
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
