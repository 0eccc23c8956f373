package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/updater"
)

// CreateUpdateCmd creates the self-update command.
func CreateUpdateCmd() *cobra.Command {
	var checkOnly, rollback bool

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Replace devnode with the latest release",
		Long: `Checks GitHub for a newer release, backs up the current binary and installs the update. ` +
			`--rollback restores the backup instead.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			logging.Initialize(opts.LoggingConfig())

			uo := opts.UpdaterOptions()
			// The CLI exits on its own; only a configured unit is restarted.
			if uo.Restarter == nil {
				uo.Restarter = updater.RestarterFunc(func(context.Context) error { return nil })
			}
			svc, err := updater.NewService(uo)
			exitOnError(cmd, err)
			if !svc.IsEnabled() {
				exitOnError(cmd, fmt.Errorf("self-update disabled: %s", svc.DisabledReason()))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			out := cmd.OutOrStdout()

			if rollback {
				exitOnError(cmd, svc.Rollback(ctx))
				fmt.Fprintf(out, "Restored %s\n", svc.GetStatus(ctx).BackupVersion)
				return
			}

			info, err := svc.CheckForUpdate(ctx)
			exitOnError(cmd, err)
			if !info.UpdateAvailable {
				fmt.Fprintf(out, "devnode %s is up to date\n", info.CurrentVersion)
				return
			}
			fmt.Fprintf(out, "Update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if checkOnly {
				return
			}

			exitOnError(cmd, svc.ApplyUpdate(ctx))
			fmt.Fprintf(out, "Installed %s\n", info.LatestVersion)
			// Give a configured unit restart time to run before exiting.
			time.Sleep(time.Second)
		}),
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update exists")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the previous binary")
	return cmd
}
