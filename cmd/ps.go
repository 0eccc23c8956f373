package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/tracker"
)

// Liveness of a tracked entry as shown by ps.
const (
	liveRunning = "running"
	liveStale   = "stale"
	liveReused  = "pid-reused"
)

// TrackedRow is one line of ps output.
type TrackedRow struct {
	tracker.Entry
	Status string `json:"status"`
}

// CreatePsCmd creates the ps command, which lists tracked dev servers.
func CreatePsCmd() *cobra.Command {
	var asJSON, prune bool

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List dev servers recorded in the tracker file",
		Long:  `Shows every tracked server with its project, port and whether the pid is still alive and still runs the recorded command.`,
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			logging.Initialize(opts.LoggingConfig())

			t := tracker.New(opts.TrackerPath(), logging.GetLogger("tracker"))
			t.Load()
			if prune {
				for _, e := range t.ValidateAgainstOS(tracker.OSProbe) {
					fmt.Fprintf(cmd.ErrOrStderr(), "pruned stale entry %d (%s)\n", e.PID, e.ProjectID)
				}
			}

			rows := trackedRows(t.All(), tracker.OSProbe)
			if asJSON {
				exitOnError(cmd, writeRowsJSON(cmd.OutOrStdout(), rows))
				return
			}
			exitOnError(cmd, writeRowsTable(cmd.OutOrStdout(), rows, time.Now()))
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&prune, "prune", false, "Drop entries whose process is gone or replaced")
	return cmd
}

func trackedRows(entries map[int]tracker.Entry, probe tracker.Probe) []TrackedRow {
	rows := make([]TrackedRow, 0, len(entries))
	for _, e := range entries {
		status := liveRunning
		res := probe(e.PID, e.Command)
		switch {
		case !res.Exists:
			status = liveStale
		case !res.MatchesSignature:
			status = liveReused
		}
		rows = append(rows, TrackedRow{Entry: e, Status: status})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProjectID != rows[j].ProjectID {
			return rows[i].ProjectID < rows[j].ProjectID
		}
		return rows[i].PID < rows[j].PID
	})
	return rows
}

func writeRowsJSON(w io.Writer, rows []TrackedRow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeRowsTable(w io.Writer, rows []TrackedRow, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tPID\tPORT\tSTATUS\tUPTIME\tCOMMAND\tCWD")
	for _, r := range rows {
		port := "-"
		if r.Port != nil {
			port = strconv.Itoa(*r.Port)
		}
		uptime := "-"
		if r.Status == liveRunning && r.StartTime > 0 {
			uptime = now.Sub(r.StartedAt()).Truncate(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n", r.ProjectID, r.PID, port, r.Status, uptime, r.Command, r.Cwd)
	}
	return tw.Flush()
}
