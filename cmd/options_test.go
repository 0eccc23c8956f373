package cmd

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/devnode/internal/process"
)

func TestOptionsDurations(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"5s", 5 * time.Second},
		{"", process.DefaultGracePeriod},
		{"bogus", process.DefaultGracePeriod},
		{"-1s", process.DefaultGracePeriod},
	}
	for _, tc := range cases {
		opts := &Options{GracePeriod: tc.raw}
		if got := opts.Grace(); got != tc.want {
			t.Errorf("Grace(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	if got := (&Options{ShutdownWindow: "1m"}).ShutdownTimeout(); got != time.Minute {
		t.Errorf("ShutdownTimeout = %v", got)
	}
}

func TestTrackerPath(t *testing.T) {
	if got := (&Options{TrackerFile: "/tmp/x.json"}).TrackerPath(); got != "/tmp/x.json" {
		t.Errorf("explicit path = %q", got)
	}
	got := (&Options{}).TrackerPath()
	if filepath.Base(got) != "processes.json" || !strings.Contains(got, "devnode") {
		t.Errorf("default path = %q", got)
	}
}

func TestLoggingConfigModules(t *testing.T) {
	opts := &Options{LoggingLevel: "warn", LoggingFormat: "json", LoggingPipeline: "debug"}
	cfg := opts.LoggingConfig()
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Modules["pipeline"] != "debug" {
		t.Errorf("pipeline level = %q", cfg.Modules["pipeline"])
	}
}
