package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/devnode/internal/readiness"
	"github.com/smazurov/devnode/internal/runtime"
	"github.com/smazurov/devnode/internal/vcs"
)

// Settings are the structured tables of the config file that do not map to
// CLI flags:
//
//	[readiness]
//	markers = ["ready", "Local:"]
//
//	[runtime]
//	install = "pnpm install --frozen-lockfile"
//	build = "-"
//	start = "pnpm dev --host"
//	env = { PORT = "4000" }
//
//	[identity]
//	name = "Dev Node"
//	email = "dev@example.com"
type Settings struct {
	Readiness ReadinessSettings `toml:"readiness"`
	Runtime   runtime.Overrides `toml:"runtime"`
	Identity  vcs.Identity      `toml:"identity"`
}

// ReadinessSettings configures server readiness detection.
type ReadinessSettings struct {
	Markers []string `toml:"markers"`
}

// DefaultSettings returns settings using the built-in readiness markers.
func DefaultSettings() Settings {
	return Settings{
		Readiness: ReadinessSettings{Markers: append([]string(nil), readiness.DefaultMarkers...)},
	}
}

// LoadSettings reads the structured tables of path. A missing file yields
// DefaultSettings; a malformed one is an error so a bad edit never replaces
// working settings during a reload.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var parsed Settings
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := parsed.validate(); err != nil {
		return Settings{}, err
	}

	if len(parsed.Readiness.Markers) == 0 {
		parsed.Readiness = s.Readiness
	}
	return parsed, nil
}

func (s Settings) validate() error {
	for i, m := range s.Readiness.Markers {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("readiness.markers[%d] is empty", i)
		}
	}
	for name, cmd := range map[string]string{
		"runtime.install": s.Runtime.Install,
		"runtime.build":   s.Runtime.Build,
		"runtime.start":   s.Runtime.Start,
	} {
		if cmd == "" || (cmd == "-" && name == "runtime.build") {
			continue
		}
		if cmd == "-" {
			return fmt.Errorf("%s cannot be disabled", name)
		}
		if _, err := runtime.SplitCommand(cmd); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
