package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNodeLocator(t *testing.T) {
	tests := []struct {
		name      string
		lockfile  string
		pkg       string
		wantPM    string
		wantBuild bool
		wantStart []string
	}{
		{
			name:      "npm dev",
			pkg:       `{"name":"site","scripts":{"build":"vite build","dev":"vite"}}`,
			wantPM:    "npm",
			wantBuild: true,
			wantStart: []string{"run", "dev"},
		},
		{
			name:      "pnpm start only",
			lockfile:  "pnpm-lock.yaml",
			pkg:       `{"scripts":{"start":"node server.js"}}`,
			wantPM:    "pnpm",
			wantStart: []string{"run", "start"},
		},
		{
			name:      "yarn prefers dev over start",
			lockfile:  "yarn.lock",
			pkg:       `{"scripts":{"start":"next start","dev":"next dev","build":"next build"}}`,
			wantPM:    "yarn",
			wantBuild: true,
			wantStart: []string{"run", "dev"},
		},
		{
			name:      "bun",
			lockfile:  "bun.lockb",
			pkg:       `{"scripts":{"dev":"bun run index.ts"}}`,
			wantPM:    "bun",
			wantStart: []string{"run", "dev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "package.json", tt.pkg)
			if tt.lockfile != "" {
				writeFile(t, dir, tt.lockfile, "")
			}

			d, err := NodeLocator{}.Locate(context.Background(), dir)
			if err != nil {
				t.Fatalf("Locate() error = %v", err)
			}
			if d.InstallCommand != tt.wantPM || d.StartCommand != tt.wantPM {
				t.Errorf("commands = %q/%q, want %q", d.InstallCommand, d.StartCommand, tt.wantPM)
			}
			if d.HasBuild() != tt.wantBuild {
				t.Errorf("HasBuild() = %v, want %v", d.HasBuild(), tt.wantBuild)
			}
			if !slices.Equal(d.StartArgs, tt.wantStart) {
				t.Errorf("StartArgs = %v, want %v", d.StartArgs, tt.wantStart)
			}
		})
	}
}

func TestNodeLocatorErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := (NodeLocator{}).Locate(context.Background(), dir); !errors.Is(err, ErrNoManifest) {
		t.Errorf("empty dir: error = %v, want ErrNoManifest", err)
	}

	writeFile(t, dir, "package.json", `{"scripts":{"test":"jest"}}`)
	if _, err := (NodeLocator{}).Locate(context.Background(), dir); !errors.Is(err, ErrNoStartCommand) {
		t.Errorf("no scripts: error = %v, want ErrNoStartCommand", err)
	}

	writeFile(t, dir, "package.json", `{not json`)
	if _, err := (NodeLocator{}).Locate(context.Background(), dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestOverridesApply(t *testing.T) {
	base := Descriptor{
		InstallCommand: "npm", InstallArgs: []string{"install"},
		BuildCommand: "npm", BuildArgs: []string{"run", "build"},
		StartCommand: "npm", StartArgs: []string{"run", "dev"},
		Env: map[string]string{"BROWSER": "none"},
	}

	o := Overrides{
		Install: "npm ci --prefer-offline",
		Build:   "-",
		Start:   `sh -c "npm run dev -- --port 4000"`,
		Env:     map[string]string{"PORT": "4000"},
	}
	d, err := o.Apply(base)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if d.InstallCommand != "npm" || !slices.Equal(d.InstallArgs, []string{"ci", "--prefer-offline"}) {
		t.Errorf("install = %s %v", d.InstallCommand, d.InstallArgs)
	}
	if d.HasBuild() {
		t.Error("build should be disabled")
	}
	if d.StartCommand != "sh" || !slices.Equal(d.StartArgs, []string{"-c", "npm run dev -- --port 4000"}) {
		t.Errorf("start = %s %v", d.StartCommand, d.StartArgs)
	}
	if d.Env["PORT"] != "4000" || d.Env["BROWSER"] != "none" {
		t.Errorf("env = %v", d.Env)
	}
	if _, ok := base.Env["PORT"]; ok {
		t.Error("Apply mutated the base descriptor")
	}

	if _, err := (Overrides{Start: `"unterminated`}).Apply(base); err == nil {
		t.Error("expected error for unclosed quote")
	}
}

func TestWithOverridesWithoutManifest(t *testing.T) {
	dir := t.TempDir()

	loc := WithOverrides(NodeLocator{}, Overrides{Start: "python3 -m http.server 8000"})
	d, err := loc.Locate(context.Background(), dir)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if d.StartCommand != "python3" || d.HasInstall() || d.HasBuild() {
		t.Errorf("descriptor = %+v", d)
	}

	loc = WithOverrides(NodeLocator{}, Overrides{Build: "make"})
	if _, err := loc.Locate(context.Background(), dir); !errors.Is(err, ErrNoManifest) {
		t.Errorf("error = %v, want ErrNoManifest", err)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"npm run dev", []string{"npm", "run", "dev"}, false},
		{"  npm   install  ", []string{"npm", "install"}, false},
		{`sh -c 'echo "hi there"'`, []string{"sh", "-c", `echo "hi there"`}, false},
		{`echo a\ b`, []string{"echo", "a b"}, false},
		{`printf ""`, []string{"printf", ""}, false},
		{`echo 'a\b'`, []string{"echo", `a\b`}, false},
		{`echo "a\b" "\$HOME" "q\"q"`, []string{"echo", `a\b`, "$HOME", `q"q`}, false},
		{`echo 'it'\''s'`, []string{"echo", "it's"}, false},
		{"", nil, false},
		{`echo "oops`, nil, true},
	}

	for _, tt := range tests {
		got, err := SplitCommand(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitCommand(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("SplitCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
