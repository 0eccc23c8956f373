package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// lockfiles maps lockfile names to package managers, in detection order.
var lockfiles = []struct {
	file    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lock", "bun"},
	{"bun.lockb", "bun"},
	{"package-lock.json", "npm"},
}

type packageJSON struct {
	Name    string            `json:"name"`
	Scripts map[string]string `json:"scripts"`
}

// NodeLocator derives a descriptor from package.json and the lockfile
// present in the workspace.
type NodeLocator struct{}

// Locate implements Locator.
func (NodeLocator) Locate(ctx context.Context, dir string) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return Descriptor{}, ErrNoManifest
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read package.json: %w", err)
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return Descriptor{}, fmt.Errorf("failed to parse package.json: %w", err)
	}

	pm := DetectPackageManager(dir)
	d := Descriptor{
		Name:           pkg.Name,
		InstallCommand: pm,
		InstallArgs:    []string{"install"},
		Env:            map[string]string{"BROWSER": "none"},
	}

	if _, ok := pkg.Scripts["build"]; ok {
		d.BuildCommand = pm
		d.BuildArgs = []string{"run", "build"}
	}

	switch {
	case pkg.Scripts["dev"] != "":
		d.StartCommand = pm
		d.StartArgs = []string{"run", "dev"}
	case pkg.Scripts["start"] != "":
		d.StartCommand = pm
		d.StartArgs = []string{"run", "start"}
	default:
		return Descriptor{}, ErrNoStartCommand
	}

	return d, nil
}

// DetectPackageManager picks a package manager from the lockfile in dir,
// defaulting to npm.
func DetectPackageManager(dir string) string {
	for _, lf := range lockfiles {
		if _, err := os.Stat(filepath.Join(dir, lf.file)); err == nil {
			return lf.manager
		}
	}
	return "npm"
}
