// Package workspace resolves and cleans up checkout directories.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// maxSuffix bounds the repo-N search in NextAvailable.
const maxSuffix = 1000

// HistoryChecker reports whether a directory holds a repository with commits.
type HistoryChecker interface {
	HasHistory(ctx context.Context, dir string) (bool, error)
}

// PartialWorkspaceError reports a checkout that could not be cleaned up.
type PartialWorkspaceError struct {
	Path string
	Err  error
}

func (e *PartialWorkspaceError) Error() string {
	return fmt.Sprintf("partial workspace %s: %v", e.Path, e.Err)
}

func (e *PartialWorkspaceError) Unwrap() error {
	return e.Err
}

// RepoNameFromURL derives a folder name from a clone URL:
// "https://host/org/site.git" and "git@host:org/site.git" both give "site".
func RepoNameFromURL(url string) string {
	u := strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndexAny(u, ":/"); i >= 0 {
		u = u[i+1:]
	}
	u = strings.TrimSuffix(u, ".git")
	if u == "" || u == "." || u == ".." {
		return "repo"
	}
	return path.Clean(u)
}

// Candidate returns the i-th folder name NextAvailable considers:
// parent/name for 0, parent/name-i otherwise.
func Candidate(parent, name string, i int) string {
	if i == 0 {
		return filepath.Join(parent, name)
	}
	return filepath.Join(parent, name+"-"+strconv.Itoa(i))
}

// NextAvailable returns the first of parent/name, parent/name-1, parent/name-2, ...
// that does not exist.
func NextAvailable(parent, name string) (string, error) {
	for i := 0; i <= maxSuffix; i++ {
		candidate := Candidate(parent, name, i)
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no free folder name for %s under %s", name, parent)
}

// IsEmptyDir reports whether dir is absent or an empty directory.
func IsEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// IsPartial reports whether dir looks like an interrupted clone: it has a
// .git directory but no commit history.
func IsPartial(ctx context.Context, hc HistoryChecker, dir string) (bool, error) {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}

	ok, err := hc.HasHistory(ctx, dir)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// RemoveIfPartial deletes dir when IsPartial holds and reports whether it did.
func RemoveIfPartial(ctx context.Context, hc HistoryChecker, dir string) (bool, error) {
	partial, err := IsPartial(ctx, hc, dir)
	if err != nil {
		return false, &PartialWorkspaceError{Path: dir, Err: err}
	}
	if !partial {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, &PartialWorkspaceError{Path: dir, Err: err}
	}
	return true, nil
}

// Remove deletes dir and everything under it. Refuses the filesystem root
// and relative paths.
func Remove(dir string) error {
	clean := filepath.Clean(dir)
	if !filepath.IsAbs(clean) || clean == string(filepath.Separator) {
		return fmt.Errorf("refusing to remove %q", dir)
	}
	if err := os.RemoveAll(clean); err != nil {
		return fmt.Errorf("failed to remove %s: %w", clean, err)
	}
	return nil
}
