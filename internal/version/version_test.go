package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetUsesLdflags(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldVersion, oldCommit, oldDate })

	Version, GitCommit, BuildDate = "v1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z"

	info := Get()
	if info.Version != "v1.2.3" || info.GitCommit != "0123456789abcdef" || info.BuildDate != "2026-01-02T03:04:05Z" {
		t.Errorf("Get() = %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q", info.Platform)
	}
	if got := String(); got != "v1.2.3 (0123456)" {
		t.Errorf("String() = %q", got)
	}
}

func TestStringWithoutCommit(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version, GitCommit = "dev", "unknown"
	got := String()
	if !strings.HasPrefix(got, "dev") {
		t.Errorf("String() = %q", got)
	}
}
