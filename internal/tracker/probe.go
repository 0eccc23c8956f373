package tracker

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/smazurov/devnode/internal/process"
)

// ProbeResult is what the OS says about a recorded pid.
type ProbeResult struct {
	Exists           bool
	MatchesSignature bool
}

// Probe inspects pid, checking that it still runs something matching signature.
type Probe func(pid int, signature string) ProbeResult

// OSProbe checks liveness with signal 0 and compares the executable name
// against /proc/<pid>/cmdline. Where /proc is not available, a live pid is
// assumed to match.
func OSProbe(pid int, signature string) ProbeResult {
	if !process.Alive(pid) {
		return ProbeResult{}
	}
	cmdline, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return ProbeResult{Exists: true, MatchesSignature: true}
	}
	return ProbeResult{Exists: true, MatchesSignature: cmdlineMatches(cmdline, signature)}
}

// cmdlineMatches reports whether any NUL separated argument of cmdline has
// the same base name as signature. Interpreters such as node or sh show up as
// argv[0] with the script later, so every argument is considered. Tools that
// rewrite their process title (npm shows "npm run dev" as a single argument)
// are matched on the first word of the argument.
func cmdlineMatches(cmdline []byte, signature string) bool {
	if signature == "" {
		return true
	}
	want := filepath.Base(signature)
	for _, arg := range bytes.Split(bytes.TrimRight(cmdline, "\x00"), []byte{0}) {
		if filepath.Base(string(arg)) == want {
			return true
		}
		if fields := bytes.Fields(arg); len(fields) > 1 && filepath.Base(string(fields[0])) == want {
			return true
		}
	}
	return false
}
