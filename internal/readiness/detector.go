// Package readiness recognises when a dev server has finished starting by
// scanning its free-text output.
//
// Text markers are fragile: a toolchain that rewords its banner stops being
// detected. The marker set is therefore configuration, not code.
package readiness

import (
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// DefaultMarkers are matched case-sensitively against server output.
var DefaultMarkers = []string{
	"ready",
	"compiled successfully",
	"listening on",
	"Local:",
}

// urlPattern matches scheme://host:port with an optional trailing slash.
var urlPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://(?:\[[0-9a-fA-F:]+\]|[A-Za-z0-9.-]+):[0-9]{1,5}/?`)

// Result is the outcome of scanning one chunk.
type Result struct {
	Ready  bool
	Marker string // the marker that matched, when Ready
	URL    string // first endpoint URL in the chunk, if any
}

// Detector scans output chunks. It holds no per-process state and is safe
// for concurrent use.
type Detector struct {
	markers []string
}

// New returns a detector for markers. With no markers, DefaultMarkers are used.
// Empty strings are ignored.
func New(markers ...string) *Detector {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	d := &Detector{}
	for _, m := range markers {
		if m != "" {
			d.markers = append(d.markers, m)
		}
	}
	return d
}

// Markers returns a copy of the configured markers.
func (d *Detector) Markers() []string {
	return slices.Clone(d.markers)
}

// Scan inspects one output chunk. Terminal escape sequences are stripped
// first so colourised banners still match. The first marker in configured
// order wins.
func (d *Detector) Scan(chunk string) Result {
	text := ansi.Strip(chunk)

	var res Result
	for _, m := range d.markers {
		if strings.Contains(text, m) {
			res.Ready = true
			res.Marker = m
			break
		}
	}
	res.URL = urlPattern.FindString(text)
	return res
}
