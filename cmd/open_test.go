package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/smazurov/devnode/internal/events"
)

func TestPrinterStepStatus(t *testing.T) {
	cases := []struct {
		name string
		ev   events.StepStatusEvent
		want []string
	}{
		{"success", events.StepStatusEvent{Step: "Build", Status: events.StatusSuccess}, []string{"Build ok"}},
		{"warning", events.StepStatusEvent{Step: "IdentityConfiguration", Status: events.StatusSuccess, Error: "no identity"},
			[]string{"IdentityConfiguration ok", "no identity"}},
		{"failure", events.StepStatusEvent{Step: "DependencyInstall", Status: events.StatusFailure, Error: "exit status 1"},
			[]string{"DependencyInstall FAILED", "exit status 1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := &printer{out: &buf}
			p.stepStatus(tc.ev)
			for _, w := range tc.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
		})
	}
}

func TestPrinterPassesOutputThrough(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{out: &buf}
	p.stepOutput(events.StepOutputEvent{Text: "added 12 packages\n"})
	p.serverOutput(events.ServerOutputEvent{Text: "VITE ready\n"})
	p.serverReady(events.ServerReadyEvent{URL: "http://localhost:5173/"})

	out := buf.String()
	for _, w := range []string{"added 12 packages\n", "VITE ready\n", "server ready at http://localhost:5173/"} {
		if !strings.Contains(out, w) {
			t.Errorf("output %q missing %q", out, w)
		}
	}
}
