package pipeline

import (
	"bytes"
	"sync"

	"github.com/smazurov/devnode/internal/events"
)

// stepOutput captures everything a step produces and forwards it to the bus
// as StepOutputEvents. It is an io.Writer for version control progress and
// a process.OutputSink for child processes.
type stepOutput struct {
	bus       *events.Bus
	projectID string
	runID     string
	step      State

	mu      sync.Mutex
	buf     bytes.Buffer
	warning string
}

func newStepOutput(bus *events.Bus, run *Run, step State) *stepOutput {
	return &stepOutput{bus: bus, projectID: run.ProjectID, runID: run.ID, step: step}
}

// Write implements io.Writer.
func (s *stepOutput) Write(p []byte) (int, error) {
	s.emit(events.StreamStdout, string(p))
	return len(p), nil
}

// sink implements process.OutputSink.
func (s *stepOutput) sink(_, stream string, chunk []byte) {
	s.emit(stream, string(chunk))
}

func (s *stepOutput) note(msg string) {
	s.emit(events.StreamPipeline, msg+"\n")
}

func (s *stepOutput) warn(msg string) {
	s.mu.Lock()
	s.warning = msg
	s.mu.Unlock()
	s.emit(events.StreamPipeline, "warning: "+msg+"\n")
}

func (s *stepOutput) emit(stream, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	s.buf.WriteString(text)
	s.mu.Unlock()

	s.bus.Publish(events.StepOutputEvent{
		ProjectID: s.projectID,
		RunID:     s.runID,
		Step:      string(s.step),
		Stream:    stream,
		Text:      text,
	})
}

func (s *stepOutput) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *stepOutput) warned() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}
