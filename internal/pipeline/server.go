package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smazurov/devnode/internal/events"
	"github.com/smazurov/devnode/internal/metrics"
	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/readiness"
	"github.com/smazurov/devnode/internal/runtime"
	"github.com/smazurov/devnode/internal/tracker"
)

// server is the long-running process of a project.
type server struct {
	run       *Run
	projectID string
	command   string
	args      []string
	dir       string
	latch     *readiness.Latch

	// started is closed once pid is set or spawning failed. Output and exit
	// callbacks wait on it.
	started   chan struct{}
	pid       int
	startedAt time.Time
}

// ServerStatus describes a project's server.
type ServerStatus struct {
	ProjectID string    `json:"project_id"`
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	Dir       string    `json:"dir"`
	Ready     bool      `json:"ready" doc:"A readiness marker has been seen"`
	URL       string    `json:"url,omitempty"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

func (s *server) status() ServerStatus {
	st := ServerStatus{
		ProjectID: s.projectID,
		RunID:     s.run.ID,
		PID:       s.pid,
		Command:   strings.TrimSpace(s.command + " " + strings.Join(s.args, " ")),
		Dir:       s.dir,
		Ready:     s.latch.Ready(),
		URL:       s.latch.URL(),
		StartedAt: s.startedAt,
	}
	if port, ok := readiness.PortFromURL(st.URL); ok {
		st.Port = port
	}
	return st
}

// startServer spawns the project's server and returns as soon as it is
// running. Readiness is reported later from its output.
func (o *Orchestrator) startServer(run *Run, desc runtime.Descriptor, dir string, out *stepOutput) error {
	if desc.StartCommand == "" {
		return runtime.ErrNoStartCommand
	}

	srv := &server{
		run:       run,
		projectID: run.ProjectID,
		command:   desc.StartCommand,
		args:      desc.StartArgs,
		dir:       dir,
		latch:     readiness.NewLatch(o.detector.Load()),
		started:   make(chan struct{}),
	}

	key := process.Key(run.ProjectID, roleServer)
	h, err := o.registry.Spawn(process.Spec{
		Key:     key,
		Command: desc.StartCommand,
		Args:    desc.StartArgs,
		Dir:     dir,
		Env:     desc.Env,
		Sink: func(_, stream string, chunk []byte) {
			o.serverOutput(srv, stream, chunk)
		},
		OnExit: func(_ *process.Handle, exit process.Exit) {
			o.serverExited(srv, exit)
		},
	})
	if err != nil {
		close(srv.started)
		return err
	}

	srv.pid = h.PID
	srv.startedAt = h.StartedAt

	o.mu.Lock()
	o.servers[run.ProjectID] = srv
	o.mu.Unlock()

	o.tracker.Add(tracker.Entry{
		PID:       h.PID,
		ProjectID: run.ProjectID,
		StartTime: h.StartedAt.UnixMilli(),
		Command:   desc.StartCommand,
		Cwd:       dir,
	})
	close(srv.started)

	// A Cancel that raced the spawn has already swept the registry and
	// missed this key.
	if run.CancelRequested() {
		if err := o.registry.Terminate(key, o.grace); err != nil {
			o.logger.Error("Failed to stop server of cancelled run", "project_id", run.ProjectID, "pid", h.PID, "error", err)
		}
		return ErrCancelled
	}

	out.note(fmt.Sprintf("server started (pid %d)", h.PID))
	return nil
}

func (o *Orchestrator) serverOutput(srv *server, stream string, chunk []byte) {
	<-srv.started

	o.bus.Publish(events.ServerOutputEvent{
		ProjectID: srv.projectID,
		Stream:    stream,
		Text:      string(chunk),
	})

	becameReady, foundURL := srv.latch.Feed(string(chunk))
	if foundURL {
		if port, ok := readiness.PortFromURL(srv.latch.URL()); ok {
			o.tracker.SetPort(srv.pid, port)
		}
	}
	if !becameReady {
		return
	}

	metrics.ServerReady()
	o.logger.Info("Server ready", "project_id", srv.projectID, "pid", srv.pid, "url", srv.latch.URL())
	o.bus.Publish(events.ServerReadyEvent{
		ProjectID: srv.projectID,
		URL:       srv.latch.URL(),
		PID:       srv.pid,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	o.promote(srv.run)
}

// promote moves a succeeded run to Running once. It is called both when
// readiness is seen and when the run finishes, whichever comes last wins.
func (o *Orchestrator) promote(run *Run) {
	if run.markRunning() {
		o.publishState(run, StateRunning)
	}
}

func (o *Orchestrator) serverExited(srv *server, exit process.Exit) {
	<-srv.started

	o.tracker.Remove(srv.pid)

	o.mu.Lock()
	if o.servers[srv.projectID] == srv {
		delete(o.servers, srv.projectID)
	}
	o.mu.Unlock()

	if !exit.Requested {
		o.logger.Warn("Server exited unexpectedly", "project_id", srv.projectID, "pid", srv.pid,
			"outcome", exit.Kind.String(), "exit_code", exit.Code)
	}

	o.bus.Publish(events.ServerExitedEvent{
		ProjectID: srv.projectID,
		PID:       srv.pid,
		Outcome:   exit.Kind.String(),
		ExitCode:  exit.Code,
		Requested: exit.Requested,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (o *Orchestrator) server(projectID string) (*server, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	srv, ok := o.servers[projectID]
	return srv, ok
}

// ServerStatus returns the status of the project's live server.
func (o *Orchestrator) ServerStatus(projectID string) (ServerStatus, bool) {
	srv, ok := o.server(projectID)
	if !ok {
		return ServerStatus{}, false
	}
	return srv.status(), true
}

// Servers returns the status of every live server ordered by project.
func (o *Orchestrator) Servers() []ServerStatus {
	o.mu.Lock()
	list := make([]*server, 0, len(o.servers))
	for _, srv := range o.servers {
		list = append(list, srv)
	}
	o.mu.Unlock()

	out := make([]ServerStatus, 0, len(list))
	for _, srv := range list {
		out = append(out, srv.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}
