package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/devnode/internal/api/models"
	"github.com/smazurov/devnode/internal/events"
	"github.com/smazurov/devnode/internal/logging"
	"github.com/smazurov/devnode/internal/pipeline"
	"github.com/smazurov/devnode/internal/process"
	"github.com/smazurov/devnode/internal/tracker"
	"github.com/smazurov/devnode/internal/updater"
	"github.com/smazurov/devnode/internal/version"
)

// Pipeline is the orchestrator surface the API drives.
type Pipeline interface {
	Create(ctx context.Context, req pipeline.CreateRequest) (*pipeline.Run, error)
	Open(ctx context.Context, req pipeline.OpenRequest) (*pipeline.Run, error)
	Reopen(ctx context.Context, req pipeline.OpenRequest) (*pipeline.Run, error)
	Cancel(ctx context.Context, req pipeline.CancelRequest) (pipeline.CancelResult, error)
	ActiveRun(projectID string) (*pipeline.Run, bool)
	FindRun(id string) (*pipeline.Run, bool)
	Runs() []pipeline.RunInfo
	ServerStatus(projectID string) (pipeline.ServerStatus, bool)
	Servers() []pipeline.ServerStatus
	ReapOrphans(probe tracker.Probe, terminate bool) pipeline.ReapResult
}

// ProcessLister lists the processes owned by this session.
type ProcessLister interface {
	List() []process.Info
}

// TrackedStore exposes the persisted server entries.
type TrackedStore interface {
	All() map[int]tracker.Entry
	ForProject(projectID string) []tracker.Entry
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Pipeline          Pipeline
	Processes         ProcessLister
	Tracked           TrackedStore
	Bus               *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
	// CORSOrigins restricts cross-origin access. Empty permits any origin.
	CORSOrigins []string
	// Updater enables the self-update endpoints when set.
	Updater updater.Service
	// Probe checks tracked pids for the reap endpoint. Defaults to tracker.OSProbe.
	Probe tracker.Probe
}

// Server is the Huma v2 control API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	pipeline   Pipeline
	eventBus   *events.Bus
	logger     *slog.Logger
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare security.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		credentials, problem := requestCredentials(ctx)
		if problem != "" {
			s.unauthorized(ctx, problem)
			return
		}
		if credentials == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		user, pass, ok := strings.Cut(credentials, ":")
		if !ok {
			s.unauthorized(ctx, "Invalid credentials format")
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !userOK || !passOK {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// requestCredentials returns "user:pass" from the Authorization header or,
// for EventSource clients that cannot set headers, the auth query parameter.
// A non-empty problem is the message to reject the request with.
func requestCredentials(ctx huma.Context) (credentials, problem string) {
	var encoded string
	if header := ctx.Header("Authorization"); header != "" {
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "", "Invalid authentication type"
		}
		encoded = header[len(prefix):]
	} else {
		encoded = ctx.Query("auth")
	}
	if encoded == "" {
		return "", ""
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "Invalid credentials format"
	}
	return string(decoded), ""
}

func (s *Server) unauthorized(ctx huma.Context, msg string) {
	ctx.SetHeader("WWW-Authenticate", `Basic realm="devnode"`)
	_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if len(opts.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("devnode API", "1.0.0")
	config.Info.Description = "Workspace acquisition, dependency install, build and dev server supervision"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	if opts.Probe == nil {
		opts.Probe = tracker.OSProbe
	}

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		pipeline: opts.Pipeline,
		eventBus: opts.Bus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	return server
}

// GetMux returns the underlying HTTP ServeMux.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener, such as one passed by systemd socket activation.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting devnode API server", "addr", ln.Addr().String())
	s.logger.Info("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the listener and all connections, including event streams.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				Modified:  info.Modified,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerProcessRoutes()
	s.registerProjectRoutes()
	s.registerSSERoutes()
	s.registerUpdateRoutes()
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}

// pipelineError maps orchestrator errors onto HTTP statuses.
func pipelineError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, pipeline.ErrRunActive):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable("request interrupted", err)
	default:
		return huma.Error500InternalServerError("pipeline operation failed", err)
	}
}
