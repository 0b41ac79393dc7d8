package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/attendai-core/internal/audit"
	"github.com/nerrad567/attendai-core/internal/guard"
	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
	"github.com/nerrad567/attendai-core/internal/panel"
	"github.com/nerrad567/attendai-core/internal/session"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every dependency reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Areas   []config.AreaConfig
	Logger  *logging.Logger
	Session *session.Manager
	Guard   *guard.Guard

	// SignInDir overrides the embedded sign-in page assets.
	SignInDir string

	// Audit serves GET /audit. Nil disables the endpoint.
	Audit audit.Repository

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Checks are reported by name on /health. A failing check degrades
	// the status but never fails the probe.
	Checks map[string]HealthChecker

	Version string
}

// Server is the local HTTP API server.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	areas    []area
	signInUI http.Handler
	logger   *logging.Logger
	session  *session.Manager
	guard    *guard.Guard
	audit    audit.Repository
	gatherer prometheus.Gatherer
	checks   map[string]HealthChecker
	version  string

	hub       *Hub
	server    *http.Server
	startTime time.Time
	cancel    context.CancelFunc
}

// New creates a server. It registers its WebSocket hub as a session
// observer straight away so no event emitted before Start is lost to
// clients that connect later. The listener is not opened until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Guard == nil {
		deps.Guard = guard.New(deps.Session, guard.Paths{
			SignIn:   deps.Session.SignInPath(),
			Fallback: deps.Session.LandingFor(""),
		}, deps.Logger)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	areas, err := buildAreas(deps.Areas)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		areas:     areas,
		signInUI:  panel.Handler(deps.SignInDir),
		logger:    deps.Logger.With("component", "api"),
		session:   deps.Session,
		guard:     deps.Guard,
		audit:     deps.Audit,
		gatherer:  deps.Gatherer,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	deps.Session.AddObserver(s.hub)

	return s, nil
}

// Handler returns the router. Start serves the same handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and begins listening in a background goroutine.
// Stop it with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close stops the hub and shuts the listener down, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
