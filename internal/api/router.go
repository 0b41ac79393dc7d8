package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/attendai-core/internal/auth"
)

// healthCheckTimeout bounds each dependency probe on /health.
const healthCheckTimeout = 2 * time.Second

// capSession admits any signed-in user.
var capSession = auth.Capability{Name: "session"}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)

		r.Get("/session", s.handleSession)
		r.Post("/session/reload", s.handleReloadUser)
		r.With(s.guard.Require(capSession)).Put("/session/user", s.handleSetUser)

		r.With(s.guard.Require(auth.CapAdminArea)).Get("/audit", s.handleListAudit)

		// Local clients only see events; tokens are never sent.
		r.Get("/ws", s.handleWebSocket)

		r.With(s.guard.Require(capSession)).Handle("/backend/*", s.backendProxy())
	})

	// The sign-in page uses relative asset URLs, so it lives under a trailing slash.
	if signIn := s.session.SignInPath(); signIn != "/" && !isAPIPath(signIn) {
		r.Get(signIn, func(w http.ResponseWriter, r *http.Request) {
			target := signIn + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusFound)
		})
		r.Handle(signIn+"/*", http.StripPrefix(signIn, s.signInUI))
	}

	for _, a := range s.areas {
		h := s.guard.Require(a.capability)(a.handler)
		r.Handle(a.prefix, h)
		r.Handle(a.prefix+"/*", h)
	}

	return r
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth always answers 200 while the process is serving; the body
// says whether dependencies are degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]checkResult, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			checks[name] = checkResult{Status: "error", Error: err.Error()}
			continue
		}
		checks[name] = checkResult{Status: "ok"}
	}

	state := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"session": map[string]bool{
			"is_loading":     state.IsLoading,
			"has_credential": state.HasCredential,
		},
		"checks": checks,
	})
}
