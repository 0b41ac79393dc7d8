package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/attendai-core/internal/audit"
	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/backend"
	"github.com/nerrad567/attendai-core/internal/credential"
	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
	"github.com/nerrad567/attendai-core/internal/session"
)

// fakeBackend serves the token, refresh and identity endpoints plus two
// resources: /api/attendance/ echoes the request, /api/always401/ refuses.
type fakeBackend struct {
	srv *httptest.Server

	mu    sync.Mutex
	valid map[string]bool
	role  auth.Role

	refreshes atomic.Int32
	lastAuth  atomic.Value
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{valid: map[string]bool{}, role: auth.RoleTeacher}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/token/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		if body["password"] != "pw" {
			reply(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
			return
		}
		fb.accept("a1")
		reply(w, http.StatusOK, map[string]string{"access": "a1", "refresh": "r1"})
	})
	mux.HandleFunc("POST /api/users/token/refresh/", func(w http.ResponseWriter, _ *http.Request) {
		fb.refreshes.Add(1)
		fb.accept("a2")
		reply(w, http.StatusOK, map[string]string{"access": "a2"})
	})
	mux.HandleFunc("GET /api/users/me/", func(w http.ResponseWriter, r *http.Request) {
		if !fb.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fb.mu.Lock()
		role := fb.role
		fb.mu.Unlock()
		reply(w, http.StatusOK, map[string]any{"id": 7, "role": role, "username": "jdoe", "first_name": "Jane", "last_name": "Doe"})
	})
	mux.HandleFunc("/api/attendance/", func(w http.ResponseWriter, r *http.Request) {
		fb.lastAuth.Store(r.Header.Get("Authorization"))
		if !fb.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body) //nolint:errcheck
		reply(w, http.StatusOK, map[string]string{"method": r.Method, "path": r.URL.Path, "query": r.URL.RawQuery, "body": string(body)})
	})
	mux.HandleFunc("/api/always401/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) accept(token string) {
	fb.mu.Lock()
	fb.valid[token] = true
	fb.mu.Unlock()
}

func (fb *fakeBackend) revoke(token string) {
	fb.mu.Lock()
	delete(fb.valid, token)
	fb.mu.Unlock()
}

func (fb *fakeBackend) setRole(r auth.Role) {
	fb.mu.Lock()
	fb.role = r
	fb.mu.Unlock()
}

func (fb *fakeBackend) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.valid[token]
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

type testEnv struct {
	fb       *fakeBackend
	manager  *session.Manager
	server   *Server
	handler  http.Handler
	registry *prometheus.Registry
}

type envOption func(*Deps, *session.Options)

func withAudit(repo audit.Repository) envOption {
	return func(d *Deps, _ *session.Options) { d.Audit = repo }
}

func withAreas(areas []config.AreaConfig) envOption {
	return func(d *Deps, _ *session.Options) { d.Areas = areas }
}

func withAllowedRoles(roles ...auth.Role) envOption {
	return func(_ *Deps, o *session.Options) { o.AllowedRoles = roles }
}

func withCheck(name string, c HealthChecker) envOption {
	return func(d *Deps, _ *session.Options) {
		if d.Checks == nil {
			d.Checks = map[string]HealthChecker{}
		}
		d.Checks[name] = c
	}
}

// newTestEnv builds a server over a fake backend. The session is left
// loading; call bootstrap or login.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	fb := newFakeBackend(t)

	client, err := backend.New(config.BackendConfig{
		URL:         fb.srv.URL,
		TokenPath:   "/api/users/token/",
		RefreshPath: "/api/users/token/refresh/",
		MePath:      "/api/users/me/",
		Timeout:     5,
	}, nil)
	if err != nil {
		t.Fatalf("backend.New() error = %v", err)
	}

	registry := prometheus.NewRegistry()
	log := logging.Discard()
	sopts := session.Options{
		Store:   credential.NewMemoryStore(),
		Backend: client,
		Metrics: session.NewMetrics(registry),
		Logger:  log,
	}
	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Gatherer: registry,
		Version:  "test",
	}
	for _, o := range opts {
		o(&deps, &sopts)
	}

	m, err := session.New(sopts)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	t.Cleanup(func() { m.Close() }) //nolint:errcheck
	deps.Session = m

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{fb: fb, manager: m, server: srv, handler: srv.Handler(), registry: registry}
}

func (e *testEnv) bootstrap(t *testing.T) {
	t.Helper()
	if err := e.manager.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"jdoe","password":"pw"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body)
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }
