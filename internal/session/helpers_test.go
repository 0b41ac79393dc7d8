package session

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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/attendai-core/internal/backend"
	"github.com/nerrad567/attendai-core/internal/credential"
	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
)

const teacherJSON = `{"id":7,"role":"teacher","username":"jdoe","email":"j@school.test","first_name":"Jane","last_name":"Doe"}`

// fakeBackend mimics the token, refresh, identity and a few resource
// endpoints of the AttendAI backend.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	valid         map[string]bool
	issueAccess   string
	refreshAccess string
	rotate        string
	refreshStatus int
	meBody        string

	refreshes    atomic.Int32
	meHits       atomic.Int32
	resourceHits atomic.Int32
	always401    atomic.Int32

	gate        chan struct{}
	gateOnce    sync.Once
	entered     chan struct{}
	lastRefresh atomic.Value
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:             t,
		valid:         map[string]bool{},
		issueAccess:   "a1",
		refreshAccess: "a2",
		meBody:        teacherJSON,
		entered:       make(chan struct{}, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/token/", fb.handleToken)
	mux.HandleFunc("POST /api/users/token/refresh/", fb.handleRefresh)
	mux.HandleFunc("GET /api/users/me/", fb.handleMe)
	mux.HandleFunc("/api/attendance/", fb.handleResource)
	mux.HandleFunc("/api/always401/", func(w http.ResponseWriter, _ *http.Request) {
		fb.always401.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/forbidden/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		fb.release()
		fb.srv.Close()
	})
	return fb
}

// holdRefresh makes refresh calls block until release.
func (fb *fakeBackend) holdRefresh() {
	fb.mu.Lock()
	fb.gate = make(chan struct{})
	fb.mu.Unlock()
}

func (fb *fakeBackend) release() {
	fb.mu.Lock()
	gate := fb.gate
	fb.mu.Unlock()
	if gate != nil {
		fb.gateOnce.Do(func() { close(gate) })
	}
}

func (fb *fakeBackend) accept(tokens ...string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, tok := range tokens {
		fb.valid[tok] = true
	}
}

func (fb *fakeBackend) revoke(token string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.valid, token)
}

func (fb *fakeBackend) set(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func (fb *fakeBackend) authorized(r *http.Request) bool {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.valid[tok]
}

func (fb *fakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
	if body["password"] != "pw" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	fb.mu.Lock()
	access := fb.issueAccess
	fb.valid[access] = true
	fb.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": "r1"})
}

func (fb *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	fb.refreshes.Add(1)
	select {
	case fb.entered <- struct{}{}:
	default:
	}
	fb.mu.Lock()
	gate := fb.gate
	fb.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
	fb.lastRefresh.Store(body["refresh"])

	fb.mu.Lock()
	status, access, rotate := fb.refreshStatus, fb.refreshAccess, fb.rotate
	if status == 0 {
		fb.valid[access] = true
	}
	fb.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	resp := map[string]string{"access": access}
	if rotate != "" {
		resp["refresh"] = rotate
	}
	writeJSON(w, http.StatusOK, resp)
}

func (fb *fakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	fb.meHits.Add(1)
	if !fb.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	fb.mu.Lock()
	body := fb.meBody
	fb.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, body) //nolint:errcheck
}

func (fb *fakeBackend) handleResource(w http.ResponseWriter, r *http.Request) {
	fb.resourceHits.Add(1)
	if !fb.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Method == http.MethodPost {
		io.Copy(w, r.Body) //nolint:errcheck
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (fb *fakeBackend) url(path string) string {
	return fb.srv.URL + path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnSessionEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) has(t EventType) bool {
	for _, got := range r.types() {
		if got == t {
			return true
		}
	}
	return false
}

type harness struct {
	fb       *fakeBackend
	store    credential.Store
	mgr      *Manager
	events   *recorder
	registry *prometheus.Registry
}

func newHarness(t *testing.T, fb *fakeBackend, mutate ...func(*Options)) *harness {
	t.Helper()
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

	h := &harness{
		fb:       fb,
		store:    credential.NewMemoryStore(),
		events:   &recorder{},
		registry: prometheus.NewRegistry(),
	}
	opts := Options{
		Store:     h.store,
		Backend:   client,
		Metrics:   NewMetrics(h.registry),
		Logger:    logging.Discard(),
		Observers: []Observer{h.events},
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.store = opts.Store

	h.mgr, err = New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { h.mgr.Close() }) //nolint:errcheck
	return h
}

// seed stores a pair and settles bootstrap as if the session had been restored.
func (h *harness) seed(t *testing.T, access, refresh string) {
	t.Helper()
	if err := h.store.Set(context.Background(), credential.Credential{AccessToken: access, RefreshToken: refresh, Username: "jdoe"}); err != nil {
		t.Fatalf("store.Set() error = %v", err)
	}
	if err := h.mgr.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
}

func (h *harness) get(t *testing.T, path string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, h.fb.url(path), nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return h.mgr.Gateway().Client().Do(req)
}

func (h *harness) counter(name string, labels map[string]string) float64 {
	families, err := h.registry.Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitEntered(t *testing.T, fb *fakeBackend) {
	t.Helper()
	select {
	case <-fb.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never reached the backend")
	}
}
