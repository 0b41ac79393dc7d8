package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
)

func testConfig(url string) config.BackendConfig {
	return config.BackendConfig{
		URL:         url,
		TokenPath:   "/api/users/token/",
		RefreshPath: "/api/users/token/refresh/",
		MePath:      "/api/users/me/",
		Timeout:     5,
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New(testConfig("/api"), nil); err == nil {
		t.Error("New() expected error for relative url")
	}
}

func TestClient_URL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://localhost:8000", "/api/users/me/", "http://localhost:8000/api/users/me/"},
		{"http://localhost:8000/", "/api/users/me/", "http://localhost:8000/api/users/me/"},
		{"https://school.test/backend", "/api/users/me/", "https://school.test/backend/api/users/me/"},
	}
	for _, tt := range tests {
		c, err := New(testConfig(tt.base), nil)
		if err != nil {
			t.Fatalf("New(%q) error = %v", tt.base, err)
		}
		if got := c.URL(tt.path); got != tt.want {
			t.Errorf("URL(%q) with base %q = %q, want %q", tt.path, tt.base, got, tt.want)
		}
	}
}

func TestObtainToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/users/token/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body["username"] != "jdoe" || body["password"] != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": "a1", "refresh": "r1"})
	})

	pair, err := c.ObtainToken(context.Background(), "jdoe", "pw")
	if err != nil {
		t.Fatalf("ObtainToken() error = %v", err)
	}
	if pair.Access != "a1" || pair.Refresh != "r1" {
		t.Errorf("ObtainToken() = %+v, want a1/r1", pair)
	}

	_, err = c.ObtainToken(context.Background(), "jdoe", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("ObtainToken(wrong) error = %v, want ErrInvalidCredentials", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Detail != "No active account found with the given credentials" {
		t.Errorf("StatusError detail = %+v", se)
	}
}

func TestObtainToken_MissingRefresh(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access": "a1"})
	})

	if _, err := c.ObtainToken(context.Background(), "jdoe", "pw"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("ObtainToken() error = %v, want ErrMalformedResponse", err)
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		want    TokenPair
		wantErr error
	}{
		{"success", http.StatusOK, map[string]string{"access": "a2"}, TokenPair{Access: "a2"}, nil},
		{"rotation", http.StatusOK, map[string]string{"access": "a2", "refresh": "r2"}, TokenPair{Access: "a2", Refresh: "r2"}, nil},
		{"rejected", http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"}, TokenPair{}, ErrRefreshRejected},
		{"bad request", http.StatusBadRequest, map[string]any{"refresh": []string{"This field may not be blank."}}, TokenPair{}, ErrRefreshRejected},
		{"empty access", http.StatusOK, map[string]string{"access": ""}, TokenPair{}, ErrMalformedResponse},
		{"not json", http.StatusOK, "<html>", TokenPair{}, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
				if body["refresh"] != "r1" {
					t.Errorf("refresh body = %v, want r1", body)
				}
				if s, ok := tt.body.(string); ok {
					w.WriteHeader(tt.status)
					w.Write([]byte(s)) //nolint:errcheck
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			got, err := c.Refresh(context.Background(), "r1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Refresh() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Refresh() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRefresh_ServerErrorIsNotRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Refresh(context.Background(), "r1")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("Refresh() error = %v, want StatusError 502", err)
	}
	if IsRejection(err) {
		t.Error("IsRejection() = true for 502")
	}
}

func TestCurrentUser(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    *auth.User
		wantErr error
	}{
		{
			name:   "teacher",
			status: http.StatusOK,
			body:   `{"id":7,"role":"teacher","username":"jdoe","email":"j@school.test","first_name":"Jane","last_name":"Doe","profile_picture":null}`,
			want:   &auth.User{ID: 7, Role: auth.RoleTeacher, Username: "jdoe", Email: "j@school.test", FirstName: "Jane", LastName: "Doe"},
		},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail":"Given token not valid for any token type"}`, wantErr: ErrUnauthorized},
		{name: "unknown role", status: http.StatusOK, body: `{"id":7,"role":"janitor"}`, wantErr: ErrMalformedResponse},
		{name: "missing id", status: http.StatusOK, body: `{"role":"teacher"}`, wantErr: ErrMalformedResponse},
		{name: "truncated", status: http.StatusOK, body: `{"id":7,`, wantErr: ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/api/users/me/" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			})

			got, err := c.CurrentUser(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CurrentUser() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CurrentUser() error = %v", err)
			}
			if *got != *tt.want {
				t.Errorf("CurrentUser() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWithHTTPClient(t *testing.T) {
	var sawHeader string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sawHeader = r.Header.Get("X-Test")
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "role": "admin"})
	})

	tagged := c.WithHTTPClient(&http.Client{Transport: headerTransport{"X-Test", "yes"}})
	if _, err := tagged.CurrentUser(context.Background()); err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if sawHeader != "yes" {
		t.Errorf("X-Test = %q, want yes", sawHeader)
	}
	if c.HTTPClient() == tagged.HTTPClient() {
		t.Error("WithHTTPClient should not modify the original client")
	}
}

type headerTransport struct{ key, value string }

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(h.key, h.value)
	return http.DefaultTransport.RoundTrip(r)
}
