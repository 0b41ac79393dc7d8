package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHandlerServesRoot(t *testing.T) {
	w := get(t, Handler(""), "/")

	if w.Code != http.StatusOK {
		t.Fatalf("GET /: got status %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("GET /: response doesn't contain HTML doctype")
	}
	if !strings.Contains(body, `id="signin-form"`) {
		t.Error("GET /: sign-in form missing")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestHandlerServesAssets(t *testing.T) {
	tests := []struct {
		path     string
		contains string
	}{
		{"/signin.js", "/api/v1/auth/login"},
		{"/signin.css", ".card"},
	}
	for _, tt := range tests {
		w := get(t, Handler(""), tt.path)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: got status %d, want 200", tt.path, w.Code)
			continue
		}
		if !strings.Contains(w.Body.String(), tt.contains) {
			t.Errorf("GET %s: body missing %q", tt.path, tt.contains)
		}
	}
}

func TestHandlerFallback(t *testing.T) {
	for _, p := range []string{"/nonexistent", "/some/deep/route", "/../../etc/passwd"} {
		w := get(t, Handler(""), p)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: got status %d, want 200 (fallback)", p, w.Code)
		}
		if !strings.Contains(w.Body.String(), `id="signin-form"`) {
			t.Errorf("GET %s: fallback didn't serve index.html", p)
		}
	}
}

func TestHandlerRejectsPost(t *testing.T) {
	w := httptest.NewRecorder()
	Handler("").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x")))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /: got status %d, want 405", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "GET, HEAD" {
		t.Errorf("Allow = %q", got)
	}
}

func TestHandlerFilesystemMode(t *testing.T) {
	dir := t.TempDir()
	indexContent := `<!DOCTYPE html><html><body>branded sign-in</body></html>`
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(indexContent), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "logo.svg"), []byte("<svg/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := Handler(dir)

	if w := get(t, h, "/"); !strings.Contains(w.Body.String(), "branded sign-in") {
		t.Errorf("filesystem GET /: expected filesystem content, got %q", w.Body.String())
	}
	if w := get(t, h, "/logo.svg"); w.Code != http.StatusOK {
		t.Errorf("filesystem GET /logo.svg: got status %d, want 200", w.Code)
	}
	if w := get(t, h, "/deep/route"); !strings.Contains(w.Body.String(), "branded sign-in") {
		t.Error("filesystem fallback didn't serve filesystem index.html")
	}
}

func TestHandlerInvalidDirFallsBackToEmbed(t *testing.T) {
	w := get(t, Handler("/nonexistent/dir/that/does/not/exist"), "/")

	if w.Code != http.StatusOK {
		t.Errorf("invalid dir GET /: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `id="signin-form"`) {
		t.Error("invalid dir: didn't fall back to embedded index.html")
	}
}
