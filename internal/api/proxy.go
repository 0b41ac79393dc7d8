package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/nerrad567/attendai-core/internal/session"
)

// backendPrefix is stripped before a request is forwarded.
const backendPrefix = "/api/v1/backend"

// backendProxy forwards /api/v1/backend/* to the REST backend through the
// session gateway. The caller's own Authorization and Cookie headers are
// dropped; the gateway attaches the session's bearer token.
func (s *Server) backendProxy() http.Handler {
	target := s.session.API().BaseURL()

	proxy := &httputil.ReverseProxy{
		Transport: s.session.Gateway(),
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, backendPrefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Set("X-Proxied-By", "attendai-session")
			return nil
		},
		ErrorHandler: s.proxyError,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := bufferBody(r); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
				return
			}
			writeBadRequest(w, "reading request body")
			return
		}
		proxy.ServeHTTP(w, r)
	})
}

// bufferBody reads the body into memory and sets GetBody so the gateway
// can replay it after a refresh.
func bufferBody(r *http.Request) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	r.Body.Close() //nolint:errcheck
	if err != nil {
		return err
	}
	r.ContentLength = int64(len(data))
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func (s *Server) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, session.ErrUnauthorized):
		writeRedirectError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "session ended", s.session.SignInPath())
	case errors.Is(err, context.Canceled):
		w.WriteHeader(statusClientClosedRequest)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		writeError(w, http.StatusGatewayTimeout, ErrCodeBadGateway, "backend timed out")
	default:
		s.logger.Warn("backend proxy failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "backend unavailable")
	}
}
