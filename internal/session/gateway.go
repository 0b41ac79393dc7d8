package session

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
)

const maxDrain = 64 << 10

// Gateway is an http.RoundTripper that attaches the current access token
// and, on a 401, renews it through the Coordinator and re-sends the
// request once. Any other status, 403 included, is returned untouched.
//
// A request whose body cannot be rewound (no GetBody) is not retried: its
// 401 response is handed back as-is.
type Gateway struct {
	next    http.RoundTripper
	coord   *Coordinator
	timeout time.Duration
	metrics *Metrics
	logger  *logging.Logger
}

// RoundTrip implements http.RoundTripper.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token := g.coord.AccessToken()
	if token != "" {
		fresh, err := g.coord.EnsureFreshToken(ctx)
		if err != nil {
			closeBody(req)
			g.metrics.rejected()
			return nil, unauthorized(err)
		}
		token = fresh
	}

	resp, err := g.next.RoundTrip(withToken(req, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	retry, ok := rewind(req)
	if !ok {
		return resp, nil
	}
	drain(resp)

	fresh, err := g.coord.renew(ctx, token)
	if err != nil {
		closeBody(retry)
		g.metrics.rejected()
		g.logger.Debug("request unauthorized", "method", req.Method, "path", req.URL.Path, "error", err)
		return nil, unauthorized(err)
	}

	g.metrics.retried()
	resp, err = g.next.RoundTrip(withToken(retry, fresh))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		g.metrics.rejected()
		return nil, fmt.Errorf("%w: %s %s rejected after refresh", ErrUnauthorized, req.Method, req.URL.Path)
	}
	return resp, nil
}

// Client returns an http.Client that sends through g.
func (g *Gateway) Client() *http.Client {
	return &http.Client{Transport: g, Timeout: g.timeout}
}

// Send issues req through the gateway. It is shorthand for Client().Do
// that returns ErrUnauthorized unwrapped from *url.Error.
func (g *Gateway) Send(req *http.Request) (*http.Response, error) {
	resp, err := g.Client().Do(req)
	var uerr *url.Error
	if errors.As(err, &uerr) && errors.Is(uerr.Err, ErrUnauthorized) {
		return nil, uerr.Err
	}
	return resp, err
}

func withToken(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	out.Body = req.Body
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

// rewind returns a copy of req with a fresh body for the retry. The
// original body has been consumed by the first send.
func rewind(req *http.Request) (*http.Request, bool) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out.Body = body
	return out, true
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain)) //nolint:errcheck
	resp.Body.Close()                                        //nolint:errcheck
}

func closeBody(req *http.Request) {
	if req != nil && req.Body != nil {
		req.Body.Close() //nolint:errcheck
	}
}

// Compile-time check.
var _ http.RoundTripper = (*Gateway)(nil)
