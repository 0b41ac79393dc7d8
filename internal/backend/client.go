package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
)

const maxResponseSize = 1 << 20

// Paths locates the three endpoints this layer consumes.
type Paths struct {
	Token   string
	Refresh string
	Me      string
}

// TokenPair is the body of a token or refresh response. Refresh is empty
// when the backend does not rotate refresh tokens.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Client talks to the AttendAI REST backend. The http.Client it holds
// decides whether calls are authorized: token endpoints use a plain
// client, CurrentUser is expected to run on one whose transport is the
// session gateway.
type Client struct {
	base  *url.URL
	paths Paths
	http  *http.Client
}

// New builds a client for cfg.URL. A nil httpClient gets one built from
// NewTransport and cfg.Timeout.
func New(cfg config.BackendConfig, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", cfg.URL)
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: NewTransport(cfg),
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
		}
	}
	return &Client{
		base:  base,
		paths: Paths{Token: cfg.TokenPath, Refresh: cfg.RefreshPath, Me: cfg.MePath},
		http:  httpClient,
	}, nil
}

// NewTransport returns the pooled transport shared by every backend call.
func NewTransport(cfg config.BackendConfig) *http.Transport {
	idle := cfg.MaxIdleConns
	if idle <= 0 {
		idle = 16
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          idle,
		MaxIdleConnsPerHost:   idle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// WithHTTPClient returns a copy of c that sends through h.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	cp := *c
	cp.http = h
	return &cp
}

// HTTPClient returns the client c sends through.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// BaseURL returns a copy of the backend origin.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// URL resolves path against the backend origin.
func (c *Client) URL(path string) string {
	return c.base.ResolveReference(&url.URL{Path: joinPath(c.base.Path, path)}).String()
}

// ObtainToken exchanges a username and password for a token pair.
func (c *Client) ObtainToken(ctx context.Context, username, password string) (TokenPair, error) {
	var pair TokenPair
	body := map[string]string{"username": username, "password": password}
	if err := c.postJSON(ctx, "obtain token", c.paths.Token, body, &pair, ErrInvalidCredentials); err != nil {
		return TokenPair{}, err
	}
	if pair.Access == "" || pair.Refresh == "" {
		return TokenPair{}, fmt.Errorf("%w: token response missing access or refresh", ErrMalformedResponse)
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	body := map[string]string{"refresh": refreshToken}
	if err := c.postJSON(ctx, "refresh token", c.paths.Refresh, body, &pair, ErrRefreshRejected); err != nil {
		return TokenPair{}, err
	}
	if pair.Access == "" {
		return TokenPair{}, fmt.Errorf("%w: refresh response missing access", ErrMalformedResponse)
	}
	return pair, nil
}

// CurrentUser fetches the identity of the bearer of the current access token.
func (c *Client) CurrentUser(ctx context.Context) (*auth.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(c.paths.Me), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, status, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching identity: %w", err)
	}
	if status != http.StatusOK {
		var kind error
		if status == http.StatusUnauthorized {
			kind = ErrUnauthorized
		}
		return nil, &StatusError{Op: "fetch identity", StatusCode: status, Detail: detail(data), kind: kind}
	}

	var u auth.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: decoding identity: %w", ErrMalformedResponse, err)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return &u, nil
}

// postJSON sends body and decodes a 2xx reply into out. A 400 or 401 maps to rejected.
func (c *Client) postJSON(ctx context.Context, op, path string, body, out any, rejected error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	data, status, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status < 200 || status > 299 {
		var kind error
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			kind = rejected
		}
		return &StatusError{Op: op, StatusCode: status, Detail: detail(data), kind: kind}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrMalformedResponse, op, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// detail extracts the "detail" field of an error body, if any.
func detail(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Detail == nil {
		return ""
	}
	if s, ok := payload.Detail.(string); ok {
		return s
	}
	return fmt.Sprint(payload.Detail)
}

func joinPath(basePath, p string) string {
	if basePath == "" || basePath == "/" {
		return p
	}
	return strings.TrimSuffix(basePath, "/") + "/" + strings.TrimPrefix(p, "/")
}

// IsRejection reports whether err means the backend refused the presented
// credential, as opposed to a transport or server failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrRefreshRejected) ||
		errors.Is(err, ErrUnauthorized)
}
