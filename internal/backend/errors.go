package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend calls.
var (
	// ErrInvalidCredentials means the token endpoint refused the username/password.
	ErrInvalidCredentials = errors.New("backend: invalid credentials")

	// ErrRefreshRejected means the refresh token is invalid, expired or blacklisted.
	ErrRefreshRejected = errors.New("backend: refresh rejected")

	// ErrUnauthorized means an authorized endpoint returned 401.
	ErrUnauthorized = errors.New("backend: unauthorized")

	// ErrMalformedResponse means a 2xx body could not be used.
	ErrMalformedResponse = errors.New("backend: malformed response")
)

// StatusError describes a non-2xx response. Detail carries the backend's
// "detail" message when one was sent.
type StatusError struct {
	Op         string
	StatusCode int
	Detail     string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend %s: HTTP %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend %s: HTTP %d", e.Op, e.StatusCode)
}

// Unwrap exposes the sentinel matching the status, if any.
func (e *StatusError) Unwrap() error {
	return e.kind
}
