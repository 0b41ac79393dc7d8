package session

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for session operations.
var (
	// ErrUnauthorized is returned by the gateway when a request could not be
	// authorized even after one refresh-and-retry. The session has usually
	// been torn down by then and the caller should route to sign-in.
	ErrUnauthorized = errors.New("session: unauthorized")

	// ErrRefreshFailed wraps the cause of a failed token refresh.
	ErrRefreshFailed = errors.New("session: refresh failed")

	// ErrSessionClosed means a logout or a new sign-in replaced the session
	// while the operation was in flight; its result was discarded.
	ErrSessionClosed = errors.New("session: superseded by logout or sign-in")

	// ErrNoCredential means no token pair is held.
	ErrNoCredential = errors.New("session: no credential")

	ErrEmptyUsername = errors.New("session: username cannot be empty")
	ErrEmptyPassword = errors.New("session: password cannot be empty")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: manager closed")
)

// unauthorized wraps err as ErrUnauthorized, leaving caller cancellation untouched.
func unauthorized(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnauthorized, err)
}
