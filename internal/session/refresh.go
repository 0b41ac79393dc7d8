package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/backend"
	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
)

const refreshKey = "refresh"

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (backend.TokenPair, error)
}

// refreshHooks lets the owner of a Coordinator react to flight outcomes.
type refreshHooks interface {
	refreshed(username string, d time.Duration)
	refreshFailed(ctx context.Context, epoch uint64, cause error)
}

// Coordinator ensures at most one refresh call is in flight. Callers that
// arrive while one is running wait for its result instead of starting
// their own.
//
// The flight runs detached from any caller's context: a caller that gives
// up stops waiting, but the refresh still completes for everyone else.
type Coordinator struct {
	ledger    *ledger
	refresher Refresher
	hooks     refreshHooks
	group     singleflight.Group
	skew      time.Duration
	metrics   *Metrics
	logger    *logging.Logger
	now       func() time.Time

	// shortLived is the last token this Coordinator issued if its whole
	// lifetime already fell inside the skew window.
	mu         sync.Mutex
	shortLived string
}

// AccessToken returns the access token currently held, or "".
func (c *Coordinator) AccessToken() string {
	return c.ledger.accessToken()
}

// EnsureFreshToken returns the held access token, renewing it first when
// its exp claim falls within the configured skew. Tokens without a
// readable exp are returned as they are.
func (c *Coordinator) EnsureFreshToken(ctx context.Context) (string, error) {
	tok := c.ledger.accessToken()
	if tok == "" {
		return "", ErrNoCredential
	}
	if c.dueForRenewal(tok, c.now()) {
		return c.renew(ctx, tok)
	}
	return tok, nil
}

// dueForRenewal reports whether tok is inside the skew window. A token
// issued inside the window is used until it actually expires, otherwise
// every request would renew it.
func (c *Coordinator) dueForRenewal(tok string, now time.Time) bool {
	if c.skew <= 0 || !auth.ExpiresWithin(tok, c.skew, now) {
		return false
	}
	c.mu.Lock()
	short := tok == c.shortLived
	c.mu.Unlock()
	return !short || auth.ExpiresWithin(tok, 0, now)
}

func (c *Coordinator) noteIssued(tok string) {
	short := c.skew > 0 && auth.ExpiresWithin(tok, c.skew, c.now())
	c.mu.Lock()
	defer c.mu.Unlock()
	if short {
		c.shortLived = tok
	} else {
		c.shortLived = ""
	}
}

// Refresh renews the access token unconditionally, joining any refresh in flight.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	return c.renew(ctx, "")
}

// renew returns a usable access token after rejected was refused. When
// the held token already differs from rejected another caller has renewed
// it and no new refresh is started.
func (c *Coordinator) renew(ctx context.Context, rejected string) (string, error) {
	cred, _ := c.ledger.credential()
	if !cred.Valid() {
		return "", ErrNoCredential
	}
	if rejected != "" && cred.AccessToken != rejected {
		return cred.AccessToken, nil
	}

	led := false
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		led = true
		return c.flight(context.WithoutCancel(ctx), rejected)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if !led {
			c.metrics.joined()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// flight performs one refresh against the backend and commits the result.
func (c *Coordinator) flight(ctx context.Context, rejected string) (string, error) {
	cred, epoch := c.ledger.credential()
	if !cred.Valid() {
		return "", ErrNoCredential
	}
	// A flight that just finished may already have replaced rejected.
	if rejected != "" && cred.AccessToken != rejected {
		return cred.AccessToken, nil
	}

	start := c.now()
	pair, err := c.refresher.Refresh(ctx, cred.RefreshToken)
	elapsed := c.now().Sub(start)
	if err != nil {
		c.metrics.refresh("failure", elapsed)
		c.logger.Warn("token refresh failed", "error", err, "duration", elapsed)
		c.hooks.refreshFailed(ctx, epoch, err)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next, err := c.ledger.commitRefresh(ctx, epoch, cred, pair)
	if errors.Is(err, ErrSessionClosed) {
		c.metrics.refresh("discarded", elapsed)
		c.logger.Debug("discarding refresh result for a closed session")
		return "", err
	}
	if err != nil {
		c.metrics.refresh("failure", elapsed)
		c.logger.Error("storing refreshed token failed", "error", err)
		c.hooks.refreshFailed(ctx, epoch, err)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	c.metrics.refresh("success", elapsed)
	c.noteIssued(next.AccessToken)
	c.logger.Debug("token refreshed",
		"access", logging.Redact(next.AccessToken),
		"rotated", pair.Refresh != "",
		"duration", elapsed,
	)
	c.hooks.refreshed(next.Username, elapsed)
	return next.AccessToken, nil
}
