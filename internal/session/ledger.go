package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/backend"
	"github.com/nerrad567/attendai-core/internal/credential"
)

// ledger is the single owner of the credential and the user. Every write
// goes through it and bumps epoch when the session is replaced or ended,
// so work started under an older epoch can tell it has been superseded.
//
// The in-memory copy is authoritative once loaded; the store is written
// before memory changes so a failed write leaves both untouched.
// storeTimeout bounds a store write once it has started. Writes ignore the
// caller's cancellation so memory and store cannot diverge halfway.
const storeTimeout = 5 * time.Second

func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

type ledger struct {
	mu      sync.RWMutex
	store   credential.Store
	cred    credential.Credential
	user    *auth.User
	loading bool
	booted  bool
	epoch   uint64
}

func newLedger(store credential.Store) *ledger {
	return &ledger{store: store, loading: true}
}

func (l *ledger) state() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return State{
		User:          l.user.Clone(),
		IsLoading:     l.loading,
		HasCredential: l.cred.Valid(),
	}
}

func (l *ledger) credential() (credential.Credential, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cred, l.epoch
}

func (l *ledger) accessToken() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cred.AccessToken
}

// load reads the persisted pair the first time it is called. ok is false
// on later calls and after a sign-in or logout has already settled the
// session. A half-written pair is cleared and treated as absent.
func (l *ledger) load(ctx context.Context) (cred credential.Credential, epoch uint64, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.booted {
		return credential.Credential{}, 0, false, nil
	}
	l.booted = true

	c, err := l.store.Get(ctx)
	switch {
	case err == nil:
		l.cred = c
	case errors.Is(err, credential.ErrNotFound):
	case errors.Is(err, credential.ErrCorrupt):
		sctx, cancel := storeContext(ctx)
		defer cancel()
		if clearErr := l.store.Clear(sctx); clearErr != nil {
			l.loading = false
			return credential.Credential{}, l.epoch, true, fmt.Errorf("clearing corrupt credentials: %w", clearErr)
		}
	default:
		l.loading = false
		return credential.Credential{}, l.epoch, true, err
	}

	if !l.cred.Valid() {
		l.loading = false
	}
	return l.cred, l.epoch, true, nil
}

// settle ends bootstrap. user is recorded only if epoch is still current
// and a credential is held; the result reports whether it was.
func (l *ledger) settle(epoch uint64, user *auth.User) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loading = false
	if user == nil || epoch != l.epoch || !l.cred.Valid() {
		return false
	}
	l.user = user.Clone()
	return true
}

// replace installs a freshly issued pair and starts a new epoch.
func (l *ledger) replace(ctx context.Context, c credential.Credential) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sctx, cancel := storeContext(ctx)
	defer cancel()
	if err := l.store.Set(sctx, c); err != nil {
		return l.epoch, err
	}
	l.epoch++
	l.cred = c
	l.user = nil
	l.booted = true
	l.loading = false
	return l.epoch, nil
}

func (l *ledger) setUser(u *auth.User) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cred.Valid() {
		return ErrNoCredential
	}
	l.user = u.Clone()
	return nil
}

func (l *ledger) setUserIf(epoch uint64, u *auth.User) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if epoch != l.epoch || !l.cred.Valid() {
		return false
	}
	l.user = u.Clone()
	return true
}

// clear ends the session unconditionally. Memory is reset even when the
// store cannot be cleared; the returned credential is what was held.
func (l *ledger) clear(ctx context.Context) (credential.Credential, *auth.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reset(ctx)
}

// clearIf ends the session only if it is still the one started at epoch.
func (l *ledger) clearIf(ctx context.Context, epoch uint64) (bool, credential.Credential, *auth.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if epoch != l.epoch {
		return false, credential.Credential{}, nil, nil
	}
	prev, user, err := l.reset(ctx)
	return true, prev, user, err
}

func (l *ledger) reset(ctx context.Context) (credential.Credential, *auth.User, error) {
	prev, user := l.cred, l.user
	l.epoch++
	l.cred = credential.Credential{}
	l.user = nil
	l.booted = true
	l.loading = false

	sctx, cancel := storeContext(ctx)
	defer cancel()
	return prev, user, l.store.Clear(sctx)
}

// commitRefresh swaps in a renewed access token, and a rotated refresh
// token when the backend sent one. It refuses with ErrSessionClosed if the
// session moved on since from was read.
func (l *ledger) commitRefresh(ctx context.Context, epoch uint64, from credential.Credential, pair backend.TokenPair) (credential.Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if epoch != l.epoch || l.cred.RefreshToken != from.RefreshToken {
		return credential.Credential{}, ErrSessionClosed
	}

	next := l.cred.WithAccess(pair.Access)
	if pair.Refresh != "" {
		next.RefreshToken = pair.Refresh
	}
	sctx, cancel := storeContext(ctx)
	defer cancel()
	if err := l.store.Set(sctx, next); err != nil {
		return credential.Credential{}, fmt.Errorf("persisting refreshed credentials: %w", err)
	}
	l.cred = next
	return next, nil
}
