package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/backend"
	"github.com/nerrad567/attendai-core/internal/credential"
	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
)

// Options configures a Manager.
type Options struct {
	// Store persists the token pair. Required.
	Store credential.Store

	// Backend is used as-is for the token endpoints. Its transport also
	// carries authorized calls once wrapped by the gateway. Required.
	Backend *backend.Client

	// AllowedRoles limits who may hold a session here. Empty allows all.
	AllowedRoles auth.RoleSet

	Landing    auth.Landing
	SignInPath string

	// RefreshSkew renews a JWT access token this long before exp.
	// Zero disables proactive renewal.
	RefreshSkew time.Duration

	Metrics   *Metrics
	Logger    *logging.Logger
	Observers []Observer

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the session: it bootstraps from the store, signs in and
// out, and hands out the gateway every authorized request goes through.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	ledger  *ledger
	tokens  *backend.Client
	api     *backend.Client
	coord   *Coordinator
	gateway *Gateway

	allowed auth.RoleSet
	landing auth.Landing
	signIn  string

	metrics *Metrics
	logger  *logging.Logger
	now     func() time.Time

	obsMu     sync.RWMutex
	observers []Observer

	closed atomic.Bool
}

// New creates a Manager. The session starts loading until Bootstrap,
// SignIn or Logout settles it.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("creating session manager: store is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("creating session manager: backend client is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.AllowedRoles) == 0 {
		opts.AllowedRoles = auth.RoleSet(auth.ValidRoles)
	}
	if opts.Landing.Default == "" {
		opts.Landing = auth.DefaultLanding()
	}
	if opts.SignInPath == "" {
		opts.SignInPath = "/signin"
	}

	logger := opts.Logger.With("component", "session")
	m := &Manager{
		ledger:    newLedger(opts.Store),
		tokens:    opts.Backend,
		allowed:   opts.AllowedRoles,
		landing:   opts.Landing,
		signIn:    opts.SignInPath,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       opts.Now,
		observers: append([]Observer(nil), opts.Observers...),
	}

	m.coord = &Coordinator{
		ledger:    m.ledger,
		refresher: opts.Backend,
		hooks:     m,
		skew:      opts.RefreshSkew,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "refresh"),
		now:       opts.Now,
	}

	base := opts.Backend.HTTPClient()
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	m.gateway = &Gateway{
		next:    next,
		coord:   m.coord,
		timeout: base.Timeout,
		metrics: opts.Metrics,
		logger:  logger.With("component", "gateway"),
	}
	m.api = opts.Backend.WithHTTPClient(m.gateway.Client())

	return m, nil
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	return m.ledger.state()
}

// Gateway returns the authorized request gateway.
func (m *Manager) Gateway() *Gateway { return m.gateway }

// Coordinator returns the refresh coordinator.
func (m *Manager) Coordinator() *Coordinator { return m.coord }

// API returns a backend client whose calls go through the gateway.
func (m *Manager) API() *backend.Client { return m.api }

// AllowedRoles returns the roles this deployment accepts.
func (m *Manager) AllowedRoles() auth.RoleSet { return m.allowed }

// LandingFor returns where a user with role r goes after sign-in.
func (m *Manager) LandingFor(r auth.Role) string { return m.landing.For(r) }

// SignInPath returns the sign-in route.
func (m *Manager) SignInPath() string { return m.signIn }

// AddObserver registers o for subsequent events.
func (m *Manager) AddObserver(o Observer) {
	m.obsMu.Lock()
	m.observers = append(m.observers, o)
	m.obsMu.Unlock()
}

// Bootstrap restores a persisted session. Only the first call does any
// work; it resolves IsLoading whatever the outcome. If a credential is
// found the user is fetched through the gateway, so an expired access
// token is refreshed on the way. Any failure clears the store.
func (m *Manager) Bootstrap(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}

	cred, epoch, ok, err := m.ledger.load(ctx)
	if !ok {
		return nil
	}
	if err != nil {
		m.logger.Error("reading stored credentials failed", "error", err)
		m.emit(Event{Type: EventBootstrapped, Error: err.Error()})
		return fmt.Errorf("loading credentials: %w", err)
	}
	if !cred.Valid() {
		m.logger.Info("no stored session")
		m.emit(Event{Type: EventBootstrapped})
		return nil
	}

	start := m.now()
	user, err := m.fetchUser(ctx)
	if err != nil {
		m.expire(ctx, epoch, err)
		m.ledger.settle(epoch, nil)
		m.logger.Warn("restoring session failed", "username", cred.Username, "error", err)
		m.emit(Event{Type: EventBootstrapped, Username: cred.Username, Error: err.Error()})
		return fmt.Errorf("bootstrapping session: %w", err)
	}
	if !m.ledger.settle(epoch, user) {
		return ErrSessionClosed
	}

	m.logger.Info("session restored", "user_id", user.ID, "role", user.Role)
	m.emit(Event{
		Type:     EventBootstrapped,
		User:     user,
		Username: user.Username,
		Redirect: m.landing.For(user.Role),
		Duration: m.now().Sub(start),
	})
	return nil
}

// SignIn exchanges username and password for a token pair, persists it
// and fetches the user. A user whose role is not allowed here is signed
// straight back out and ErrRoleNotAllowed is returned.
func (m *Manager) SignIn(ctx context.Context, username, password string) (*auth.User, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	start := m.now()
	pair, err := m.tokens.ObtainToken(ctx, username, password)
	if err != nil {
		m.logger.Info("sign-in rejected", "username", username, "error", err)
		return nil, fmt.Errorf("signing in: %w", err)
	}

	epoch, err := m.ledger.replace(ctx, credential.Credential{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		Username:     username,
	})
	if err != nil {
		return nil, fmt.Errorf("storing credentials: %w", err)
	}

	user, err := m.fetchUser(ctx)
	if err != nil {
		if cleared, _, _, clearErr := m.ledger.clearIf(ctx, epoch); cleared && clearErr != nil {
			m.logger.Error("clearing credentials after failed sign-in", "error", clearErr)
		}
		m.logger.Warn("sign-in identity check failed", "username", username, "error", err)
		return nil, fmt.Errorf("signing in: %w", err)
	}
	if !m.ledger.setUserIf(epoch, user) {
		return nil, ErrSessionClosed
	}

	m.logger.Info("signed in", "user_id", user.ID, "role", user.Role)
	m.emit(Event{
		Type:     EventSignedIn,
		User:     user,
		Username: username,
		Redirect: m.landing.For(user.Role),
		Duration: m.now().Sub(start),
	})
	return user.Clone(), nil
}

// SetUser replaces the user wholesale, e.g. after a profile edit.
func (m *Manager) SetUser(u *auth.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if err := m.checkRole(u); err != nil {
		return err
	}
	if err := m.ledger.setUser(u); err != nil {
		return err
	}
	m.emit(Event{Type: EventUserUpdated, User: u.Clone(), Username: u.Username})
	return nil
}

// ReloadUser re-fetches the user from the backend.
func (m *Manager) ReloadUser(ctx context.Context) (*auth.User, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	cred, epoch := m.ledger.credential()
	if !cred.Valid() {
		return nil, ErrNoCredential
	}

	user, err := m.fetchUser(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrMalformedResponse) || errors.Is(err, auth.ErrRoleNotAllowed) {
			m.expire(ctx, epoch, err)
		}
		return nil, fmt.Errorf("reloading user: %w", err)
	}
	if !m.ledger.setUserIf(epoch, user) {
		return nil, ErrSessionClosed
	}
	m.emit(Event{Type: EventUserUpdated, User: user, Username: user.Username})
	return user.Clone(), nil
}

// Logout ends the session locally. Refreshes still in flight are
// discarded when they complete. The store is cleared even if the error
// is non-nil, as far as the backend allows.
func (m *Manager) Logout(ctx context.Context) error {
	prev, user, err := m.ledger.clear(ctx)
	if err != nil {
		m.logger.Error("clearing credentials on logout", "error", err)
	}
	if prev.Valid() || user != nil {
		m.logger.Info("logged out", "username", prev.Username)
		m.emit(Event{Type: EventLoggedOut, User: user, Username: prev.Username, Redirect: m.signIn})
	}
	return err
}

// Close stops event delivery and rejects further session operations.
// The store is owned by the caller.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.obsMu.Lock()
	m.observers = nil
	m.obsMu.Unlock()
	return nil
}

func (m *Manager) fetchUser(ctx context.Context) (*auth.User, error) {
	user, err := m.api.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.checkRole(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (m *Manager) checkRole(u *auth.User) error {
	if !m.allowed.Contains(u.Role) {
		return fmt.Errorf("%w: %s", auth.ErrRoleNotAllowed, u.Role)
	}
	return nil
}

// expire tears down the session started at epoch, if it is still current.
func (m *Manager) expire(ctx context.Context, epoch uint64, cause error) {
	cleared, prev, user, err := m.ledger.clearIf(ctx, epoch)
	if cleared {
		m.expired(prev, user, err, cause)
	}
}

func (m *Manager) expired(prev credential.Credential, user *auth.User, clearErr, cause error) {
	if clearErr != nil {
		m.logger.Error("clearing expired credentials", "error", clearErr)
	}
	m.logger.Info("session expired", "username", prev.Username, "cause", cause)
	m.emit(Event{
		Type:     EventExpired,
		User:     user,
		Username: prev.Username,
		Redirect: m.signIn,
		Error:    cause.Error(),
	})
}

func (m *Manager) refreshed(username string, d time.Duration) {
	m.emit(Event{Type: EventRefreshed, Username: username, Duration: d})
}

// refreshFailed ends the session the failed flight was started for. A
// session that has since been replaced or ended hears nothing.
func (m *Manager) refreshFailed(ctx context.Context, epoch uint64, cause error) {
	cleared, prev, user, err := m.ledger.clearIf(ctx, epoch)
	if !cleared {
		return
	}
	m.emit(Event{Type: EventRefreshFailed, Username: prev.Username, Error: cause.Error()})
	m.expired(prev, user, err, cause)
}

func (m *Manager) emit(e Event) {
	base := newEvent(e.Type, m.now())
	e.ID, e.At = base.ID, base.At
	m.metrics.event(e.Type)

	m.obsMu.RLock()
	observers := m.observers
	m.obsMu.RUnlock()
	for _, o := range observers {
		o.OnSessionEvent(e)
	}
}
