package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
	"github.com/nerrad567/attendai-core/internal/session"
)

// Outcome is the result of evaluating a route.
type Outcome int

const (
	// Pending means bootstrap has not resolved; render nothing and wait.
	Pending Outcome = iota
	// Allowed means the protected content may be shown.
	Allowed
	// Denied means the caller must be sent to Decision.Redirect.
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decision says what to do with a request for a protected route.
type Decision struct {
	Outcome  Outcome `json:"-"`
	Status   string  `json:"status"`
	Redirect string  `json:"redirect,omitempty"`
}

// Paths are the redirect targets for denied requests.
type Paths struct {
	// SignIn receives callers with no session.
	SignIn string
	// Fallback receives signed-in users whose role is not allowed.
	Fallback string
}

// DefaultPaths matches the web front end's routes.
func DefaultPaths() Paths {
	return Paths{SignIn: "/signin", Fallback: "/dashboard"}
}

// Evaluate decides access to a capability. A capability with no roles
// admits any signed-in user. The checks run in a fixed order: loading,
// then session, then role.
func Evaluate(s session.State, c auth.Capability, p Paths) Decision {
	switch {
	case s.IsLoading:
		return decide(Pending, "")
	case !s.HasCredential || s.User == nil:
		return decide(Denied, p.SignIn)
	case len(c.Roles) > 0 && !c.Roles.Contains(s.User.Role):
		return decide(Denied, p.Fallback)
	default:
		return decide(Allowed, "")
	}
}

func decide(o Outcome, redirect string) Decision {
	return Decision{Outcome: o, Status: o.String(), Redirect: redirect}
}

// StateSource supplies the session state a Guard evaluates.
type StateSource interface {
	Snapshot() session.State
}

// Guard applies Evaluate to HTTP requests.
type Guard struct {
	source StateSource
	paths  Paths
	logger *logging.Logger
}

// New returns a Guard reading state from source.
func New(source StateSource, paths Paths, logger *logging.Logger) *Guard {
	def := DefaultPaths()
	if paths.SignIn == "" {
		paths.SignIn = def.SignIn
	}
	if paths.Fallback == "" {
		paths.Fallback = def.Fallback
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Guard{source: source, paths: paths, logger: logger.With("component", "guard")}
}

// Paths returns the redirect targets in use.
func (g *Guard) Paths() Paths { return g.paths }

// Check evaluates the current state against c.
func (g *Guard) Check(c auth.Capability) Decision {
	return Evaluate(g.source.Snapshot(), c, g.paths)
}

// Require returns middleware that admits only requests Evaluate allows for c.
//
// Pending requests get 503 with Retry-After. Denied browser navigations
// (Accept: text/html) get a 302 to the redirect target; other clients get
// 401 or 403 with the target in a JSON body. Allowed requests carry the
// user in their context, see UserFromContext.
func (g *Guard) Require(c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := g.source.Snapshot()
			d := Evaluate(state, c, g.paths)

			switch d.Outcome {
			case Allowed:
				ctx := context.WithValue(r.Context(), userKey{}, state.User)
				next.ServeHTTP(w, r.WithContext(ctx))
			case Pending:
				w.Header().Set("Retry-After", "1")
				writeDecision(w, http.StatusServiceUnavailable, d)
			default:
				g.logger.Debug("route denied", "capability", c.Name, "path", r.URL.Path, "redirect", d.Redirect)
				if wantsHTML(r) {
					http.Redirect(w, r, d.Redirect, http.StatusFound)
					return
				}
				status := http.StatusForbidden
				if d.Redirect == g.paths.SignIn {
					status = http.StatusUnauthorized
				}
				writeDecision(w, status, d)
			}
		})
	}
}

type userKey struct{}

// UserFromContext returns the user a Guard admitted, or nil.
func UserFromContext(ctx context.Context) *auth.User {
	u, _ := ctx.Value(userKey{}).(*auth.User)
	return u
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeDecision(w http.ResponseWriter, status int, d Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(d) //nolint:errcheck
}
