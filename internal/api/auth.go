package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/backend"
	"github.com/nerrad567/attendai-core/internal/guard"
	"github.com/nerrad567/attendai-core/internal/session"
)

// statusClientClosedRequest is nginx's code for a caller that went away.
const statusClientClosedRequest = 499

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionResponse carries the user and where the UI should go next.
type sessionResponse struct {
	User     *auth.User `json:"user,omitempty"`
	Redirect string     `json:"redirect,omitempty"`
}

// handleLogin signs in against the backend and answers with the user and
// their landing path. The token pair stays in the daemon.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.session.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Redirect: s.session.LandingFor(user.Role)})
}

// handleLogout always succeeds from the UI's point of view; a store error
// is logged and reported, but the in-memory session is gone either way.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context()); err != nil {
		s.logger.Error("logout left credentials in store", "error", err)
		writeRedirectError(w, http.StatusInternalServerError, ErrCodeInternal,
			"signed out, but stored credentials could not be cleared", s.session.SignInPath())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Redirect: s.session.SignInPath()})
}

// handleMe answers 200 with the user, 401 with the sign-in redirect, or
// 503 while bootstrap is still resolving.
func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	state := s.session.Snapshot()
	d := guard.Evaluate(state, capSession, s.guard.Paths())

	switch d.Outcome {
	case guard.Allowed:
		writeJSON(w, http.StatusOK, sessionResponse{User: state.User, Redirect: s.session.LandingFor(state.User.Role)})
	case guard.Pending:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session is loading")
	default:
		writeRedirectError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "not signed in", d.Redirect)
	}
}

// writeSessionError maps session and backend failures onto HTTP.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	var se *backend.StatusError
	switch {
	case errors.Is(err, session.ErrEmptyUsername), errors.Is(err, session.ErrEmptyPassword),
		errors.Is(err, auth.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, backend.ErrInvalidCredentials):
		msg := "invalid username or password"
		if errors.As(err, &se) && se.Detail != "" {
			msg = se.Detail
		}
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, msg)
	case errors.Is(err, auth.ErrRoleNotAllowed):
		writeRedirectError(w, http.StatusForbidden, ErrCodeForbidden,
			"this account's role cannot sign in here", s.session.SignInPath())
	case errors.Is(err, session.ErrNoCredential), errors.Is(err, session.ErrUnauthorized),
		errors.Is(err, backend.ErrUnauthorized):
		writeRedirectError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "session ended", s.session.SignInPath())
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusConflict, ErrCodeConflict, "session changed while the request was in flight")
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeBadGateway, "backend timed out")
	case errors.Is(err, context.Canceled):
		w.WriteHeader(statusClientClosedRequest)
	default:
		s.logger.Warn("backend call failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "backend unavailable")
	}
}
