package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/attendai-core/internal/auth"
)

// handleSession returns the current session snapshot.
func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleReloadUser re-fetches the user from the backend through the gateway.
func (s *Server) handleReloadUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.session.ReloadUser(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user})
}

// handleSetUser replaces the held user wholesale, e.g. after the UI saved
// a profile edit against the backend.
func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	var u auth.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.session.SetUser(&u); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: s.session.Snapshot().User})
}
