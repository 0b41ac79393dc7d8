package session

import "github.com/nerrad567/attendai-core/internal/auth"

// State is a point-in-time copy of the session.
type State struct {
	// User is nil until bootstrap or sign-in succeeds.
	User *auth.User `json:"user"`

	// IsLoading is true only until the first bootstrap resolves.
	IsLoading bool `json:"is_loading"`

	// HasCredential reports whether a token pair is held.
	HasCredential bool `json:"has_credential"`
}

// Authenticated reports whether the session has both a credential and a user.
func (s State) Authenticated() bool {
	return s.HasCredential && s.User != nil
}
