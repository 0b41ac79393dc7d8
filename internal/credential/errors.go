package credential

import "errors"

// Sentinel errors for credential store operations.
var (
	// ErrNotFound means no credential pair is stored.
	ErrNotFound = errors.New("credential: not found")

	// ErrIncomplete is returned by Set for a pair missing either token.
	ErrIncomplete = errors.New("credential: access and refresh tokens are required together")

	// ErrCorrupt means storage holds one token without the other.
	// Callers should treat the session as absent and Clear.
	ErrCorrupt = errors.New("credential: stored pair is incomplete")
)
