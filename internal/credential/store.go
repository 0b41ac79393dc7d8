package credential

import (
	"context"
	"fmt"

	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
	"github.com/nerrad567/attendai-core/internal/infrastructure/database"
)

// Stable persistence keys shared with the web and mobile front ends.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUsername     = "username"
)

// Credential is the bearer token pair plus an optional display hint.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username,omitempty"`
}

// Valid reports whether both tokens are present.
func (c Credential) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// WithAccess returns a copy carrying a renewed access token.
func (c Credential) WithAccess(access string) Credential {
	c.AccessToken = access
	return c
}

// Store persists a single Credential. Implementations must make Set and
// Clear atomic: a concurrent Get sees either the old pair, the new pair,
// or nothing, never a mix.
type Store interface {
	// Get returns ErrNotFound when no pair is stored, ErrCorrupt when only
	// half of one is.
	Get(ctx context.Context) (Credential, error)

	// Set replaces the whole pair. It returns ErrIncomplete if either token is empty.
	Set(ctx context.Context, c Credential) error

	// Clear removes every key. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	Close() error
}

// Open builds the store selected by cfg.Backend. db is required for the
// sqlite backend and ignored otherwise.
func Open(ctx context.Context, cfg config.CredentialsConfig, db *database.DB) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.FilePath)
	case "sqlite":
		if db == nil {
			return nil, fmt.Errorf("opening sqlite credential store: database not open")
		}
		return NewSQLiteStore(db), nil
	case "redis":
		return DialRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Backend)
	}
}

func checkComplete(c Credential) error {
	if !c.Valid() {
		return ErrIncomplete
	}
	return nil
}
