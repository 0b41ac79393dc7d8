package credential

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/attendai-core/internal/infrastructure/database"
)

// SQLiteStore keeps the pair in the session_credentials key/value table.
// Set and Clear touch all keys inside one transaction.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore returns a store backed by db. The schema comes from the
// session_credentials migration.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context) (Credential, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM session_credentials")
	if err != nil {
		return Credential{}, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var c Credential
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Credential{}, fmt.Errorf("scanning credential row: %w", err)
		}
		switch key {
		case KeyAccessToken:
			c.AccessToken = value
		case KeyRefreshToken:
			c.RefreshToken = value
		case KeyUsername:
			c.Username = value
		}
	}
	if err := rows.Err(); err != nil {
		return Credential{}, fmt.Errorf("iterating credentials: %w", err)
	}

	switch {
	case c.AccessToken == "" && c.RefreshToken == "":
		return Credential{}, ErrNotFound
	case !c.Valid():
		return Credential{}, ErrCorrupt
	}
	return c, nil
}

func (s *SQLiteStore) Set(ctx context.Context, c Credential) error {
	if err := checkComplete(c); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM session_credentials"); err != nil {
			return err
		}
		pairs := [][2]string{{KeyAccessToken, c.AccessToken}, {KeyRefreshToken, c.RefreshToken}}
		if c.Username != "" {
			pairs = append(pairs, [2]string{KeyUsername, c.Username})
		}
		for _, kv := range pairs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO session_credentials (key, value, updated_at) VALUES (?, ?, ?)",
				kv[0], kv[1], now,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_credentials"); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

// Close is a no-op; the database is owned by the caller.
func (s *SQLiteStore) Close() error { return nil }
