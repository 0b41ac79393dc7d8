// Package database provides SQLite connectivity for the AttendAI session daemon.
//
// The database is optional. It is opened only when the sqlite credential
// store or the session audit trail is enabled.
//
// This package manages:
//   - Connection setup with WAL mode, busy timeout and a single writer
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Transaction helper used for atomic credential swaps
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600 since it may hold refresh tokens
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
