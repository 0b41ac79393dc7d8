// Package credential persists the session's bearer token pair.
//
// A Credential is an access token, a refresh token and an optional
// username hint. The two tokens are stored and removed together; on
// refresh the caller writes the renewed access token back alongside the
// unchanged refresh token in one Set.
//
// # Backends
//
//   - MemoryStore: tests and ephemeral deployments
//   - FileStore: a 0600 JSON file replaced by atomic rename (default)
//   - SQLiteStore: the session_credentials table, one transaction per write
//   - RedisStore: MULTI/EXEC writes and MGET reads, for kiosks sharing a sign-in
//
// The session package is the only writer. Other components read through it.
package credential
