// Package session holds the signed-in state of an AttendAI client and
// keeps its bearer token usable.
//
// The pieces:
//
//   - Manager owns the credential and the user. Bootstrap restores a
//     stored session once at startup; SignIn and Logout replace or end it.
//   - Coordinator renews the access token with the refresh token. However
//     many callers need a renewal at once, the backend sees one refresh.
//   - Gateway is the http.RoundTripper every authorized call uses. It adds
//     the bearer token, and on a 401 renews it and re-sends once.
//
// Each sign-in or logout starts a new epoch. A refresh that completes
// after its epoch ended is dropped, so a late response can never bring a
// logged-out session back.
//
// Lifecycle events (signed in, refreshed, expired, ...) go to Observers in
// the order they happen. Observers must not block.
package session
