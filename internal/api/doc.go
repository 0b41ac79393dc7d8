// Package api is the local HTTP surface of the AttendAI session daemon.
//
// Front ends (the web app, a kiosk shell, the mobile app during
// development) talk to it instead of the REST backend directly. It
// provides:
//   - sign-in, sign-out and identity endpoints backed by session.Manager
//   - a reverse proxy to the backend whose transport is the session
//     gateway, so every proxied call carries a fresh access token
//   - role-restricted areas evaluated by the route guard, and the
//     sign-in page they redirect to
//   - a WebSocket stream of session events, so a UI learns about expiry
//     without polling
//   - health, JSON runtime metrics and Prometheus /metrics
//
// Tokens never leave this process. Responses carry the user and the
// redirect the UI should follow, not the token pair.
package api
