// Package backend is the client for the AttendAI REST backend's token and
// identity endpoints.
//
// Endpoints (paths configurable, defaults shown):
//
//	POST /api/users/token/          {username, password} -> {access, refresh}
//	POST /api/users/token/refresh/  {refresh}            -> {access[, refresh]}
//	GET  /api/users/me/             bearer               -> user
//
// Errors distinguish a refused credential (ErrInvalidCredentials,
// ErrRefreshRejected, ErrUnauthorized) from transport failures and
// unexpected statuses (*StatusError); IsRejection tells them apart.
package backend
