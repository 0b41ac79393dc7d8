// Package auth holds the identity and role model shared by the session layer.
//
// AttendAI accounts carry a single role tag from a closed set
// (admin, teacher, student, parent). Tokens are issued by the backend;
// this package only reads their claims, never signs or verifies them.
//
// # Roles and capabilities
//
// A Capability pairs an area name with the RoleSet allowed into it.
// Landing maps a role to the area a user lands on after sign-in:
//
//	landing := auth.DefaultLanding()
//	landing.For(auth.RoleTeacher) // "/teacher"
//	landing.For(auth.RoleParent)  // "/dashboard"
//
// # Token claims
//
// ExpiresWithin lets the gateway renew an access token shortly before
// its exp claim instead of waiting for a 401. Opaque (non-JWT) tokens are
// treated as fresh.
package auth
