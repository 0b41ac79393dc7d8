// Package panel serves the sign-in page that guarded areas redirect to.
//
// The page is a static form embedded with go:embed. It posts credentials
// to /api/v1/auth/login on the same daemon and navigates to the redirect
// the daemon returns, so tokens never reach the browser.
package panel
