// Package guard decides whether the current session may reach a
// role-restricted route.
//
// Evaluate is a pure function of the session state. The same answer is
// served over HTTP by Guard.Require, which front ends use to pick between
// a loading screen, the protected page and a redirect.
package guard
