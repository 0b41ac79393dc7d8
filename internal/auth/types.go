package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the role tag the AttendAI backend assigns to an account.
type Role string

const (
	// RoleAdmin manages schools, classes and user accounts.
	RoleAdmin Role = "admin"

	// RoleTeacher takes attendance, reviews face enrolment and leave requests.
	// The mobile app accepts only this role.
	RoleTeacher Role = "teacher"

	// RoleStudent views their own attendance and submits leave requests.
	RoleStudent Role = "student"

	// RoleParent follows the attendance of linked students.
	RoleParent Role = "parent"
)

// ValidRoles is the closed set of role tags the backend may return.
var ValidRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRoles converts configuration strings into a RoleSet, rejecting unknown tags.
func ParseRoles(names []string) (RoleSet, error) {
	set := make(RoleSet, 0, len(names))
	for _, n := range names {
		r := Role(strings.ToLower(strings.TrimSpace(n)))
		if !IsValidRole(r) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, n)
		}
		set = append(set, r)
	}
	return set, nil
}

// User is the authenticated account as returned by the identity endpoint.
// It is always replaced whole; fields are never patched individually.
type User struct {
	ID             int64  `json:"id"`
	Role           Role   `json:"role"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Validate checks the fields the session layer depends on.
func (u *User) Validate() error {
	if u == nil {
		return fmt.Errorf("%w: no user", ErrInvalidIdentity)
	}
	if u.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidIdentity)
	}
	if !IsValidRole(u.Role) {
		return fmt.Errorf("%w: role %q", ErrInvalidIdentity, u.Role)
	}
	return nil
}

// Clone returns an independent copy, or nil for a nil user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// DisplayName returns "First Last", falling back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Sentinel errors for auth operations.
var (
	ErrInvalidIdentity = errors.New("auth: invalid identity")
	ErrRoleNotAllowed  = errors.New("auth: role not allowed")
	ErrUnknownRole     = errors.New("auth: unknown role")
	ErrTokenMalformed  = errors.New("auth: malformed token")
)
