package auth

// RoleSet is the set of roles permitted to reach a capability.
type RoleSet []Role

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r Role) bool {
	for _, v := range s {
		if v == r {
			return true
		}
	}
	return false
}

// Strings returns the role tags as plain strings.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// Capability names a protected area and the roles allowed into it.
type Capability struct {
	Name  string
	Roles RoleSet
}

// Built-in capabilities matching the web front end's role areas.
var (
	CapAdminArea   = Capability{Name: "admin", Roles: RoleSet{RoleAdmin}}
	CapTeacherArea = Capability{Name: "teacher", Roles: RoleSet{RoleTeacher}}
	CapStudentArea = Capability{Name: "student", Roles: RoleSet{RoleStudent}}
	CapDashboard   = Capability{Name: "dashboard", Roles: RoleSet{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}}
)

// Landing maps each role to the area a user is sent to after sign-in.
type Landing struct {
	Default string
	ByRole  map[Role]string
}

// DefaultLanding mirrors the web app: every role has its own area except
// parents, who share the general dashboard.
func DefaultLanding() Landing {
	return Landing{
		Default: "/dashboard",
		ByRole: map[Role]string{
			RoleAdmin:   "/admin",
			RoleTeacher: "/teacher",
			RoleStudent: "/student",
			RoleParent:  "/dashboard",
		},
	}
}

// For returns the landing path for a role.
func (l Landing) For(r Role) string {
	if p, ok := l.ByRole[r]; ok && p != "" {
		return p
	}
	return l.Default
}
