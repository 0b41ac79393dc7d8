package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/guard"
	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
)

// area is a role-restricted URL prefix.
type area struct {
	prefix     string
	capability auth.Capability
	handler    http.Handler
}

// defaultAreas mirror the web app's role areas when none are configured.
var defaultAreas = []struct {
	prefix string
	cap    auth.Capability
}{
	{"/admin", auth.CapAdminArea},
	{"/teacher", auth.CapTeacherArea},
	{"/student", auth.CapStudentArea},
	{"/dashboard", auth.CapDashboard},
}

func buildAreas(cfgs []config.AreaConfig) ([]area, error) {
	if len(cfgs) == 0 {
		out := make([]area, 0, len(defaultAreas))
		for _, d := range defaultAreas {
			out = append(out, area{prefix: d.prefix, capability: d.cap, handler: areaDescriptor(d.prefix, d.cap)})
		}
		return out, nil
	}

	out := make([]area, 0, len(cfgs))
	for _, c := range cfgs {
		roles, err := auth.ParseRoles(c.Roles)
		if err != nil {
			return nil, fmt.Errorf("area %s: %w", c.Prefix, err)
		}
		prefix := strings.TrimSuffix(c.Prefix, "/")
		if prefix == "" || isAPIPath(prefix) {
			return nil, fmt.Errorf("area prefix %q collides with the API", c.Prefix)
		}
		capability := auth.Capability{Name: strings.TrimPrefix(prefix, "/"), Roles: roles}

		h := areaDescriptor(prefix, capability)
		if c.StaticDir != "" {
			h = http.StripPrefix(prefix, http.FileServer(http.Dir(c.StaticDir)))
		}
		out = append(out, area{prefix: prefix, capability: capability, handler: h})
	}
	return out, nil
}

// areaDescriptor answers with the area and the admitted user, for front
// ends that render the area themselves.
func areaDescriptor(prefix string, c auth.Capability) http.Handler {
	roles := c.Roles.Strings()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"area":  c.Name,
			"path":  prefix,
			"roles": roles,
			"user":  guard.UserFromContext(r.Context()),
		})
	})
}

func isAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}
