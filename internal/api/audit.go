package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/attendai-core/internal/audit"
)

// handleListAudit returns paginated session audit entries.
//
// Query parameters:
//   - event_type: filter by event, e.g. session.expired
//   - username: filter by the account the event concerned
//   - since: RFC 3339 lower bound on created_at
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "session audit is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		EventType: q.Get("event_type"),
		Username:  q.Get("username"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list session audit", "error", err)
		writeInternalError(w, "failed to list session audit")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
