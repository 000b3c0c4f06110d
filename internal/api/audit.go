package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/tophat-core/internal/audit"
)

// handleListAudit returns paginated command log entries with optional filters.
//
// Query parameters:
//   - device: filter by device name
//   - command: filter by command tag
//   - status: filter by status name (SUCCESS, ERROR_UNKNOWN, ...)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "audit log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Device:  q.Get("device"),
		Command: q.Get("command"),
		Status:  q.Get("status"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit records", "error", err)
		writeInternalError(w, "failed to list audit records")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative query parameter.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
