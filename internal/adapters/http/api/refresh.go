package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/upready/internal/domain/refresh"
	"github.com/okian/upready/internal/domain/summary"
)

type refreshResponse struct {
	*refresh.Result
	Error string `json:"error,omitempty"`
}

// RefreshHandler triggers refresh cycles.
type RefreshHandler struct {
	deps Dependencies
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(deps Dependencies) *RefreshHandler {
	return &RefreshHandler{deps: deps}
}

// HandlePostRefresh handles POST /refresh. force=1 (or true) skips the
// staleness check. Incomplete cycles are reported with 200 and the missing
// metric names.
func (h *RefreshHandler) HandlePostRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var force bool
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, errors.New("invalid force; must be a boolean"))
			return
		}
		force = b
	}

	res, err := h.deps.RunCycle(r.Context(), refresh.Request{Force: force})
	if err == nil {
		writeJSON(w, http.StatusOK, refreshResponse{Result: res})
		return
	}
	writeJSON(w, refreshStatus(err), refreshResponse{Result: res, Error: err.Error()})
}

func refreshStatus(err error) int {
	switch {
	case errors.Is(err, refresh.ErrCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, refresh.ErrSummarize), errors.Is(err, summary.ErrExtraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
