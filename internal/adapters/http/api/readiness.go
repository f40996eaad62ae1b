package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/internal/domain/refresh"
)

type readinessResponse struct {
	State      string                 `json:"state"`
	Snapshot   *model.RefreshSnapshot `json:"snapshot,omitempty"`
	LastResult *refresh.Result        `json:"last_result,omitempty"`
}

type historyResponse struct {
	From    string                  `json:"from"`
	To      string                  `json:"to"`
	Records []model.ReadinessRecord `json:"records"`
}

// ReadinessHandler serves the published snapshot and readiness history.
type ReadinessHandler struct {
	deps Dependencies
	cfg  serverConfig
}

// NewReadinessHandler creates a new readiness handler.
func NewReadinessHandler(deps Dependencies, cfg serverConfig) *ReadinessHandler {
	return &ReadinessHandler{deps: deps, cfg: cfg}
}

// HandleGetReadiness handles GET /readiness. It answers 404 until a first
// cycle has finished or a snapshot was restored.
func (h *ReadinessHandler) HandleGetReadiness(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	resp := readinessResponse{
		State:      h.deps.State().String(),
		Snapshot:   h.deps.Snapshot(),
		LastResult: h.deps.LastResult(),
	}
	if resp.Snapshot == nil && resp.LastResult == nil {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w: no readiness computed yet", ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetHistory handles GET /readiness/history?days=N. It returns one
// record per calendar day, the latest written, in ascending day order.
func (h *ReadinessHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	days := h.cfg.historyDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryDays {
			badRequest(w, errors.New("invalid days; must be between 1 and 365"))
			return
		}
		days = n
	}

	now := h.cfg.now().In(h.cfg.loc)
	from := model.StartOfDay(now, h.cfg.loc).AddDate(0, 0, -days)
	records, err := h.deps.History(r.Context(), from, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	out := model.LatestPerDay(records)
	if out == nil {
		out = []model.ReadinessRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		From:    model.DayKey(from, h.cfg.loc),
		To:      model.DayKey(now, h.cfg.loc),
		Records: out,
	})
}
