// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/upready/internal/domain/dedupe"
	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/internal/domain/refresh"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365
	defaultMaxBody     = 4 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue hands an ingest envelope to the workers. It fails on
	// backpressure or after shutdown.
	Enqueue(ctx context.Context, in model.Ingest) error

	// RunCycle runs (or joins) a refresh cycle.
	RunCycle(ctx context.Context, req refresh.Request) (*refresh.Result, error)
	Snapshot() *model.RefreshSnapshot
	LastResult() *refresh.Result
	State() refresh.State

	// History returns stored readiness records with day in [from, to].
	History(ctx context.Context, from, to time.Time) ([]model.ReadinessRecord, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	samplesHandler   *SamplesHandler
	refreshHandler   *RefreshHandler
	readinessHandler *ReadinessHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := serverConfig{
		loc:         time.Local,
		now:         time.Now,
		historyDays: defaultHistoryDays,
		maxBody:     defaultMaxBody,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		samplesHandler:   NewSamplesHandler(deps, cfg),
		refreshHandler:   NewRefreshHandler(deps),
		readinessHandler: NewReadinessHandler(deps, cfg),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/samples", MetricsMiddleware(s.samplesHandler.HandlePostSamples, "samples"))
	mux.HandleFunc("/refresh", MetricsMiddleware(s.refreshHandler.HandlePostRefresh, "refresh"))
	mux.HandleFunc("/readiness", MetricsMiddleware(s.readinessHandler.HandleGetReadiness, "readiness"))
	mux.HandleFunc("/readiness/history", MetricsMiddleware(s.readinessHandler.HandleGetHistory, "readiness_history"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// requireMethod writes 405 and returns false unless r uses method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed",
		fmt.Errorf("%w: %s", ErrMethodNotAllowed, r.Method))
	return false
}

func badRequest(w http.ResponseWriter, err error) {
	if !errors.Is(err, ErrBadRequest) {
		err = fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	writeError(w, http.StatusBadRequest, "bad_request", err)
}
