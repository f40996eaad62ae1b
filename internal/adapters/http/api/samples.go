package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/pkg/metrics"
)

// ingestRequest mirrors the OpenAPI schema for one POST /samples item.
// Exactly one payload field must be set, matching Kind.
type ingestRequest struct {
	ID        string                 `json:"id"`
	Kind      model.IngestKind       `json:"kind"`
	Sample    *model.BiometricSample `json:"sample,omitempty"`
	Interval  *model.SleepInterval   `json:"sleep_interval,omitempty"`
	Workout   *model.WorkoutSession  `json:"workout,omitempty"`
	BirthDate string                 `json:"birth_date,omitempty"`
}

// toIngest validates the request and builds the queue envelope.
func (req ingestRequest) toIngest(now time.Time) (model.Ingest, error) {
	in := model.Ingest{ID: strings.TrimSpace(req.ID), Kind: req.Kind, ReceivedAt: now}
	switch req.Kind {
	case model.IngestSample:
		s := req.Sample
		switch {
		case s == nil:
			return in, errors.New("missing sample")
		case !s.Kind.Valid():
			return in, fmt.Errorf("unknown sample kind %q", s.Kind)
		case s.Start.IsZero():
			return in, errors.New("missing sample start")
		case math.IsNaN(s.Value) || math.IsInf(s.Value, 0):
			return in, errors.New("sample value must be finite")
		}
		if s.End.IsZero() {
			// Heart-rate duration feeds cardio load; a point sample would count as zero.
			if s.Kind == model.KindHeartRate {
				return in, errors.New("heart_rate sample requires end")
			}
			s.End = s.Start
		}
		if s.End.Before(s.Start) {
			return in, errors.New("sample end before start")
		}
		in.ID = firstNonEmpty(in.ID, s.ID)
		in.Sample = s
	case model.IngestInterval:
		iv := req.Interval
		switch {
		case iv == nil:
			return in, errors.New("missing sleep_interval")
		case !iv.Stage.Valid():
			return in, fmt.Errorf("unknown sleep stage %q", iv.Stage)
		case !iv.End.After(iv.Start):
			return in, errors.New("sleep interval end must be after start")
		}
		in.ID = firstNonEmpty(in.ID, iv.ID)
		in.Interval = iv
	case model.IngestWorkout:
		wk := req.Workout
		switch {
		case wk == nil:
			return in, errors.New("missing workout")
		case wk.Category == "":
			return in, errors.New("missing workout category")
		case !wk.End.After(wk.Start):
			return in, errors.New("workout end must be after start")
		}
		in.ID = firstNonEmpty(in.ID, wk.ID)
		in.Workout = wk
	case model.IngestBirthDate:
		d, err := time.Parse(model.DayLayout, strings.TrimSpace(req.BirthDate))
		if err != nil {
			return in, errors.New("invalid birth_date; must be YYYY-MM-DD")
		}
		if d.After(now) {
			return in, errors.New("birth_date is in the future")
		}
		in.BirthDate = &d
		// Repeated birth dates overwrite each other, so they are never deduplicated.
		in.ID = ""
	default:
		return in, fmt.Errorf("unknown kind %q", req.Kind)
	}
	return in, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type ingestResponse struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
}

// SamplesHandler handles sample ingestion.
type SamplesHandler struct {
	deps    Dependencies
	maxBody int64
	now     func() time.Time
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(deps Dependencies, cfg serverConfig) *SamplesHandler {
	return &SamplesHandler{deps: deps, maxBody: cfg.maxBody, now: cfg.now}
}

// HandlePostSamples handles POST /samples. The body is a single item or an
// array of items. Items already seen are acknowledged as duplicates.
func (h *SamplesHandler) HandlePostSamples(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()

	items, err := ParseIngest(http.MaxBytesReader(w, r.Body, h.maxBody), h.now())
	if err != nil {
		badRequest(w, err)
		return
	}

	resp := ingestResponse{Status: "accepted"}
	for _, in := range items {
		key := dedupeKey(in)
		if key != "" && h.deps.SeenAndRecord(ctx, key) {
			metrics.RecordIngestDuplicate()
			resp.Duplicates++
			continue
		}
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		if err := h.deps.Enqueue(ctx, in); err != nil {
			if key != "" {
				h.deps.Unrecord(ctx, key)
			}
			resp.Status = "backpressure"
			writeJSON(w, http.StatusTooManyRequests, struct {
				errorResponse
				ingestResponse
			}{
				errorResponse{Code: "backpressure", Message: fmt.Errorf("%w: %w", ErrBackpressure, err).Error()},
				resp,
			})
			return
		}
		resp.Accepted++
	}

	status := http.StatusAccepted
	if resp.Accepted == 0 && resp.Duplicates > 0 {
		status = http.StatusOK
		resp.Status = "duplicate"
	}
	writeJSON(w, status, resp)
}

// dedupeKey scopes IDs by kind. An empty key disables deduplication.
func dedupeKey(in model.Ingest) string {
	if in.ID == "" {
		return ""
	}
	return string(in.Kind) + ":" + in.ID
}

// ParseIngest decodes a single item or an array of items and validates
// each one. Errors wrap ErrBadRequest.
func ParseIngest(body io.Reader, now time.Time) ([]model.Ingest, error) {
	reqs, err := decodeIngest(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	items := make([]model.Ingest, 0, len(reqs))
	for i, req := range reqs {
		in, err := req.toIngest(now)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrBadRequest, i, err)
		}
		items = append(items, in)
	}
	return items, nil
}

func decodeIngest(body io.Reader) ([]ingestRequest, error) {
	br := bufio.NewReader(body)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, errors.New("empty body")
	}
	dec := json.NewDecoder(br)
	dec.DisallowUnknownFields()

	var reqs []ingestRequest
	if first == '[' {
		if err := dec.Decode(&reqs); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	} else {
		var one ingestRequest
		if err := dec.Decode(&one); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		reqs = append(reqs, one)
	}
	if len(reqs) == 0 {
		return nil, errors.New("no items")
	}
	return reqs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.ReadByte(); err != nil {
			return 0, err
		}
	}
}
