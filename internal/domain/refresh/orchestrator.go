package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/upready/internal/domain/completeness"
	"github.com/okian/upready/internal/domain/load"
	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/internal/domain/sleep"
	"github.com/okian/upready/internal/domain/summary"
	"github.com/okian/upready/pkg/logger"
	"github.com/okian/upready/pkg/metrics"
)

// Flight keys. Forced and unforced requests never share a cycle.
const (
	cycleKey       = "refresh"
	forcedCycleKey = "refresh:force"
)

// flight is one in-flight cycle shared by every caller with the same key.
// It runs on its own context, cancelled once no caller waits for it.
type flight struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
	done    chan struct{}
	res     *Result
	err     error
}

// Orchestrator runs refresh cycles. Concurrent RunCycle calls with the same
// Force share the in-flight cycle, so each cycle writes at most one record.
// Cycles themselves run one at a time.
type Orchestrator struct {
	source     BiometricSource
	summarizer Summarizer
	store      ReadinessStore
	cache      SnapshotCache

	loc             *time.Location
	fetchTimeout    time.Duration
	historyDays     int
	totalPolicy     sleep.TotalPolicy
	defaultAge      int
	loadConcurrency int
	now             func() time.Time

	snapshot   atomic.Pointer[model.RefreshSnapshot]
	lastResult atomic.Pointer[Result]
	state      atomic.Int32

	flightMu sync.Mutex
	flights  map[string]*flight
	cycleMu  sync.Mutex

	logger logger.Logger
}

// New creates an Orchestrator.
func New(source BiometricSource, summarizer Summarizer, store ReadinessStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:          source,
		summarizer:      summarizer,
		store:           store,
		loc:             time.Local,
		fetchTimeout:    defaultFetchTimeout,
		historyDays:     defaultHistoryDays,
		totalPolicy:     sleep.TotalAllStages,
		defaultAge:      load.DefaultAge,
		loadConcurrency: defaultLoadConcurrency,
		now:             time.Now,
		flights:         make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("refresh")
	}
	return o
}

// Restore loads the last snapshot from the cache, if one is configured.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	snap, err := o.cache.Get(ctx)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if snap != nil {
		o.snapshot.Store(snap)
		o.logger.Info(ctx, "restored snapshot",
			logger.String("cycle", snap.CycleID),
			logger.Time("last_fetch", snap.LastFetch),
		)
	}
	return nil
}

// Snapshot returns the last published snapshot, or nil.
func (o *Orchestrator) Snapshot() *model.RefreshSnapshot {
	return o.snapshot.Load()
}

// LastResult returns the result of the most recent finished cycle, or nil.
func (o *Orchestrator) LastResult() *Result {
	return o.lastResult.Load()
}

// State returns the current cycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Invalidate drops the published snapshot so the next cycle is stale.
func (o *Orchestrator) Invalidate(ctx context.Context) error {
	o.snapshot.Store(nil)
	if o.cache == nil {
		return nil
	}
	if err := o.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear snapshot cache: %w", err)
	}
	return nil
}

// RunCycle runs one refresh cycle. Per-metric failures only show up in
// Result.Missing; summarization, extraction and persistence failures are
// returned as errors wrapping ErrSummarize, summary.ErrExtraction or
// ErrPersist. Cancelling ctx releases this caller with ErrCancelled; the
// shared cycle is aborted, without persisting, only when every caller
// waiting on it has gone.
func (o *Orchestrator) RunCycle(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return o.cancelled(uuid.NewString(), o.snapshot.Load(), err)
	}
	key := cycleKey
	if req.Force {
		key = forcedCycleKey
	}
	f, joined := o.join(ctx, key, req)
	if joined {
		o.logger.Debug(ctx, "joined in-flight refresh cycle", logger.String("cycle", f.id))
	}

	select {
	case <-f.done:
		o.leave(key, f)
		return f.res, f.err
	case <-ctx.Done():
		if o.leave(key, f) {
			// Last waiter: the cycle was cancelled and reports its own outcome.
			<-f.done
			return f.res, f.err
		}
		return o.cancelled(f.id, o.snapshot.Load(), ctx.Err())
	}
}

// join attaches the caller to the in-flight cycle for key, starting one
// when none exists. The cycle keeps ctx's values but not its cancellation.
func (o *Orchestrator) join(ctx context.Context, key string, req Request) (*flight, bool) {
	o.flightMu.Lock()
	defer o.flightMu.Unlock()
	if f, ok := o.flights[key]; ok {
		f.waiters++
		return f, true
	}
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &flight{
		id:      uuid.NewString(),
		ctx:     fctx,
		cancel:  cancel,
		waiters: 1,
		done:    make(chan struct{}),
	}
	o.flights[key] = f
	go o.fly(key, f, req)
	return f, false
}

// leave detaches a caller and reports whether it was the last one, in
// which case the cycle is cancelled and no longer joinable.
func (o *Orchestrator) leave(key string, f *flight) bool {
	o.flightMu.Lock()
	defer o.flightMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return false
	}
	f.cancel()
	if o.flights[key] == f {
		delete(o.flights, key)
	}
	return true
}

func (o *Orchestrator) fly(key string, f *flight, req Request) {
	o.cycleMu.Lock()
	f.res, f.err = o.runCycle(f.ctx, f.id, req)
	o.cycleMu.Unlock()

	o.flightMu.Lock()
	if o.flights[key] == f {
		delete(o.flights, key)
	}
	o.flightMu.Unlock()
	f.cancel()
	close(f.done)
}

func (o *Orchestrator) runCycle(ctx context.Context, cycleID string, req Request) (res *Result, err error) {
	start := o.now()
	log := o.logger.With(logger.String("cycle", cycleID))
	prev := o.snapshot.Load()

	defer func() {
		o.setState(StateIdle)
		if res != nil {
			o.lastResult.Store(res)
			metrics.RecordRefreshCycle(string(res.Outcome))
		}
		metrics.RecordRefreshDuration(float64(time.Since(start).Milliseconds()))
	}()

	o.setState(StateCheckingStaleness)
	if !req.Force {
		stale, serr := o.stale(ctx, prev, start)
		switch {
		case serr != nil && ctx.Err() != nil:
			return o.cancelled(cycleID, prev, ctx.Err())
		case serr != nil:
			log.Warn(ctx, "staleness probe failed; treating data as stale", logger.Error(serr))
		case !stale:
			o.setState(StateUsingCache)
			log.Debug(ctx, "no new upstream data; using cached snapshot")
			return &Result{CycleID: cycleID, Outcome: OutcomeCached, Snapshot: prev}, nil
		}
	}

	o.setState(StateFetchingParallel)
	c := newCycle(o, start)
	if ferr := c.fetchAll(ctx); ferr != nil {
		return o.cancelled(cycleID, prev, ferr)
	}

	o.setState(StateScoring)
	if lerr := c.computeLoad(ctx); lerr != nil {
		return o.cancelled(cycleID, prev, lerr)
	}
	m := c.snapshotMetrics()
	res = &Result{CycleID: cycleID, Metrics: m, Snapshot: prev}

	if missing := c.gate.Missing(); len(missing) > 0 {
		res.Outcome = OutcomeIncomplete
		res.Missing = completeness.Names(missing)
		for _, name := range res.Missing {
			metrics.RecordMetricMissing(name)
		}
		log.Info(ctx, "readiness abandoned; metrics missing", logger.Any("missing", res.Missing))
		return res, nil
	}

	o.setState(StateSummarizing)
	sumStart := time.Now()
	text, serr := o.summarizer.Summarize(ctx, summary.Keywords(m))
	metrics.RecordSummarizeLatency(float64(time.Since(sumStart).Milliseconds()))
	if serr != nil {
		if ctx.Err() != nil {
			return o.cancelled(cycleID, prev, ctx.Err())
		}
		metrics.RecordSummarizeError()
		metrics.RecordErrorByComponent("refresh", "summarize")
		res.Outcome = OutcomeSummarizeFailed
		log.Error(ctx, "summarization failed", logger.Error(serr))
		return res, fmt.Errorf("%w: %w", ErrSummarize, serr)
	}
	res.Summary = text

	score, xerr := summary.ExtractScore(text)
	if xerr != nil {
		metrics.RecordErrorByComponent("refresh", "extraction")
		res.Outcome = OutcomeExtractionFailed
		log.Warn(ctx, "no score in summary", logger.String("summary", text))
		return res, xerr
	}
	res.Score = &score

	if ctx.Err() != nil {
		return o.cancelled(cycleID, prev, ctx.Err())
	}

	o.setState(StatePersisting)
	var normalized float64
	if m.Load != nil {
		normalized = m.Load.Normalized
	}
	rec := model.ReadinessRecord{
		ID:        uuid.NewString(),
		Day:       model.DayKey(start, o.loc),
		Score:     score,
		Load:      normalized,
		CreatedAt: start,
	}
	if perr := o.store.Save(ctx, rec); perr != nil {
		metrics.RecordPersistError()
		metrics.RecordErrorByComponent("refresh", "persist")
		// A failed write still advances the staleness marker.
		next := prev.WithLastFetch(start)
		o.publish(ctx, next)
		res.Outcome = OutcomePersistFailed
		res.Snapshot = next
		log.Error(ctx, "persisting readiness failed", logger.Error(perr))
		return res, fmt.Errorf("%w: %w", ErrPersist, perr)
	}

	snap := &model.RefreshSnapshot{
		CycleID:   cycleID,
		LastFetch: start,
		Summary:   text,
		Score:     &score,
		Metrics:   m,
		History:   o.history(ctx, prev, rec),
	}
	o.publish(ctx, snap)
	metrics.UpdateReadinessScore(score)
	metrics.UpdateTrainingLoad(normalized)

	res.Outcome = OutcomePersisted
	res.Snapshot = snap
	log.Info(ctx, "readiness persisted",
		logger.Int("score", score),
		logger.Float64("load", normalized),
		logger.String("day", rec.Day),
	)
	return res, nil
}

// stale reports whether any sleep interval or workout started after the
// last refresh. No prior refresh is always stale.
func (o *Orchestrator) stale(ctx context.Context, prev *model.RefreshSnapshot, now time.Time) (bool, error) {
	if prev == nil || prev.LastFetch.IsZero() {
		return true, nil
	}
	since := prev.LastFetch.Add(time.Nanosecond)
	intervals, err := o.source.SleepIntervals(ctx, since, now)
	if err != nil {
		return true, fmt.Errorf("probe sleep: %w", err)
	}
	if len(intervals) > 0 {
		return true, nil
	}
	workouts, err := o.source.Workouts(ctx, since, now)
	if err != nil {
		return true, fmt.Errorf("probe workouts: %w", err)
	}
	return len(workouts) > 0, nil
}

// history reads back the trailing window, falling back to the prior
// snapshot's history plus rec when the read fails.
func (o *Orchestrator) history(ctx context.Context, prev *model.RefreshSnapshot, rec model.ReadinessRecord) []model.ReadinessRecord {
	today := model.StartOfDay(rec.CreatedAt, o.loc)
	from := today.AddDate(0, 0, -o.historyDays)
	records, err := o.store.History(ctx, from, today)
	if err == nil {
		return model.LatestPerDay(records)
	}
	o.logger.Warn(ctx, "reading readiness history failed; extending cached history", logger.Error(err))
	var base []model.ReadinessRecord
	if prev != nil {
		base = append(base, prev.History...)
	}
	return model.LatestPerDay(append(base, rec))
}

// publish swaps the snapshot in one assignment and writes it through to the cache.
func (o *Orchestrator) publish(ctx context.Context, snap *model.RefreshSnapshot) {
	o.snapshot.Store(snap)
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(context.WithoutCancel(ctx), snap); err != nil {
		metrics.RecordErrorByComponent("refresh", "cache")
		o.logger.Warn(ctx, "writing snapshot cache failed", logger.Error(err))
	}
}

func (o *Orchestrator) cancelled(cycleID string, prev *model.RefreshSnapshot, cause error) (*Result, error) {
	res := &Result{CycleID: cycleID, Outcome: OutcomeCancelled, Snapshot: prev}
	if errors.Is(cause, ErrCancelled) {
		return res, cause
	}
	return res, fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	metrics.UpdateRefreshState(int(s))
}
