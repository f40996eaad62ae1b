// Package service wires the readiness engine: biometric store, ingest
// pipeline, refresh orchestrator, persistence and scheduler. It implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/upready/internal/adapters/cache"
	"github.com/okian/upready/internal/adapters/mq/queue"
	"github.com/okian/upready/internal/adapters/mq/worker"
	"github.com/okian/upready/internal/adapters/repository"
	"github.com/okian/upready/internal/adapters/scheduler"
	"github.com/okian/upready/internal/adapters/summarizer"
	"github.com/okian/upready/internal/config"
	"github.com/okian/upready/internal/domain/dedupe"
	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/internal/domain/refresh"
	"github.com/okian/upready/internal/domain/sleep"
	"github.com/okian/upready/pkg/logger"
	"github.com/okian/upready/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the readiness engine.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	// Core components
	store        *repository.MemoryStore
	db           *repository.SQLiteStore
	snapshots    refresh.SnapshotCache
	redis        *cache.Redis
	summarizer   refresh.Summarizer
	orchestrator *refresh.Orchestrator
	deduper      dedupe.Deduper
	queue        *queue.InMemoryQueue
	pool         *worker.Pool
	scheduler    *scheduler.Scheduler

	// Overrides
	summarizerOverride refresh.Summarizer
	redisClient        cache.RedisClient
	withoutWorkers     bool
	withoutScheduler   bool
	now                func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a Service. A nil cfg uses config.New().
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds every component and starts the workers and the scheduler.
func (s *Service) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.closeLocked(ctx)
		}
	}()

	loc, _ := s.cfg.Location()
	s.logger.Info(ctx, "starting readiness service...", logger.String("timezone", loc.String()))

	storeOpts := []repository.Option{
		repository.WithRetention(s.cfg.Retention()),
		repository.WithCapabilities(s.cfg.Capabilities()),
	}
	if s.now != nil {
		storeOpts = append(storeOpts, repository.WithClock(s.now))
	}
	s.store = repository.NewMemoryStore(ctx, storeOpts...)
	birth, _ := s.cfg.BirthDateTime()
	if birth != nil {
		_ = s.store.SetBirthDate(ctx, *birth)
	}

	s.db, err = repository.OpenSQLite(ctx, s.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open readiness store: %w", err)
	}

	s.snapshots, err = s.snapshotCache(ctx)
	if err != nil {
		return err
	}

	s.summarizer, err = s.buildSummarizer()
	if err != nil {
		return err
	}

	orchOpts := []refresh.Option{
		refresh.WithLocation(loc),
		refresh.WithFetchTimeout(s.cfg.FetchTimeout()),
		refresh.WithHistoryDays(s.cfg.HistoryDays),
		refresh.WithTotalPolicy(sleep.ParseTotalPolicy(s.cfg.TotalSleepPolicy)),
		refresh.WithDefaultAge(s.cfg.DefaultAge),
		refresh.WithSnapshotCache(s.snapshots),
		refresh.WithLogger(s.logger.Named("refresh")),
	}
	if s.now != nil {
		orchOpts = append(orchOpts, refresh.WithClock(s.now))
	}
	s.orchestrator = refresh.New(s.store, s.summarizer, s.db, orchOpts...)
	if rerr := s.orchestrator.Restore(ctx); rerr != nil {
		s.logger.Warn(ctx, "restoring snapshot failed; starting cold", logger.Error(rerr))
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	if !s.withoutWorkers {
		s.pool = worker.NewPool(s.cfg.WorkerCount, s.queue, s.store, worker.WithPoolLogger(s.logger.Named("worker-pool")))
		s.pool.Start(ctx)
	}

	if !s.withoutScheduler && s.cfg.RefreshSchedule != "" {
		s.scheduler, err = scheduler.New(s.orchestrator, s.cfg.RefreshSchedule,
			scheduler.WithCycleTimeout(s.cfg.CycleTimeout()),
			scheduler.WithLocation(loc),
			scheduler.WithLogger(s.logger.Named("scheduler")),
		)
		if err != nil {
			return err
		}
		if err := s.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	s.started = true
	s.logger.Info(ctx, "readiness service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.String("cache_backend", s.cfg.CacheBackend),
		logger.String("schedule", s.cfg.RefreshSchedule),
	)
	return nil
}

func (s *Service) snapshotCache(ctx context.Context) (refresh.SnapshotCache, error) {
	switch s.cfg.CacheBackend {
	case config.CacheMemory:
		return cache.NewMemory(), nil
	case config.CacheRedis:
		opts := []cache.RedisOption{
			cache.WithRedisAddr(s.cfg.RedisAddr),
			cache.WithRedisPassword(s.cfg.RedisPassword),
			cache.WithRedisDB(s.cfg.RedisDB),
			cache.WithRedisKey(s.cfg.RedisKey),
		}
		if s.redisClient != nil {
			opts = append(opts, cache.WithRedisClient(s.redisClient))
		}
		r, err := cache.NewRedis(ctx, opts...)
		if err != nil {
			if errors.Is(err, cache.ErrUnavailable) {
				metrics.RecordErrorByComponent("service", "cache_unavailable")
				s.logger.Warn(ctx, "redis unavailable; keeping snapshots in sqlite", logger.Error(err))
				return s.db, nil
			}
			return nil, err
		}
		s.redis = r
		return r, nil
	default:
		return s.db, nil
	}
}

func (s *Service) buildSummarizer() (refresh.Summarizer, error) {
	if s.summarizerOverride != nil {
		return s.summarizerOverride, nil
	}
	if s.cfg.OpenAIAPIKey == "" {
		s.logger.Warn(context.Background(), "no OpenAI API key; readiness summaries are disabled")
		return summarizer.Disabled{}, nil
	}
	sum, err := summarizer.NewOpenAI(s.cfg.OpenAIAPIKey,
		summarizer.WithModel(s.cfg.OpenAIModel),
		summarizer.WithMaxTokens(s.cfg.SummaryMaxTokens),
		summarizer.WithBaseURL(s.cfg.OpenAIBaseURL),
		summarizer.WithLogger(s.logger.Named("summarizer")),
	)
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}
	return sum, nil
}

// Stop shuts components down in reverse order: scheduler, workers (after
// draining the queue), stores.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping readiness service...")
	err := s.closeLocked(ctx)
	s.started = false
	s.logger.Info(ctx, "readiness service stopped")
	return err
}

func (s *Service) closeLocked(ctx context.Context) error {
	var errs []error
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}
	if s.pool != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		errs = append(errs, s.pool.Shutdown(shutdownCtx))
		cancel()
		s.pool = nil
	} else if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
		s.redis = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	return errors.Join(errs...)
}

// SeenAndRecord atomically checks if an ingest id was seen and records it
// if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.deduper.SeenAndRecord(ctx, id)
}

// Unrecord removes an ingest id so a rejected item can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue hands an ingest envelope to the workers.
func (s *Service) Enqueue(ctx context.Context, in model.Ingest) error {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return ErrNotStarted
	}
	return q.Enqueue(ctx, in)
}

// Ingest writes items straight to the biometric store, bypassing the queue.
// It is used to load sample files before a one-off cycle.
func (s *Service) Ingest(ctx context.Context, items []model.Ingest) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return ErrNotStarted
	}
	for _, in := range items {
		if err := worker.Apply(ctx, store, in); err != nil {
			return fmt.Errorf("ingest %s %q: %w", in.Kind, in.ID, err)
		}
		metrics.RecordIngested(string(in.Kind))
	}
	return nil
}

// RunCycle runs (or joins) a refresh cycle.
func (s *Service) RunCycle(ctx context.Context, req refresh.Request) (*refresh.Result, error) {
	o := s.orch()
	if o == nil {
		return nil, ErrNotStarted
	}
	return o.RunCycle(ctx, req)
}

// Snapshot returns the last published snapshot.
func (s *Service) Snapshot() *model.RefreshSnapshot {
	if o := s.orch(); o != nil {
		return o.Snapshot()
	}
	return nil
}

// LastResult returns the most recent cycle result.
func (s *Service) LastResult() *refresh.Result {
	if o := s.orch(); o != nil {
		return o.LastResult()
	}
	return nil
}

// State returns the orchestrator state.
func (s *Service) State() refresh.State {
	if o := s.orch(); o != nil {
		return o.State()
	}
	return refresh.StateIdle
}

// History returns stored readiness records with day in [from, to].
func (s *Service) History(ctx context.Context, from, to time.Time) ([]model.ReadinessRecord, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, ErrNotStarted
	}
	return db.History(ctx, from, to)
}

func (s *Service) orch() *refresh.Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orchestrator
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"worker_count":  s.cfg.WorkerCount,
		"queue_size":    s.cfg.QueueSize,
		"cache_backend": s.cfg.CacheBackend,
	}
	if !s.started {
		return stats
	}

	st := s.store.Stats(context.Background())
	samples := make(map[string]int, len(st.Samples))
	for k, n := range st.Samples {
		samples[string(k)] = n
	}
	queueLen := s.queue.Len()
	stats["queue_length"] = queueLen
	stats["dedupe_size"] = s.deduper.Size()
	stats["samples"] = samples
	stats["sleep_intervals"] = st.SleepIntervals
	stats["workouts"] = st.Workouts
	stats["has_birth_date"] = st.HasBirthDate
	stats["state"] = s.orchestrator.State().String()
	if snap := s.orchestrator.Snapshot(); snap != nil {
		stats["last_fetch"] = snap.LastFetch
	}
	if s.scheduler != nil {
		stats["scheduled_runs"] = s.scheduler.Runs()
	}

	metrics.UpdateQueueSize(queueLen)
	return stats
}
