package repository

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/pkg/metrics"
)

const (
	defaultMetricsUpdateInterval = 5 * time.Second
	// defaultRetention covers the longest query window (90-day resting HR).
	defaultRetention = 120 * 24 * time.Hour
)

// MemoryStore is an in-memory biometric store. Every collection is kept
// ordered by start time so range queries are two binary searches.
type MemoryStore struct {
	mu       sync.RWMutex
	samples  map[model.SampleKind][]model.BiometricSample
	sleep    []model.SleepInterval
	workouts []model.WorkoutSession
	birth    *time.Time
	caps     model.Capabilities

	retention             time.Duration
	metricsUpdateInterval time.Duration
	now                   func() time.Time

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMemoryStore creates a store and starts its maintenance loop, which stops
// when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		samples:               make(map[model.SampleKind][]model.BiometricSample),
		retention:             defaultRetention,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		now:                   time.Now,
		stopCh:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMaintenance(ctx)
	return s
}

func (s *MemoryStore) startMaintenance(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Prune(s.now().Add(-s.retention))
				s.updateMetrics()
			}
		}
	}()
}

// Close stops the maintenance loop.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}

// PutSample stores one sample.
func (s *MemoryStore) PutSample(_ context.Context, sample model.BiometricSample) error {
	if !sample.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSample, sample.Kind)
	}
	if sample.Start.IsZero() || sample.End.Before(sample.Start) {
		return fmt.Errorf("%w: bad time range", ErrInvalidSample)
	}
	if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
		return fmt.Errorf("%w: value is not finite", ErrInvalidSample)
	}
	start := time.Now()
	s.mu.Lock()
	s.samples[sample.Kind] = insertByStart(s.samples[sample.Kind], sample, sampleStart)
	s.mu.Unlock()
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// PutSleepInterval stores one staged sleep interval.
func (s *MemoryStore) PutSleepInterval(_ context.Context, iv model.SleepInterval) error {
	if !iv.Stage.Valid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidInterval, iv.Stage)
	}
	if !iv.End.After(iv.Start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidInterval)
	}
	s.mu.Lock()
	s.sleep = insertByStart(s.sleep, iv, intervalStart)
	s.mu.Unlock()
	return nil
}

// PutWorkout stores one workout session.
func (s *MemoryStore) PutWorkout(_ context.Context, w model.WorkoutSession) error {
	if w.Category == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidWorkout)
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidWorkout)
	}
	s.mu.Lock()
	s.workouts = insertByStart(s.workouts, w, workoutStart)
	s.mu.Unlock()
	return nil
}

// SetBirthDate records the user's birth date.
func (s *MemoryStore) SetBirthDate(_ context.Context, birth time.Time) error {
	s.mu.Lock()
	s.birth = &birth
	s.mu.Unlock()
	return nil
}

// Samples returns samples of kind whose start lies in [from, to].
func (s *MemoryStore) Samples(ctx context.Context, kind model.SampleKind, from, to time.Time) ([]model.BiometricSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rangeByStart(s.samples[kind], from, to, sampleStart), nil
}

// SleepIntervals returns intervals whose start lies in [from, to].
func (s *MemoryStore) SleepIntervals(ctx context.Context, from, to time.Time) ([]model.SleepInterval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rangeByStart(s.sleep, from, to, intervalStart), nil
}

// Workouts returns sessions whose start lies in [from, to].
func (s *MemoryStore) Workouts(ctx context.Context, from, to time.Time) ([]model.WorkoutSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rangeByStart(s.workouts, from, to, workoutStart), nil
}

// BirthDate returns the recorded birth date, or nil.
func (s *MemoryStore) BirthDate(ctx context.Context) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.birth == nil {
		return nil, nil
	}
	b := *s.birth
	return &b, nil
}

// Capabilities returns the configured platform capabilities.
func (s *MemoryStore) Capabilities(ctx context.Context) (model.Capabilities, error) {
	return s.caps, ctx.Err()
}

// Stats reports collection sizes.
func (s *MemoryStore) Stats(_ context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Samples:        make(map[model.SampleKind]int, len(s.samples)),
		SleepIntervals: len(s.sleep),
		Workouts:       len(s.workouts),
		HasBirthDate:   s.birth != nil,
	}
	for k, v := range s.samples {
		st.Samples[k] = len(v)
	}
	return st
}

// Prune drops every record that started before cutoff.
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped int
	for k, v := range s.samples {
		var n int
		s.samples[k], n = dropBefore(v, cutoff, sampleStart)
		dropped += n
	}
	var n int
	s.sleep, n = dropBefore(s.sleep, cutoff, intervalStart)
	dropped += n
	s.workouts, n = dropBefore(s.workouts, cutoff, workoutStart)
	return dropped + n
}

func (s *MemoryStore) updateMetrics() {
	st := s.Stats(context.Background())
	for k, n := range st.Samples {
		metrics.UpdateStoredRecords(string(k), n)
	}
	metrics.UpdateStoredRecords("sleep_interval", st.SleepIntervals)
	metrics.UpdateStoredRecords("workout", st.Workouts)
}

func sampleStart(s model.BiometricSample) time.Time { return s.Start }
func intervalStart(iv model.SleepInterval) time.Time { return iv.Start }
func workoutStart(w model.WorkoutSession) time.Time  { return w.Start }

// insertByStart inserts v after every element with the same or earlier start.
func insertByStart[T any](list []T, v T, start func(T) time.Time) []T {
	at := start(v)
	i := sort.Search(len(list), func(i int) bool { return start(list[i]).After(at) })
	return slices.Insert(list, i, v)
}

// rangeByStart copies the elements whose start lies in [from, to].
func rangeByStart[T any](list []T, from, to time.Time, start func(T) time.Time) []T {
	lo := sort.Search(len(list), func(i int) bool { return !start(list[i]).Before(from) })
	hi := sort.Search(len(list), func(i int) bool { return start(list[i]).After(to) })
	if lo >= hi {
		return nil
	}
	return slices.Clone(list[lo:hi])
}

func dropBefore[T any](list []T, cutoff time.Time, start func(T) time.Time) ([]T, int) {
	i := sort.Search(len(list), func(i int) bool { return !start(list[i]).Before(cutoff) })
	if i == 0 {
		return list, 0
	}
	return slices.Clone(list[i:]), i
}
