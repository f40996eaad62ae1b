package load

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/pkg/logger"
)

// HeartRateSource loads heart-rate samples for a window.
type HeartRateSource interface {
	Samples(ctx context.Context, kind model.SampleKind, from, to time.Time) ([]model.BiometricSample, error)
}

// Accumulator is a float sum safe for concurrent writers.
type Accumulator struct {
	mu    sync.Mutex
	total float64
}

// Add adds v to the sum.
func (a *Accumulator) Add(v float64) {
	a.mu.Lock()
	a.total += v
	a.mu.Unlock()
}

// Value returns the current sum.
func (a *Accumulator) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Aggregator computes weekly load, querying per-session heart rate
// concurrently when a session carries no nested samples.
type Aggregator struct {
	source      HeartRateSource
	age         int
	concurrency int
	logger      logger.Logger
}

// NewAggregator creates an Aggregator. source may be nil, in which case only
// nested samples are used.
func NewAggregator(source HeartRateSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:      source,
		age:         DefaultAge,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("load")
	}
	return a
}

// Compute runs cardiovascular and muscular accumulation in parallel and
// normalizes once both are done. A failed per-session heart-rate query counts
// that session's cardio as zero; only context cancellation aborts.
func (a *Aggregator) Compute(ctx context.Context, sessions []model.WorkoutSession, weekStart time.Time) (model.LoadScalar, error) {
	week := make([]model.WorkoutSession, 0, len(sessions))
	for _, s := range sessions {
		if InWeek(s.Start, weekStart) {
			week = append(week, s)
		}
	}

	var (
		cardio   Accumulator
		muscular float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.cardio(gctx, week, &cardio)
	})
	g.Go(func() error {
		for _, s := range week {
			muscular += SessionMuscular(s)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.LoadScalar{}, err
	}
	return Scalar(cardio.Value(), muscular), nil
}

func (a *Aggregator) cardio(ctx context.Context, sessions []model.WorkoutSession, acc *Accumulator) error {
	maxHR := MaxHeartRate(a.age)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, s := range sessions {
		g.Go(func() error {
			samples := s.HeartRate
			if len(samples) == 0 && a.source != nil {
				var err error
				samples, err = a.source.Samples(gctx, model.KindHeartRate, s.Start, s.End)
				if err != nil {
					if gctx.Err() != nil {
						return fmt.Errorf("session %s heart rate: %w", s.ID, gctx.Err())
					}
					a.logger.Warn(gctx, "heart rate query failed; session cardio counted as zero",
						logger.String("session", s.ID),
						logger.Error(err),
					)
					return nil
				}
			}
			acc.Add(SessionCardio(s, samples, maxHR))
			return nil
		})
	}
	return g.Wait()
}
