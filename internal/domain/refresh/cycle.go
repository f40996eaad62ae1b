package refresh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/upready/internal/domain/completeness"
	"github.com/okian/upready/internal/domain/load"
	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/internal/domain/sleep"
	"github.com/okian/upready/internal/domain/stress"
	"github.com/okian/upready/internal/domain/summary"
	"github.com/okian/upready/pkg/logger"
	"github.com/okian/upready/pkg/metrics"
)

// Query windows relative to the cycle start.
const (
	lastNight            = 24 * time.Hour
	hrvBaselineWindow    = stress.BaselineWindowDays * 24 * time.Hour
	temperatureWindow    = 30 * 24 * time.Hour
	restingAverageWindow = 90 * 24 * time.Hour
)

// Fetch names used in logs and metrics.
const (
	fetchSleep           = "sleep_intervals"
	fetchHeartRateRange  = "heart_rate_range"
	fetchRestingHR       = "resting_heart_rate"
	fetchRestingHRAvg    = "resting_heart_rate_average"
	fetchHRV             = "hrv"
	fetchHRVSeries       = "hrv_series"
	fetchBloodOxygen     = "blood_oxygen"
	fetchBodyTemperature = "body_temperature"
	fetchRespiratoryRate = "respiratory_rate"
	fetchWorkouts        = "workouts"
	fetchProfile         = "profile"
)

// cycle is the in-flight state of one refresh. It is owned by a single
// runCycle call and discarded afterwards.
type cycle struct {
	o    *Orchestrator
	now  time.Time
	gate *completeness.Gate

	mu         sync.Mutex
	metrics    model.Metrics
	workouts   []model.WorkoutSession
	workoutsOK bool
	age        int

	hrvDone      chan struct{}
	baselineDone chan struct{}
}

func newCycle(o *Orchestrator, now time.Time) *cycle {
	return &cycle{
		o:            o,
		now:          now,
		age:          o.defaultAge,
		hrvDone:      make(chan struct{}),
		baselineDone: make(chan struct{}),
	}
}

// fetchAll fans out every metric fetch and waits for all of them. Only
// cancellation of ctx is returned; other failures mark the metric missing.
func (c *cycle) fetchAll(ctx context.Context) error {
	caps, err := c.o.source.Capabilities(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.o.logger.Warn(ctx, "capabilities unavailable; optional sensors skipped", logger.Error(err))
	}
	c.gate = completeness.NewGate(caps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.run(gctx, fetchSleep, c.fetchSleep) })
	g.Go(func() error { return c.run(gctx, fetchHeartRateRange, c.fetchHeartRateRange) })
	g.Go(func() error { return c.run(gctx, fetchRestingHR, c.fetchRestingHR) })
	g.Go(func() error { return c.run(gctx, fetchRestingHRAvg, c.fetchRestingHRAverage) })
	g.Go(func() error {
		defer close(c.hrvDone)
		return c.run(gctx, fetchHRV, c.fetchHRV)
	})
	g.Go(func() error {
		defer close(c.baselineDone)
		return c.run(gctx, fetchHRVSeries, c.fetchHRVSeries)
	})
	g.Go(func() error { return c.classifyStress(gctx) })
	if caps.BloodOxygen {
		g.Go(func() error { return c.run(gctx, fetchBloodOxygen, c.fetchBloodOxygen) })
	}
	if caps.BodyTemperature {
		g.Go(func() error { return c.run(gctx, fetchBodyTemperature, c.fetchBodyTemperature) })
	}
	g.Go(func() error { return c.run(gctx, fetchRespiratoryRate, c.fetchRespiratoryRate) })
	g.Go(func() error { return c.run(gctx, fetchWorkouts, c.fetchWorkouts) })
	g.Go(func() error { return c.run(gctx, fetchProfile, c.fetchProfile) })

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// run executes one fetch under its own timeout. A timeout, an error or an
// empty result leaves the metric unavailable; only parent cancellation is
// returned.
func (c *cycle) run(ctx context.Context, name string, fetch func(context.Context) error) error {
	fctx, cancel := context.WithTimeout(ctx, c.o.fetchTimeout)
	defer cancel()

	start := time.Now()
	err := fetch(fctx)
	metrics.RecordFetchLatency(name, float64(time.Since(start).Milliseconds()))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	metrics.RecordMetricUnavailable(name)
	switch {
	case errors.Is(err, errNoData):
		c.o.logger.Debug(ctx, "metric unavailable", logger.String("fetch", name))
	case errors.Is(err, context.DeadlineExceeded):
		c.o.logger.Warn(ctx, "metric fetch timed out", logger.String("fetch", name), logger.Duration("timeout", c.o.fetchTimeout))
	default:
		c.o.logger.Warn(ctx, "metric fetch failed", logger.String("fetch", name), logger.Error(err))
	}
	return nil
}

func (c *cycle) set(fn func(m *model.Metrics)) {
	c.mu.Lock()
	fn(&c.metrics)
	c.mu.Unlock()
}

func (c *cycle) fetchSleep(ctx context.Context) error {
	intervals, err := c.o.source.SleepIntervals(ctx, c.now.Add(-lastNight), c.now)
	if err != nil {
		return err
	}
	if len(intervals) == 0 {
		return errNoData
	}
	totals := sleep.ReconcileIntervals(intervals, sleep.WithTotalPolicy(c.o.totalPolicy))
	perf := sleep.ScoreTotals(totals)
	c.set(func(m *model.Metrics) {
		m.Sleep = &totals
		m.SleepPerformance = &perf
	})
	return nil
}

func (c *cycle) fetchHeartRateRange(ctx context.Context) error {
	intervals, err := c.o.source.SleepIntervals(ctx, c.now.Add(-lastNight), c.now)
	if err != nil {
		return err
	}
	var asleep []model.SleepInterval
	var from, to time.Time
	for _, iv := range intervals {
		if !iv.Stage.Asleep() || !iv.End.After(iv.Start) {
			continue
		}
		if from.IsZero() || iv.Start.Before(from) {
			from = iv.Start
		}
		if iv.End.After(to) {
			to = iv.End
		}
		asleep = append(asleep, iv)
	}
	if len(asleep) == 0 {
		return errNoData
	}
	samples, err := c.o.source.Samples(ctx, model.KindHeartRate, from, to)
	if err != nil {
		return err
	}
	hr := model.HeartRateRange{Min: math.Inf(1), Max: math.Inf(-1)}
	found := false
	for _, s := range samples {
		if !duringAny(s.Start, asleep) {
			continue
		}
		found = true
		hr.Min = math.Min(hr.Min, s.Value)
		hr.Max = math.Max(hr.Max, s.Value)
	}
	if !found {
		return errNoData
	}
	c.set(func(m *model.Metrics) { m.HeartRateRange = &hr })
	c.gate.Mark(completeness.MetricHeartRateRange)
	return nil
}

func (c *cycle) fetchRestingHR(ctx context.Context) error {
	v, err := c.latest(ctx, model.KindRestingHeartRate, lastNight)
	if err != nil {
		return err
	}
	c.set(func(m *model.Metrics) { m.RestingHeartRate = &v })
	c.gate.Mark(completeness.MetricRestingHeartRate)
	return nil
}

func (c *cycle) fetchRestingHRAverage(ctx context.Context) error {
	v, err := c.mean(ctx, model.KindRestingHeartRate, restingAverageWindow)
	if err != nil {
		return err
	}
	c.set(func(m *model.Metrics) { m.RestingHeartRateAverage = &v })
	return nil
}

func (c *cycle) fetchHRV(ctx context.Context) error {
	v, err := c.mean(ctx, model.KindHRV, lastNight)
	if err != nil {
		return err
	}
	c.set(func(m *model.Metrics) { m.HRV = &v })
	c.gate.Mark(completeness.MetricHRV)
	return nil
}

func (c *cycle) fetchHRVSeries(ctx context.Context) error {
	samples, err := c.o.source.Samples(ctx, model.KindHRV, c.now.Add(-hrvBaselineWindow), c.now)
	if err != nil {
		return err
	}
	baseline, ok := stress.Baseline(stress.DailyAverages(samples, c.o.loc))
	if !ok {
		return errNoData
	}
	c.set(func(m *model.Metrics) { m.HRVBaseline = &baseline })
	c.gate.Mark(completeness.MetricHRVBaseline)
	return nil
}

// classifyStress runs once both HRV fetches have reported.
func (c *cycle) classifyStress(ctx context.Context) error {
	for _, done := range []chan struct{}{c.hrvDone, c.baselineDone} {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	level := stress.Classify(c.metrics.HRVBaseline, c.metrics.HRV)
	c.metrics.StressLevel = string(level)
	c.mu.Unlock()
	c.gate.Mark(completeness.MetricStressLevel)
	return nil
}

func (c *cycle) fetchBloodOxygen(ctx context.Context) error {
	v, err := c.mean(ctx, model.KindBloodOxygen, lastNight)
	if err != nil {
		return err
	}
	c.set(func(m *model.Metrics) { m.BloodOxygen = &v })
	c.gate.Mark(completeness.MetricBloodOxygen)
	return nil
}

// fetchBodyTemperature reads last night's wrist temperature and compares it
// with the 30-day average.
func (c *cycle) fetchBodyTemperature(ctx context.Context) error {
	samples, err := c.o.source.Samples(ctx, model.KindBodyTemperature, c.now.Add(-temperatureWindow), c.now)
	if err != nil {
		return err
	}
	baseline, ok := stress.Mean(samples)
	if !ok {
		return errNoData
	}
	var last *model.BiometricSample
	cutoff := c.now.Add(-lastNight)
	for i := range samples {
		s := &samples[i]
		if s.Start.Before(cutoff) {
			continue
		}
		if last == nil || s.Start.After(last.Start) {
			last = s
		}
	}
	if last == nil {
		return errNoData
	}
	v := last.Value
	cmp := summary.CompareTemperature(v, baseline)
	c.set(func(m *model.Metrics) {
		m.BodyTemperature = &v
		m.BodyTemperatureComparison = cmp
	})
	c.gate.Mark(completeness.MetricBodyTemperature)
	c.gate.Mark(completeness.MetricBodyTemperatureComparison)
	return nil
}

func (c *cycle) fetchRespiratoryRate(ctx context.Context) error {
	v, err := c.mean(ctx, model.KindRespiratoryRate, lastNight)
	if err != nil {
		return err
	}
	c.set(func(m *model.Metrics) { m.RespiratoryRate = &v })
	c.gate.Mark(completeness.MetricRespiratoryRate)
	return nil
}

func (c *cycle) fetchWorkouts(ctx context.Context) error {
	workouts, err := c.o.source.Workouts(ctx, load.WeekStart(c.now, c.o.loc), c.now)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.workouts = workouts
	c.workoutsOK = true
	c.mu.Unlock()
	return nil
}

func (c *cycle) fetchProfile(ctx context.Context) error {
	birth, err := c.o.source.BirthDate(ctx)
	if err != nil {
		return err
	}
	if birth == nil {
		return errNoData
	}
	if age := load.AgeAt(*birth, c.now); age > 0 {
		c.mu.Lock()
		c.age = age
		c.mu.Unlock()
	}
	return nil
}

// computeLoad runs after the fan-in barrier. Without a workout fetch the load
// stays unavailable.
func (c *cycle) computeLoad(ctx context.Context) error {
	c.mu.Lock()
	workouts, ok, age := c.workouts, c.workoutsOK, c.age
	c.mu.Unlock()
	if !ok {
		return nil
	}
	agg := load.NewAggregator(c.o.source,
		load.WithAge(age),
		load.WithConcurrency(c.o.loadConcurrency),
		load.WithLogger(c.o.logger),
	)
	scalar, err := agg.Compute(ctx, workouts, load.WeekStart(c.now, c.o.loc))
	if err != nil {
		return fmt.Errorf("compute load: %w", err)
	}
	c.set(func(m *model.Metrics) { m.Load = &scalar })
	return nil
}

// snapshotMetrics returns a copy of the metrics gathered so far.
func (c *cycle) snapshotMetrics() model.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *cycle) mean(ctx context.Context, kind model.SampleKind, window time.Duration) (float64, error) {
	samples, err := c.o.source.Samples(ctx, kind, c.now.Add(-window), c.now)
	if err != nil {
		return 0, err
	}
	v, ok := stress.Mean(samples)
	if !ok {
		return 0, errNoData
	}
	return v, nil
}

func (c *cycle) latest(ctx context.Context, kind model.SampleKind, window time.Duration) (float64, error) {
	samples, err := c.o.source.Samples(ctx, kind, c.now.Add(-window), c.now)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, errNoData
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.Start.After(latest.Start) {
			latest = s
		}
	}
	return latest.Value, nil
}

func duringAny(t time.Time, intervals []model.SleepInterval) bool {
	for _, iv := range intervals {
		if !t.Before(iv.Start) && !t.After(iv.End) {
			return true
		}
	}
	return false
}
