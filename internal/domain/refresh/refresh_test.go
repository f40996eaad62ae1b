package refresh_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/internal/domain/refresh"
	"github.com/okian/upready/internal/domain/summary"
	"github.com/okian/upready/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// 2025-03-12 is a Wednesday.
var morning = time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu       sync.Mutex
	samples  map[model.SampleKind][]model.BiometricSample
	sleep    []model.SleepInterval
	workouts []model.WorkoutSession
	birth    *time.Time
	caps     model.Capabilities
	block    map[model.SampleKind]bool
	fail     map[model.SampleKind]error

	// hold parks the next SleepIntervals call until it is closed; held is
	// closed when that call arrives.
	hold chan struct{}
	held chan struct{}
}

func (f *fakeSource) holdNextSleepQuery() (held, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold, f.held = make(chan struct{}), make(chan struct{})
	return f.held, f.hold
}

func (f *fakeSource) Samples(ctx context.Context, kind model.SampleKind, from, to time.Time) ([]model.BiometricSample, error) {
	f.mu.Lock()
	blocked, err := f.block[kind], f.fail[kind]
	var out []model.BiometricSample
	for _, s := range f.samples[kind] {
		if !s.Start.Before(from) && !s.Start.After(to) {
			out = append(out, s)
		}
	}
	f.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

func (f *fakeSource) SleepIntervals(ctx context.Context, from, to time.Time) ([]model.SleepInterval, error) {
	f.mu.Lock()
	hold, held := f.hold, f.held
	f.hold, f.held = nil, nil
	f.mu.Unlock()
	if hold != nil {
		close(held)
		<-hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SleepInterval
	for _, iv := range f.sleep {
		if !iv.Start.Before(from) && !iv.Start.After(to) {
			out = append(out, iv)
		}
	}
	return out, ctx.Err()
}

func (f *fakeSource) Workouts(ctx context.Context, from, to time.Time) ([]model.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.WorkoutSession
	for _, w := range f.workouts {
		if !w.Start.Before(from) && !w.Start.After(to) {
			out = append(out, w)
		}
	}
	return out, ctx.Err()
}

func (f *fakeSource) BirthDate(ctx context.Context) (*time.Time, error) {
	return f.birth, ctx.Err()
}

func (f *fakeSource) Capabilities(ctx context.Context) (model.Capabilities, error) {
	return f.caps, ctx.Err()
}

func (f *fakeSource) addWorkout(w model.WorkoutSession) {
	f.mu.Lock()
	f.workouts = append(f.workouts, w)
	f.mu.Unlock()
}

func sample(kind model.SampleKind, at time.Time, v float64) model.BiometricSample {
	return model.BiometricSample{Kind: kind, Start: at, End: at, Value: v}
}

// completeNight returns a source holding everything the gate requires.
func completeNight() *fakeSource {
	night := morning.Add(-9*time.Hour - 30*time.Minute) // 22:30
	hr := func(h, m int) time.Time { return night.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	src := &fakeSource{
		samples: map[model.SampleKind][]model.BiometricSample{
			model.KindHeartRate: {
				sample(model.KindHeartRate, hr(1, 0), 52),
				sample(model.KindHeartRate, hr(5, 0), 48),
				sample(model.KindHeartRate, hr(7, 45), 95), // awake
			},
			model.KindRestingHeartRate: {
				sample(model.KindRestingHeartRate, morning.Add(-48*time.Hour), 60),
				sample(model.KindRestingHeartRate, morning.Add(-time.Hour), 55),
			},
			model.KindHRV: {
				sample(model.KindHRV, morning.Add(-10*24*time.Hour), 60),
				sample(model.KindHRV, hr(2, 0), 42),
				sample(model.KindHRV, hr(6, 0), 38),
			},
			model.KindRespiratoryRate: {
				sample(model.KindRespiratoryRate, hr(3, 0), 14.5),
			},
		},
		sleep: []model.SleepInterval{
			{Stage: model.StageCore, Start: hr(0, 0), End: hr(4, 0)},
			{Stage: model.StageDeep, Start: hr(4, 0), End: hr(5, 30)},
			{Stage: model.StageREM, Start: hr(5, 30), End: hr(7, 30)},
			{Stage: model.StageAwake, Start: hr(7, 30), End: hr(8, 0)},
		},
		workouts: []model.WorkoutSession{{
			ID:       "run",
			Category: model.ActivityRunning,
			Start:    time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
			End:      time.Date(2025, 3, 10, 18, 10, 0, 0, time.UTC),
			HeartRate: []model.BiometricSample{
				{
					Kind:  model.KindHeartRate,
					Start: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
					End:   time.Date(2025, 3, 10, 18, 10, 0, 0, time.UTC),
					Value: 180,
				},
			},
		}},
	}
	return src
}

type fakeSummarizer struct {
	calls    atomic.Int32
	keywords []string
	mu       sync.Mutex
	fn       func(ctx context.Context) (string, error)
}

func (s *fakeSummarizer) Summarize(ctx context.Context, keywords []string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.keywords = keywords
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx)
	}
	return "Readiness score: 83. Sleep was solid.", nil
}

func (s *fakeSummarizer) count() int {
	return int(s.calls.Load())
}

type fakeStore struct {
	mu      sync.Mutex
	records []model.ReadinessRecord
	saveErr error
	histErr error
}

func (s *fakeStore) Save(_ context.Context, rec model.ReadinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) History(_ context.Context, from, to time.Time) ([]model.ReadinessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.histErr != nil {
		return nil, s.histErr
	}
	lo, hi := model.DayKey(from, time.UTC), model.DayKey(to, time.UTC)
	var out []model.ReadinessRecord
	for _, r := range s.records {
		if r.Day >= lo && r.Day <= hi {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeCache struct {
	mu   sync.Mutex
	snap *model.RefreshSnapshot
}

func (c *fakeCache) Get(context.Context) (*model.RefreshSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, nil
}

func (c *fakeCache) Set(_ context.Context, snap *model.RefreshSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	return nil
}

func (c *fakeCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newOrchestrator(src *fakeSource, sum *fakeSummarizer, store *fakeStore, clk *clock, opts ...refresh.Option) *refresh.Orchestrator {
	base := []refresh.Option{
		refresh.WithClock(clk.Now),
		refresh.WithLocation(time.UTC),
		refresh.WithFetchTimeout(time.Second),
	}
	return refresh.New(src, sum, store, append(base, opts...)...)
}

func TestRunCyclePersists(t *testing.T) {
	Convey("Given a complete night of data", t, func() {
		src := completeNight()
		sum := &fakeSummarizer{}
		store := &fakeStore{}
		clk := &clock{now: morning}
		o := newOrchestrator(src, sum, store, clk)

		Convey("When a cycle runs", func() {
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then the score is extracted and persisted", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, refresh.OutcomePersisted)
				So(res.Missing, ShouldBeEmpty)
				So(*res.Score, ShouldEqual, 83)
				So(store.saved(), ShouldEqual, 1)
				So(store.records[0].Day, ShouldEqual, "2025-03-12")
				So(store.records[0].Score, ShouldEqual, 83)
				So(store.records[0].CreatedAt, ShouldEqual, morning)
			})

			Convey("Then the metrics are computed from the night", func() {
				m := res.Metrics
				So(m.Sleep, ShouldNotBeNil)
				So(m.Sleep.Total, ShouldEqual, 8*time.Hour)
				So(*m.HeartRateRange, ShouldResemble, model.HeartRateRange{Min: 48, Max: 52})
				So(*m.RestingHeartRate, ShouldEqual, 55.0)
				So(*m.RestingHeartRateAverage, ShouldEqual, 57.5)
				So(*m.HRV, ShouldEqual, 40.0)
				So(*m.HRVBaseline, ShouldEqual, 50.0)
				So(m.StressLevel, ShouldEqual, "Moderate Stress")
				So(*m.RespiratoryRate, ShouldEqual, 14.5)
				So(m.Load, ShouldNotBeNil)
				So(m.Load.Cardiovascular, ShouldBeGreaterThan, 0)
			})

			Convey("Then the summarizer saw the keyword encoding", func() {
				So(sum.count(), ShouldEqual, 1)
				So(strings.Join(sum.keywords, "|"), ShouldContainSubstring, "Heart Rate Range: 48 - 52 bpm")
			})

			Convey("Then the snapshot is published with history", func() {
				snap := o.Snapshot()
				So(snap, ShouldNotBeNil)
				So(snap.LastFetch, ShouldEqual, morning)
				So(*snap.Score, ShouldEqual, 83)
				So(len(snap.History), ShouldEqual, 1)
				So(o.LastResult(), ShouldEqual, res)
				So(o.State(), ShouldEqual, refresh.StateIdle)
			})

			Convey("And another cycle runs with no new data", func() {
				clk.Advance(time.Hour)
				again, err := o.RunCycle(context.Background(), refresh.Request{})

				Convey("Then the cached snapshot is reused", func() {
					So(err, ShouldBeNil)
					So(again.Outcome, ShouldEqual, refresh.OutcomeCached)
					So(again.Snapshot, ShouldEqual, res.Snapshot)
					So(sum.count(), ShouldEqual, 1)
					So(store.saved(), ShouldEqual, 1)
				})
			})

			Convey("And a workout lands after the last fetch", func() {
				src.addWorkout(model.WorkoutSession{
					ID:       "lift",
					Category: model.ActivityTraditionalStrength,
					Start:    morning.Add(30 * time.Minute),
					End:      morning.Add(70 * time.Minute),
				})
				clk.Advance(2 * time.Hour)
				again, err := o.RunCycle(context.Background(), refresh.Request{})

				Convey("Then the cycle recomputes and appends", func() {
					So(err, ShouldBeNil)
					So(again.Outcome, ShouldEqual, refresh.OutcomePersisted)
					So(store.saved(), ShouldEqual, 2)
					So(again.Metrics.Load.Muscular, ShouldBeGreaterThan, 0)
				})

				Convey("Then history keeps one record per day", func() {
					So(len(again.Snapshot.History), ShouldEqual, 1)
					So(again.Snapshot.History[0].CreatedAt, ShouldEqual, morning.Add(2*time.Hour))
				})
			})

			Convey("And a forced cycle runs with no new data", func() {
				again, err := o.RunCycle(context.Background(), refresh.Request{Force: true})

				Convey("Then staleness is skipped", func() {
					So(err, ShouldBeNil)
					So(again.Outcome, ShouldEqual, refresh.OutcomePersisted)
					So(sum.count(), ShouldEqual, 2)
				})
			})
		})
	})
}

func TestRunCycleIncomplete(t *testing.T) {
	Convey("Given a night without resting heart rate", t, func() {
		src := completeNight()
		delete(src.samples, model.KindRestingHeartRate)
		sum := &fakeSummarizer{}
		store := &fakeStore{}
		o := newOrchestrator(src, sum, store, &clock{now: morning})

		Convey("When a cycle runs", func() {
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then the cycle is abandoned without summarizing", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, refresh.OutcomeIncomplete)
				So(res.Missing, ShouldResemble, []string{"resting_heart_rate"})
				So(sum.count(), ShouldEqual, 0)
				So(store.saved(), ShouldEqual, 0)
				So(o.Snapshot(), ShouldBeNil)
			})
		})
	})

	Convey("Given a platform with a temperature sensor but no readings", t, func() {
		src := completeNight()
		src.caps = model.Capabilities{BodyTemperature: true}
		sum := &fakeSummarizer{}
		o := newOrchestrator(src, sum, &fakeStore{}, &clock{now: morning})

		Convey("When a cycle runs", func() {
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then both temperature slots are reported in checklist order", func() {
				So(err, ShouldBeNil)
				So(res.Missing, ShouldResemble, []string{"body_temperature_comparison", "body_temperature"})
				So(sum.count(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a respiratory fetch that never returns", t, func() {
		src := completeNight()
		src.block = map[model.SampleKind]bool{model.KindRespiratoryRate: true}
		sum := &fakeSummarizer{}
		o := newOrchestrator(src, sum, &fakeStore{}, &clock{now: morning},
			refresh.WithFetchTimeout(20*time.Millisecond))

		Convey("When a cycle runs", func() {
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then the timed out metric is missing", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, refresh.OutcomeIncomplete)
				So(res.Missing, ShouldResemble, []string{"respiratory_rate"})
			})
		})
	})

	Convey("Given a failing heart rate query", t, func() {
		src := completeNight()
		src.fail = map[model.SampleKind]error{model.KindHeartRate: errors.New("io")}
		o := newOrchestrator(src, &fakeSummarizer{}, &fakeStore{}, &clock{now: morning})

		Convey("When a cycle runs", func() {
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then only the heart rate range is missing", func() {
				So(err, ShouldBeNil)
				So(res.Missing, ShouldResemble, []string{"heart_rate_range"})
			})
		})
	})
}

func TestRunCycleFailures(t *testing.T) {
	Convey("Given a complete night", t, func() {
		src := completeNight()
		store := &fakeStore{}

		Convey("When the summarizer fails", func() {
			sum := &fakeSummarizer{fn: func(context.Context) (string, error) { return "", errors.New("503") }}
			o := newOrchestrator(src, sum, store, &clock{now: morning})
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then nothing is persisted and the marker does not advance", func() {
				So(errors.Is(err, refresh.ErrSummarize), ShouldBeTrue)
				So(res.Outcome, ShouldEqual, refresh.OutcomeSummarizeFailed)
				So(store.saved(), ShouldEqual, 0)
				So(o.Snapshot(), ShouldBeNil)
			})
		})

		Convey("When the summary has no digits", func() {
			sum := &fakeSummarizer{fn: func(context.Context) (string, error) { return "You look well rested.", nil }}
			o := newOrchestrator(src, sum, store, &clock{now: morning})
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then extraction fails without a write", func() {
				So(errors.Is(err, summary.ErrExtraction), ShouldBeTrue)
				So(res.Outcome, ShouldEqual, refresh.OutcomeExtractionFailed)
				So(res.Summary, ShouldEqual, "You look well rested.")
				So(store.saved(), ShouldEqual, 0)
			})
		})

		Convey("When the store rejects the write", func() {
			store.saveErr = errors.New("disk full")
			o := newOrchestrator(src, &fakeSummarizer{}, store, &clock{now: morning})
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then the marker advances but the content is not replaced", func() {
				So(errors.Is(err, refresh.ErrPersist), ShouldBeTrue)
				So(res.Outcome, ShouldEqual, refresh.OutcomePersistFailed)
				snap := o.Snapshot()
				So(snap, ShouldNotBeNil)
				So(snap.LastFetch, ShouldEqual, morning)
				So(snap.Score, ShouldBeNil)
			})
		})

		Convey("When the cycle is cancelled during summarization", func() {
			ctx, cancel := context.WithCancel(context.Background())
			sum := &fakeSummarizer{fn: func(ctx context.Context) (string, error) {
				cancel()
				<-ctx.Done()
				return "", ctx.Err()
			}}
			o := newOrchestrator(src, sum, store, &clock{now: morning})
			res, err := o.RunCycle(ctx, refresh.Request{})

			Convey("Then the cycle aborts without persisting", func() {
				So(errors.Is(err, refresh.ErrCancelled), ShouldBeTrue)
				So(res.Outcome, ShouldEqual, refresh.OutcomeCancelled)
				So(store.saved(), ShouldEqual, 0)
				So(o.Snapshot(), ShouldBeNil)
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			sum := &fakeSummarizer{}
			o := newOrchestrator(src, sum, store, &clock{now: morning})
			res, err := o.RunCycle(ctx, refresh.Request{Force: true})

			Convey("Then no fetch result is summarized", func() {
				So(errors.Is(err, refresh.ErrCancelled), ShouldBeTrue)
				So(res.Outcome, ShouldEqual, refresh.OutcomeCancelled)
				So(sum.count(), ShouldEqual, 0)
			})
		})

		Convey("When history cannot be read back", func() {
			store.histErr = errors.New("locked")
			o := newOrchestrator(src, &fakeSummarizer{}, store, &clock{now: morning})
			res, err := o.RunCycle(context.Background(), refresh.Request{})

			Convey("Then the new record still reaches the snapshot history", func() {
				So(err, ShouldBeNil)
				So(len(res.Snapshot.History), ShouldEqual, 1)
				So(res.Snapshot.History[0].Score, ShouldEqual, 83)
			})
		})
	})
}

func TestRunCycleConcurrent(t *testing.T) {
	Convey("Given a slow summarizer", t, func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		sum := &fakeSummarizer{fn: func(context.Context) (string, error) {
			once.Do(func() { close(entered) })
			<-release
			return "75", nil
		}}
		store := &fakeStore{}
		o := newOrchestrator(completeNight(), sum, store, &clock{now: morning})

		Convey("When several cycles are requested at once", func() {
			var wg sync.WaitGroup
			results := make([]*refresh.Result, 5)
			run := func(i int) {
				defer wg.Done()
				results[i], _ = o.RunCycle(context.Background(), refresh.Request{})
			}
			wg.Add(1)
			go run(0)
			<-entered
			for i := 1; i < len(results); i++ {
				wg.Add(1)
				go run(i)
			}
			time.Sleep(50 * time.Millisecond)
			So(o.State(), ShouldEqual, refresh.StateSummarizing)
			close(release)
			wg.Wait()

			Convey("Then exactly one record is written", func() {
				So(store.saved(), ShouldEqual, 1)
				So(sum.count(), ShouldEqual, 1)
				for _, r := range results {
					So(r, ShouldNotBeNil)
				}
			})
		})
	})
}

func TestRunCycleCallers(t *testing.T) {
	Convey("Given a night that was already scored", t, func() {
		src := completeNight()
		sum := &fakeSummarizer{}
		store := &fakeStore{}
		o := newOrchestrator(src, sum, store, &clock{now: morning})
		_, err := o.RunCycle(context.Background(), refresh.Request{})
		So(err, ShouldBeNil)
		So(store.saved(), ShouldEqual, 1)

		Convey("When a forced cycle arrives while an unforced one probes staleness", func() {
			held, release := src.holdNextSleepQuery()
			unforced := make(chan *refresh.Result, 1)
			go func() {
				res, _ := o.RunCycle(context.Background(), refresh.Request{})
				unforced <- res
			}()
			<-held

			forced := make(chan *refresh.Result, 1)
			go func() {
				res, _ := o.RunCycle(context.Background(), refresh.Request{Force: true})
				forced <- res
			}()
			time.Sleep(50 * time.Millisecond)
			close(release)

			Convey("Then the forced request runs its own cycle", func() {
				So((<-unforced).Outcome, ShouldEqual, refresh.OutcomeCached)
				So((<-forced).Outcome, ShouldEqual, refresh.OutcomePersisted)
				So(store.saved(), ShouldEqual, 2)
				So(sum.count(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a slow summarizer shared by two callers", t, func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		sum := &fakeSummarizer{fn: func(ctx context.Context) (string, error) {
			once.Do(func() { close(entered) })
			select {
			case <-release:
				return "75", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}}
		store := &fakeStore{}
		o := newOrchestrator(completeNight(), sum, store, &clock{now: morning})

		type outcome struct {
			res *refresh.Result
			err error
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		first := make(chan outcome, 1)
		go func() {
			res, err := o.RunCycle(ctx, refresh.Request{})
			first <- outcome{res, err}
		}()
		<-entered
		second := make(chan outcome, 1)
		go func() {
			res, err := o.RunCycle(context.Background(), refresh.Request{})
			second <- outcome{res, err}
		}()
		time.Sleep(50 * time.Millisecond)

		Convey("When the first caller goes away", func() {
			cancel()

			Convey("Then only that caller is released as cancelled", func() {
				var got outcome
				select {
				case got = <-first:
				case <-time.After(2 * time.Second):
				}
				So(errors.Is(got.err, refresh.ErrCancelled), ShouldBeTrue)
				So(got.res, ShouldNotBeNil)
				So(got.res.Outcome, ShouldEqual, refresh.OutcomeCancelled)

				close(release)
				rest := <-second
				So(rest.err, ShouldBeNil)
				So(rest.res.Outcome, ShouldEqual, refresh.OutcomePersisted)
				So(*rest.res.Score, ShouldEqual, 75)
				So(store.saved(), ShouldEqual, 1)
				So(sum.count(), ShouldEqual, 1)
			})
		})
	})
}

func TestRestoreAndInvalidate(t *testing.T) {
	Convey("Given a cache holding a snapshot", t, func() {
		score := 70
		cache := &fakeCache{snap: &model.RefreshSnapshot{CycleID: "old", LastFetch: morning, Score: &score}}
		o := newOrchestrator(completeNight(), &fakeSummarizer{}, &fakeStore{}, &clock{now: morning.Add(time.Hour)},
			refresh.WithSnapshotCache(cache))

		Convey("When restoring", func() {
			So(o.Restore(context.Background()), ShouldBeNil)

			Convey("Then the snapshot is served and suppresses a refresh", func() {
				So(o.Snapshot().CycleID, ShouldEqual, "old")
				res, err := o.RunCycle(context.Background(), refresh.Request{})
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, refresh.OutcomeCached)
			})

			Convey("And invalidating", func() {
				So(o.Invalidate(context.Background()), ShouldBeNil)

				Convey("Then the snapshot and cache are cleared and the next cycle writes through", func() {
					So(o.Snapshot(), ShouldBeNil)
					res, err := o.RunCycle(context.Background(), refresh.Request{})
					So(err, ShouldBeNil)
					So(res.Outcome, ShouldEqual, refresh.OutcomePersisted)
					So(cache.snap, ShouldEqual, res.Snapshot)
				})
			})
		})
	})
}

func TestStateString(t *testing.T) {
	Convey("States have stable names", t, func() {
		So(refresh.StateIdle.String(), ShouldEqual, "idle")
		So(refresh.StateFetchingParallel.String(), ShouldEqual, "fetching_parallel")
		So(refresh.State(99).String(), ShouldEqual, "unknown")
	})
}
