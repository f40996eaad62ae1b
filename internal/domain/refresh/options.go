package refresh

import (
	"time"

	"github.com/okian/upready/internal/domain/sleep"
	"github.com/okian/upready/pkg/logger"
)

// Default orchestrator configuration.
const (
	defaultFetchTimeout    = 10 * time.Second
	defaultHistoryDays     = 30
	defaultLoadConcurrency = 8
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLocation sets the time zone for calendar days and weeks.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithFetchTimeout bounds each individual metric fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithHistoryDays sets how many days of readiness history are cached.
func WithHistoryDays(days int) Option {
	return func(o *Orchestrator) {
		if days > 0 {
			o.historyDays = days
		}
	}
}

// WithTotalPolicy selects the total-sleep policy.
func WithTotalPolicy(p sleep.TotalPolicy) Option {
	return func(o *Orchestrator) {
		o.totalPolicy = p
	}
}

// WithDefaultAge sets the age used when the profile has no birth date.
func WithDefaultAge(age int) Option {
	return func(o *Orchestrator) {
		if age > 0 {
			o.defaultAge = age
		}
	}
}

// WithSnapshotCache persists published snapshots.
func WithSnapshotCache(c SnapshotCache) Option {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

// WithLoadConcurrency bounds concurrent per-session heart-rate queries.
func WithLoadConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.loadConcurrency = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}
