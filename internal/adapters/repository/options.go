package repository

import (
	"time"

	"github.com/okian/upready/internal/domain/model"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval of the background maintenance
// loop that refreshes gauges and applies retention.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithRetention drops records that started longer ago than d.
func WithRetention(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithCapabilities declares which optional sensors the platform has.
func WithCapabilities(caps model.Capabilities) Option {
	return func(s *MemoryStore) {
		s.caps = caps
	}
}

// WithClock overrides time.Now for retention.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
