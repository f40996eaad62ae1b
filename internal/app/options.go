package service

import (
	"time"

	"github.com/okian/upready/internal/adapters/cache"
	"github.com/okian/upready/internal/domain/refresh"
	"github.com/okian/upready/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSummarizer replaces the configured summarizer.
func WithSummarizer(sum refresh.Summarizer) Option {
	return func(s *Service) {
		s.summarizerOverride = sum
	}
}

// WithRedisClient injects the client used by the redis cache backend.
func WithRedisClient(c cache.RedisClient) Option {
	return func(s *Service) {
		s.redisClient = c
	}
}

// WithoutWorkers leaves the ingest queue undrained. Used by one-off runs
// that load samples through Ingest.
func WithoutWorkers() Option {
	return func(s *Service) {
		s.withoutWorkers = true
	}
}

// WithoutScheduler disables scheduled refreshes.
func WithoutScheduler() Option {
	return func(s *Service) {
		s.withoutScheduler = true
	}
}

// WithClock overrides time.Now in the store and orchestrator.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
