package api

import "time"

type serverConfig struct {
	loc         *time.Location
	now         func() time.Time
	historyDays int
	maxBody     int64
}

// Option configures a Server.
type Option func(*serverConfig)

// WithLocation sets the time zone for calendar days in history queries.
func WithLocation(loc *time.Location) Option {
	return func(c *serverConfig) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *serverConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHistoryDays sets the default window of GET /readiness/history.
func WithHistoryDays(days int) Option {
	return func(c *serverConfig) {
		if days > 0 && days <= maxHistoryDays {
			c.historyDays = days
		}
	}
}

// WithMaxBodyBytes caps request bodies on POST /samples.
func WithMaxBodyBytes(n int64) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxBody = n
		}
	}
}
