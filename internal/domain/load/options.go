package load

import "github.com/okian/upready/pkg/logger"

const defaultConcurrency = 8

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithAge sets the user's age. Non-positive values keep DefaultAge.
func WithAge(age int) Option {
	return func(a *Aggregator) {
		if age > 0 {
			a.age = age
		}
	}
}

// WithConcurrency bounds the number of concurrent per-session queries.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
