package sleep

type reconcileConfig struct {
	policy TotalPolicy
}

// Option configures ReconcileIntervals.
type Option func(*reconcileConfig)

// WithTotalPolicy selects the total-sleep policy.
func WithTotalPolicy(p TotalPolicy) Option {
	return func(c *reconcileConfig) {
		c.policy = p
	}
}
