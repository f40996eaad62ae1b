package completeness

// Option configures a Gate.
type Option func(*Gate)

// WithOnComplete registers a hook that runs once when the gate completes.
func WithOnComplete(fn func()) Option {
	return func(g *Gate) {
		g.onComplete = fn
	}
}
