// Package completeness decides when a refresh cycle has enough metrics to summarize.
package completeness

import (
	"sync"

	"github.com/okian/upready/internal/domain/model"
)

// Metric names a checklist slot.
type Metric string

// Checklist slots.
const (
	MetricHeartRateRange            Metric = "heart_rate_range"
	MetricRestingHeartRate          Metric = "resting_heart_rate"
	MetricHRV                       Metric = "hrv"
	MetricHRVBaseline               Metric = "hrv_baseline"
	MetricRespiratoryRate           Metric = "respiratory_rate"
	MetricBodyTemperatureComparison Metric = "body_temperature_comparison"
	MetricStressLevel               Metric = "stress_level"
	MetricBloodOxygen               Metric = "blood_oxygen"
	MetricBodyTemperature           Metric = "body_temperature"
)

// Required returns the ordered checklist for the given capabilities. Blood
// oxygen and both temperature slots are only required when the sensor exists.
func Required(caps model.Capabilities) []Metric {
	out := []Metric{
		MetricHeartRateRange,
		MetricRestingHeartRate,
		MetricHRV,
		MetricHRVBaseline,
		MetricRespiratoryRate,
	}
	if caps.BodyTemperature {
		out = append(out, MetricBodyTemperatureComparison)
	}
	out = append(out, MetricStressLevel)
	if caps.BloodOxygen {
		out = append(out, MetricBloodOxygen)
	}
	if caps.BodyTemperature {
		out = append(out, MetricBodyTemperature)
	}
	return out
}

// Check returns the required metrics absent from present, in checklist order.
func Check(present map[Metric]bool, caps model.Capabilities) []Metric {
	var missing []Metric
	for _, m := range Required(caps) {
		if !present[m] {
			missing = append(missing, m)
		}
	}
	return missing
}

// Names converts metrics to plain strings.
func Names(ms []Metric) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}

// Gate tracks populated slots for one refresh cycle. It is safe for
// concurrent use and completes at most once.
type Gate struct {
	mu         sync.Mutex
	caps       model.Capabilities
	present    map[Metric]bool
	fired      bool
	done       chan struct{}
	onComplete func()
}

// NewGate creates a gate for one cycle.
func NewGate(caps model.Capabilities, opts ...Option) *Gate {
	g := &Gate{
		caps:    caps,
		present: make(map[Metric]bool),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mark records m as populated. It returns true only for the call that moves
// the gate to complete; the completion hook runs on that call's goroutine
// after the lock is released.
func (g *Gate) Mark(m Metric) bool {
	g.mu.Lock()
	g.present[m] = true
	if g.fired || len(Check(g.present, g.caps)) > 0 {
		g.mu.Unlock()
		return false
	}
	g.fired = true
	close(g.done)
	hook := g.onComplete
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return true
}

// Missing returns the metrics not yet populated, in checklist order.
func (g *Gate) Missing() []Metric {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Check(g.present, g.caps)
}

// Complete reports whether the gate has fired.
func (g *Gate) Complete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// Done is closed when the gate completes.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}
