package model

import "time"

// StageTotals are reconciled per-stage sleep durations plus the total under
// the configured total-sleep policy.
type StageTotals struct {
	Awake       time.Duration `json:"awake"`
	Core        time.Duration `json:"core"`
	Deep        time.Duration `json:"deep"`
	REM         time.Duration `json:"rem"`
	Unspecified time.Duration `json:"unspecified"`
	Total       time.Duration `json:"total"`
}

// StageSum returns the sum of all five stage buckets.
func (t StageTotals) StageSum() time.Duration {
	return t.Awake + t.Core + t.Deep + t.REM + t.Unspecified
}

// HeartRateRange is the min and max heart rate observed while asleep.
type HeartRateRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Metrics are the values computed during one refresh cycle. Nil pointers mean
// the metric was unavailable.
type Metrics struct {
	Sleep                     *StageTotals    `json:"sleep,omitempty"`
	SleepPerformance          *float64        `json:"sleep_performance,omitempty"`
	HeartRateRange            *HeartRateRange `json:"heart_rate_range,omitempty"`
	RestingHeartRate          *float64        `json:"resting_heart_rate,omitempty"`
	RestingHeartRateAverage   *float64        `json:"resting_heart_rate_average,omitempty"`
	HRV                       *float64        `json:"hrv,omitempty"`
	HRVBaseline               *float64        `json:"hrv_baseline,omitempty"`
	BloodOxygen               *float64        `json:"blood_oxygen,omitempty"`
	BodyTemperature           *float64        `json:"body_temperature,omitempty"`
	BodyTemperatureComparison string          `json:"body_temperature_comparison,omitempty"`
	RespiratoryRate           *float64        `json:"respiratory_rate,omitempty"`
	StressLevel               string          `json:"stress_level,omitempty"`
	Load                      *LoadScalar     `json:"load,omitempty"`
}

// RefreshSnapshot is the immutable result of the last successful refresh.
// Once published it must not be mutated.
type RefreshSnapshot struct {
	CycleID   string            `json:"cycle_id"`
	LastFetch time.Time         `json:"last_fetch"`
	Summary   string            `json:"summary"`
	Score     *int              `json:"score,omitempty"`
	Metrics   Metrics           `json:"metrics"`
	Missing   []string          `json:"missing,omitempty"`
	History   []ReadinessRecord `json:"history,omitempty"`
}

// WithLastFetch returns a copy of s with LastFetch replaced.
func (s *RefreshSnapshot) WithLastFetch(t time.Time) *RefreshSnapshot {
	if s == nil {
		return &RefreshSnapshot{LastFetch: t}
	}
	cp := *s
	cp.LastFetch = t
	return &cp
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
