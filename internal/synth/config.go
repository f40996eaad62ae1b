// Package synth generates synthetic biometric nights and drives them
// through a running upready server: POST /samples, POST /refresh and
// GET /readiness.
package synth

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/okian/upready/internal/domain/model"
)

// Config holds configuration for a synthetic run.
type Config struct {
	BaseURL         string        // Base URL of the service
	Days            int           // Number of nights to generate
	End             time.Time     // Wake time of the latest night is End minus 30 minutes
	Workers         int           // Number of concurrent workers
	BatchSize       int           // Items per POST /samples request
	Timeout         time.Duration // HTTP request timeout
	OutputFile      string        // Optional JSON file receiving the generated items
	BirthDate       string        // Optional YYYY-MM-DD birth date item
	BloodOxygen     bool          // Generate blood oxygen samples
	BodyTemperature bool          // Generate body temperature samples
	Refresh         bool          // Force a refresh and verify readiness after submission
	SettleTimeout   time.Duration // How long to wait for the workers to store the items
}

// DefaultConfig returns a configuration targeting a local server.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://localhost:9080",
		Days:          defaultDays,
		Workers:       runtime.NumCPU() * WorkerChannelMultiplier,
		BatchSize:     defaultBatchSize,
		Timeout:       30 * time.Second,
		Refresh:       true,
		SettleTimeout: 30 * time.Second,
	}
}

// Item is one POST /samples request element.
type Item struct {
	ID        string                 `json:"id,omitempty"`
	Kind      model.IngestKind       `json:"kind"`
	Sample    *model.BiometricSample `json:"sample,omitempty"`
	Interval  *model.SleepInterval   `json:"sleep_interval,omitempty"`
	Workout   *model.WorkoutSession  `json:"workout,omitempty"`
	BirthDate string                 `json:"birth_date,omitempty"`
}

// Stored reports whether the item ends up as a counted record in the store.
func (i Item) Stored() bool {
	return i.Kind != model.IngestBirthDate
}

// AckResponse is the POST /samples response body.
type AckResponse struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
}

// RefreshResponse is the POST /refresh response body.
type RefreshResponse struct {
	CycleID string        `json:"cycle_id"`
	Outcome string        `json:"outcome"`
	Missing []string      `json:"missing,omitempty"`
	Score   *int          `json:"score,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Metrics model.Metrics `json:"metrics"`
	Error   string        `json:"error,omitempty"`
}

// ReadinessResponse is the GET /readiness response body.
type ReadinessResponse struct {
	State    string                 `json:"state"`
	Snapshot *model.RefreshSnapshot `json:"snapshot,omitempty"`
}

// Stats holds run statistics. Counters are updated by concurrent workers.
type Stats struct {
	ItemsGenerated int
	Batches        int
	Accepted       atomic.Int64
	Duplicates     atomic.Int64
	Failed         atomic.Int64
	Retries        atomic.Int64
	Outcome        string
	Score          *int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
