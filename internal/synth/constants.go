package synth

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Generation defaults.
const (
	defaultDays      = 14
	maxDays          = 90
	defaultBatchSize = 200
	maxBatchSize     = 5000
)

// Submission retry constants. A 429 means the ingest queue is full.
const (
	maxBackpressureRetries = 5
	backpressureBackoff    = 100 * time.Millisecond
	settlePollInterval     = 50 * time.Millisecond
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)
