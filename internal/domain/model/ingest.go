package model

import "time"

// IngestKind tags the payload carried by an Ingest envelope.
type IngestKind string

// Ingest payload kinds.
const (
	IngestSample    IngestKind = "sample"
	IngestInterval  IngestKind = "sleep_interval"
	IngestWorkout   IngestKind = "workout"
	IngestBirthDate IngestKind = "birth_date"
)

// Ingest is the unit of work flowing from the HTTP layer to the ingest
// workers. Exactly one payload field is set, matching Kind.
type Ingest struct {
	ID         string
	Kind       IngestKind
	Sample     *BiometricSample
	Interval   *SleepInterval
	Workout    *WorkoutSession
	BirthDate  *time.Time
	ReceivedAt time.Time
}
