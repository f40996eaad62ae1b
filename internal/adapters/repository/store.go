// Package repository holds the sample store the refresh cycle reads from and
// the SQLite store readiness records are written to.
package repository

import (
	"context"
	"time"

	"github.com/okian/upready/internal/domain/model"
)

// SampleWriter accepts ingested records.
type SampleWriter interface {
	PutSample(ctx context.Context, s model.BiometricSample) error
	PutSleepInterval(ctx context.Context, iv model.SleepInterval) error
	PutWorkout(ctx context.Context, w model.WorkoutSession) error
	SetBirthDate(ctx context.Context, birth time.Time) error
}

// Stats summarizes what a MemoryStore holds.
type Stats struct {
	Samples        map[model.SampleKind]int `json:"samples"`
	SleepIntervals int                      `json:"sleep_intervals"`
	Workouts       int                      `json:"workouts"`
	HasBirthDate   bool                     `json:"has_birth_date"`
}
