// Package refresh drives one readiness refresh cycle: staleness check,
// parallel metric fetches, scoring, summarization and persistence.
package refresh

import (
	"context"
	"time"

	"github.com/okian/upready/internal/domain/model"
)

// BiometricSource is the read-only store of the user's samples. Range
// queries return items whose start lies in [from, to].
type BiometricSource interface {
	Samples(ctx context.Context, kind model.SampleKind, from, to time.Time) ([]model.BiometricSample, error)
	SleepIntervals(ctx context.Context, from, to time.Time) ([]model.SleepInterval, error)
	Workouts(ctx context.Context, from, to time.Time) ([]model.WorkoutSession, error)
	BirthDate(ctx context.Context) (*time.Time, error)
	Capabilities(ctx context.Context) (model.Capabilities, error)
}

// Summarizer turns the keyword encoding of a cycle's metrics into free text.
type Summarizer interface {
	Summarize(ctx context.Context, keywords []string) (string, error)
}

// ReadinessStore persists readiness records. Save appends; History returns
// every record whose day lies in [from, to], duplicates included.
type ReadinessStore interface {
	Save(ctx context.Context, rec model.ReadinessRecord) error
	History(ctx context.Context, from, to time.Time) ([]model.ReadinessRecord, error)
}

// SnapshotCache keeps the last published snapshot across restarts.
type SnapshotCache interface {
	Get(ctx context.Context) (*model.RefreshSnapshot, error)
	Set(ctx context.Context, snap *model.RefreshSnapshot) error
	Clear(ctx context.Context) error
}
