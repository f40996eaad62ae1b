// Package sleep reconciles raw sleep-stage intervals and scores the night.
package sleep

import (
	"sort"
	"time"

	"github.com/okian/upready/internal/domain/model"
)

// TotalPolicy selects which stage buckets count toward total sleep.
type TotalPolicy int

const (
	// TotalAllStages sums all five buckets, including awake and unspecified.
	TotalAllStages TotalPolicy = iota
	// TotalAsleepOnly sums deep, rem and core.
	TotalAsleepOnly
)

// ParseTotalPolicy maps a config value to a policy. Unknown values select
// TotalAllStages.
func ParseTotalPolicy(s string) TotalPolicy {
	if s == "asleep" || s == "asleep_only" {
		return TotalAsleepOnly
	}
	return TotalAllStages
}

// ReconcileIntervals sums per-stage durations without double counting.
// Intervals are grouped per stage and sorted by start. An interval starting at
// the same instant as the previous one is a duplicate and is dropped (the
// longer of the two is kept); an
// interval starting before the previous end only contributes the part past it.
// Empty input yields zero totals.
func ReconcileIntervals(intervals []model.SleepInterval, opts ...Option) model.StageTotals {
	cfg := reconcileConfig{policy: TotalAllStages}
	for _, opt := range opts {
		opt(&cfg)
	}

	byStage := make(map[model.SleepStage][]model.SleepInterval, len(model.Stages))
	for _, iv := range intervals {
		if !iv.Stage.Valid() || !iv.End.After(iv.Start) {
			continue
		}
		byStage[iv.Stage] = append(byStage[iv.Stage], iv)
	}

	var totals model.StageTotals
	for stage, list := range byStage {
		d := stageDuration(list)
		switch stage {
		case model.StageAwake:
			totals.Awake = d
		case model.StageCore:
			totals.Core = d
		case model.StageDeep:
			totals.Deep = d
		case model.StageREM:
			totals.REM = d
		case model.StageUnspecified:
			totals.Unspecified = d
		}
	}

	switch cfg.policy {
	case TotalAsleepOnly:
		totals.Total = totals.Deep + totals.REM + totals.Core
	default:
		totals.Total = totals.StageSum()
	}
	return totals
}

// stageDuration accumulates one stage's intervals. The input slice is copied
// before sorting so callers keep their order. Equal starts sort longest
// first, so the kept interval of a same-start pair does not depend on input
// order.
func stageDuration(list []model.SleepInterval) time.Duration {
	sorted := make([]model.SleepInterval, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].End.After(sorted[j].End)
	})

	var (
		total     time.Duration
		prevStart time.Time
		covered   time.Time // furthest end accounted for so far
	)
	for i, iv := range sorted {
		if i > 0 && iv.Start.Equal(prevStart) {
			continue
		}
		prevStart = iv.Start

		start := iv.Start
		if i > 0 && start.Before(covered) {
			start = covered
		}
		if iv.End.After(start) {
			total += iv.End.Sub(start)
		}
		if iv.End.After(covered) {
			covered = iv.End
		}
	}
	return total
}
