package sleep

import (
	"math"

	"github.com/okian/upready/internal/domain/model"
)

// Ideal targets and weights for the sleep performance score.
const (
	IdealHours          = 8.0
	idealDeepPct        = 0.20
	idealREMPct         = 0.25
	idealCorePct        = 0.30
	idealUnspecifiedPct = 0.15
	idealAwakePct       = 0.10

	durationWeight    = 30.0
	deepWeight        = 15.0
	remWeight         = 15.0
	coreWeight        = 15.0
	unspecifiedWeight = 10.0
	awakeWeight       = 15.0

	maxDurationDiffHours = 3.0
	maxPctDiff           = 0.5

	// ConsistencyTolerance is the allowed gap, in hours, between the stage sum and the total.
	ConsistencyTolerance = 0.1
)

const maxScore = durationWeight + deepWeight + remWeight + coreWeight + unspecifiedWeight + awakeWeight

// Hours is a night expressed in hours per bucket.
type Hours struct {
	Total       float64
	Deep        float64
	REM         float64
	Core        float64
	Unspecified float64
	Awake       float64
}

// HoursOf converts reconciled totals to hours.
func HoursOf(t model.StageTotals) Hours {
	return Hours{
		Total:       t.Total.Hours(),
		Deep:        t.Deep.Hours(),
		REM:         t.REM.Hours(),
		Core:        t.Core.Hours(),
		Unspecified: t.Unspecified.Hours(),
		Awake:       t.Awake.Hours(),
	}
}

// Consistent reports whether the five buckets add up to Total within tolerance.
func (h Hours) Consistent() bool {
	sum := h.Deep + h.REM + h.Core + h.Unspecified + h.Awake
	return math.Abs(sum-h.Total) <= ConsistencyTolerance
}

// Score returns a 0-1 sleep performance score. Inconsistent input and nights
// with no recorded sleep score 0.
func Score(h Hours) float64 {
	if !h.Consistent() || h.Total <= 0 {
		return 0
	}

	durationDiff := math.Abs(h.Total - IdealHours)
	duration := math.Max(0, durationWeight-durationDiff/maxDurationDiffHours*durationWeight)

	sum := duration +
		pctScore(h.Deep/h.Total, idealDeepPct, deepWeight) +
		pctScore(h.REM/h.Total, idealREMPct, remWeight) +
		pctScore(h.Core/h.Total, idealCorePct, coreWeight) +
		pctScore(h.Unspecified/h.Total, idealUnspecifiedPct, unspecifiedWeight) +
		awakeScore(h.Awake/h.Total)

	return clamp01(sum / maxScore)
}

// ScoreTotals scores reconciled totals.
func ScoreTotals(t model.StageTotals) float64 {
	return Score(HoursOf(t))
}

func pctScore(actual, ideal, weight float64) float64 {
	diff := math.Min(math.Abs(actual-ideal)/maxPctDiff, 1)
	return weight * (1 - diff)
}

// awakeScore only penalizes awake time above the ideal share.
func awakeScore(actual float64) float64 {
	if actual <= idealAwakePct {
		return awakeWeight
	}
	diff := math.Min((actual-idealAwakePct)/maxPctDiff, 1)
	return awakeWeight * (1 - diff)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
