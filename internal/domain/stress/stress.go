// Package stress derives an HRV baseline and classifies the current stress level.
package stress

import (
	"sort"
	"time"

	"github.com/okian/upready/internal/domain/model"
)

// Level is the stress classification.
type Level string

// Stress levels.
const (
	LevelNoData         Level = "No Data"
	LevelHigh           Level = "High Stress"
	LevelModerate       Level = "Moderate Stress"
	LevelLow            Level = "Low Stress"
	LevelHRVUnavailable Level = "HRV Data Unavailable"
)

// BaselineWindowDays is the trailing window used for the HRV baseline.
const BaselineWindowDays = 30

// HighStressDropMS is the drop below baseline, in milliseconds, beyond which
// stress is high.
const HighStressDropMS = 10.0

// DailyAverage is the mean HRV for one calendar day.
type DailyAverage struct {
	Day   string
	Value float64
}

// DailyAverages groups HRV samples by local calendar day and averages each
// day. Days without samples are omitted. Output is ordered by day.
func DailyAverages(samples []model.BiometricSample, loc *time.Location) []DailyAverage {
	type agg struct {
		sum   float64
		count int
	}
	days := make(map[string]*agg)
	for _, s := range samples {
		key := model.DayKey(s.Start, loc)
		a, ok := days[key]
		if !ok {
			a = &agg{}
			days[key] = a
		}
		a.sum += s.Value
		a.count++
	}
	out := make([]DailyAverage, 0, len(days))
	for day, a := range days {
		out = append(out, DailyAverage{Day: day, Value: a.sum / float64(a.count)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Baseline is the mean of daily averages. ok is false when there are none.
func Baseline(daily []DailyAverage) (baseline float64, ok bool) {
	if len(daily) == 0 {
		return 0, false
	}
	var sum float64
	for _, d := range daily {
		sum += d.Value
	}
	return sum / float64(len(daily)), true
}

// Classify maps a baseline and the current HRV to a stress level. A nil
// baseline yields LevelNoData regardless of current.
func Classify(baseline, current *float64) Level {
	if baseline == nil {
		return LevelNoData
	}
	if current == nil {
		return LevelHRVUnavailable
	}
	b, c := *baseline, *current
	switch {
	case c < b && b-c > HighStressDropMS:
		return LevelHigh
	case c < b:
		return LevelModerate
	default:
		return LevelLow
	}
}

// Mean averages sample values. ok is false for an empty slice.
func Mean(samples []model.BiometricSample) (mean float64, ok bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples)), true
}
