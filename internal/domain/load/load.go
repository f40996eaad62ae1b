// Package load computes weekly cardiovascular and muscular training load.
package load

import (
	"math"
	"time"

	"github.com/okian/upready/internal/domain/model"
)

// Load model constants.
const (
	MaxHeartRateBase     = 220
	DefaultAge           = 30
	NormalizationCeiling = 1000.0
	CompressionExponent  = 0.75

	strengthPointsPerMinute  = 4.0
	endurancePointsPerMinute = 3.0
	otherPointsPerMinute     = 2.0
)

// WeekStart returns Monday 00:00 of the week containing now, in loc.
func WeekStart(now time.Time, loc *time.Location) time.Time {
	day := model.StartOfDay(now, loc)
	// time.Weekday has Sunday = 0.
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// InWeek reports whether t falls in the week starting at weekStart.
func InWeek(t, weekStart time.Time) bool {
	return !t.Before(weekStart) && t.Before(weekStart.AddDate(0, 0, 7))
}

// MaxHeartRate estimates the maximum heart rate. Non-positive ages use DefaultAge.
func MaxHeartRate(age int) float64 {
	if age <= 0 {
		age = DefaultAge
	}
	return float64(MaxHeartRateBase - age)
}

// PointsPerMinute maps a fraction of max heart rate to a zone bracket.
func PointsPerMinute(fraction float64) float64 {
	switch {
	case fraction >= 0.5 && fraction < 0.6:
		return 1
	case fraction >= 0.6 && fraction < 0.7:
		return 2
	case fraction >= 0.7 && fraction < 0.8:
		return 3
	case fraction >= 0.8 && fraction < 0.9:
		return 4
	case fraction >= 0.9 && fraction <= 1.0:
		return 5
	}
	return 0
}

// SessionCardio sums zone points for the heart-rate samples inside the
// session window. Samples are clipped to the window.
func SessionCardio(session model.WorkoutSession, samples []model.BiometricSample, maxHR float64) float64 {
	if maxHR <= 0 {
		return 0
	}
	var total float64
	for _, s := range samples {
		start, end := s.Start, s.End
		if start.Before(session.Start) {
			start = session.Start
		}
		if end.After(session.End) {
			end = session.End
		}
		if !end.After(start) {
			continue
		}
		total += PointsPerMinute(s.Value/maxHR) * end.Sub(start).Minutes()
	}
	return total
}

// SessionMuscular scores a session by its activity category.
func SessionMuscular(session model.WorkoutSession) float64 {
	ppm := otherPointsPerMinute
	switch {
	case session.Category.Strength():
		ppm = strengthPointsPerMinute
	case session.Category.Endurance():
		ppm = endurancePointsPerMinute
	}
	return ppm * session.Duration().Minutes()
}

// Normalize compresses a raw load into [0,1].
func Normalize(raw float64) float64 {
	if raw <= 0 || math.IsNaN(raw) {
		return 0
	}
	n := math.Min(raw/NormalizationCeiling, 1)
	return math.Pow(n, CompressionExponent)
}

// Scalar builds a LoadScalar from its two components.
func Scalar(cardio, muscular float64) model.LoadScalar {
	return model.LoadScalar{
		Cardiovascular: cardio,
		Muscular:       muscular,
		Normalized:     Normalize(cardio + muscular),
	}
}

// Compute derives the weekly load from sessions and their nested heart-rate
// samples. Sessions starting outside the week of weekStart are ignored.
func Compute(sessions []model.WorkoutSession, age int, weekStart time.Time) model.LoadScalar {
	maxHR := MaxHeartRate(age)
	var cardio, muscular float64
	for _, s := range sessions {
		if !InWeek(s.Start, weekStart) {
			continue
		}
		cardio += SessionCardio(s, s.HeartRate, maxHR)
		muscular += SessionMuscular(s)
	}
	return Scalar(cardio, muscular)
}

// AgeAt returns the age in whole years on now for a birth date.
func AgeAt(birth, now time.Time) int {
	if birth.IsZero() || birth.After(now) {
		return 0
	}
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}
