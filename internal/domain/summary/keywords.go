// Package summary encodes computed metrics for the summarizer and extracts
// the readiness score from its reply.
package summary

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/upready/internal/domain/model"
)

const notAvailable = "Data not available"

// Keywords renders metrics as a deterministic, ordered keyword list.
func Keywords(m model.Metrics) []string {
	var kw []string

	if m.Sleep != nil {
		kw = append(kw,
			"Total Sleep: "+FormatDuration(m.Sleep.Total),
			"Deep Sleep: "+FormatDuration(m.Sleep.Deep),
			"REM Sleep: "+FormatDuration(m.Sleep.REM),
			"Core Sleep: "+FormatDuration(m.Sleep.Core),
			"Awake: "+FormatDuration(m.Sleep.Awake),
		)
	} else {
		kw = append(kw, "Total Sleep: "+notAvailable)
	}
	if m.SleepPerformance != nil {
		kw = append(kw, fmt.Sprintf("Sleep Performance: %.0f%%", *m.SleepPerformance*100))
	}

	if m.HeartRateRange != nil {
		kw = append(kw, fmt.Sprintf("Heart Rate Range: %.0f - %.0f bpm", m.HeartRateRange.Min, m.HeartRateRange.Max))
	} else {
		kw = append(kw, "Heart Rate Range: "+notAvailable)
	}
	if m.RestingHeartRate != nil {
		kw = append(kw, fmt.Sprintf("Resting Heart Rate: %.0f bpm", *m.RestingHeartRate))
	}
	if m.RestingHeartRateAverage != nil {
		kw = append(kw, fmt.Sprintf("Three Month Resting Heart Rate: %.0f bpm", *m.RestingHeartRateAverage))
	}
	if m.BloodOxygen != nil {
		kw = append(kw, fmt.Sprintf("Oxygen in Blood: %.0f%%", oxygenPercent(*m.BloodOxygen)))
	}
	if m.HRV != nil {
		kw = append(kw, fmt.Sprintf("Heart Rate Variability: %.0f ms", *m.HRV))
	}
	if m.HRVBaseline != nil {
		kw = append(kw, fmt.Sprintf("Heart Rate Variability Baseline: %.0f ms", *m.HRVBaseline))
	}
	if m.RespiratoryRate != nil {
		kw = append(kw, fmt.Sprintf("Respiratory Rate: %.1f breaths/min", *m.RespiratoryRate))
	}
	if m.BodyTemperatureComparison != "" {
		kw = append(kw, "Body Temperature Compared to Baseline: "+m.BodyTemperatureComparison)
	}
	if m.StressLevel != "" {
		kw = append(kw, "Stress Level: "+m.StressLevel)
	}
	if m.Load != nil {
		kw = append(kw, fmt.Sprintf("Training Load: %.0f%%", m.Load.Normalized*100))
	}
	return kw
}

// FormatDuration renders a duration as "7 hours, 30 minutes".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(math.Round(d.Minutes()))
	return fmt.Sprintf("%d hours, %d minutes", total/60, total%60)
}

// CompareTemperature describes last night's temperature against the baseline.
func CompareTemperature(lastNight, baseline float64) string {
	diff := lastNight - baseline
	switch {
	case math.Abs(diff) < 0.005:
		return "at the baseline"
	case diff > 0:
		return fmt.Sprintf("above the baseline by %.2f°C", diff)
	default:
		return fmt.Sprintf("below the baseline by %.2f°C", -diff)
	}
}

// oxygenPercent accepts either a fraction or a percentage.
func oxygenPercent(v float64) float64 {
	if v <= 1 {
		return v * 100
	}
	return v
}

// Join renders keywords as the single data string embedded in the prompt.
func Join(keywords []string) string {
	return strings.Join(keywords, ", ")
}
