package synth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/pkg/logger"
)

const randomFloatDivisor = 1000000

// Value ranges for generated readings.
const (
	heartRateMin        = 48.0
	heartRateRange      = 10.0
	restingHRMin        = 52.0
	restingHRRange      = 8.0
	hrvMin              = 35.0
	hrvRange            = 30.0
	respiratoryMin      = 13.0
	respiratoryRange    = 3.0
	bloodOxygenMin      = 94.0
	bloodOxygenRange    = 5.0
	temperatureMin      = 36.2
	temperatureRange    = 0.6
	workoutHRMin        = 140.0
	workoutHRRange      = 35.0
	energyBurnedMin     = 300.0
	energyBurnedRange   = 150.0
	timeInBed           = 8 * time.Hour
	sleepCycle          = 90 * time.Minute
	sleepCycles         = 5
	wakeLead            = 30 * time.Minute
	workoutLead         = 4 * time.Hour
	workoutHRInterval   = 5 * time.Minute
	heartRateInterval   = 30 * time.Minute
	hourlyInterval      = time.Hour
	temperatureInterval = 2 * time.Hour
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// jitter returns a value in [lo, lo+span) rounded to one decimal.
func jitter(lo, span float64) float64 {
	return math.Round((lo+getRandomFloat()*span)*10) / 10
}

func validate(config *Config) error {
	var problems []string
	if config.Days < 1 || config.Days > maxDays {
		problems = append(problems, fmt.Sprintf("days must be within [1, %d]", maxDays))
	}
	if config.Workers < 1 {
		problems = append(problems, "workers must be positive")
	}
	if config.BatchSize < 1 || config.BatchSize > maxBatchSize {
		problems = append(problems, fmt.Sprintf("batch size must be within [1, %d]", maxBatchSize))
	}
	if config.BirthDate != "" {
		if _, err := time.Parse(model.DayLayout, config.BirthDate); err != nil {
			problems = append(problems, "birth date must be YYYY-MM-DD")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Generate builds config.Days synthetic nights, newest first, plus an
// optional birth date item. IDs derive from kind and timestamp, so
// regenerating the same window yields the same IDs.
func Generate(ctx context.Context, config *Config) ([]Item, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	end := config.End
	if end.IsZero() {
		end = time.Now()
	}
	lastWake := end.UTC().Add(-wakeLead).Truncate(time.Minute)

	logger.Get().Info(ctx, "generating synthetic nights",
		logger.Int("days", config.Days),
		logger.Time("lastWake", lastWake))

	type nightResult struct {
		index int
		items []Item
	}
	resultChan := make(chan nightResult, config.Days)

	workerCount := minInt(config.Workers, config.Days)
	nightsPerWorker := config.Days / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * nightsPerWorker
		stop := start + nightsPerWorker
		if worker == workerCount-1 {
			stop = config.Days
		}
		go func(start, stop int) {
			for d := start; d < stop; d++ {
				if ctx.Err() != nil {
					return
				}
				resultChan <- nightResult{index: d, items: generateNight(config, d, lastWake.AddDate(0, 0, -d))}
			}
		}(start, stop)
	}

	nights := make([][]Item, config.Days)
	for i := 0; i < config.Days; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during generation: %w", ctx.Err())
		case r := <-resultChan:
			nights[r.index] = r.items
		}
	}

	var items []Item
	for _, n := range nights {
		items = append(items, n...)
	}
	if config.BirthDate != "" {
		items = append(items, Item{Kind: model.IngestBirthDate, BirthDate: config.BirthDate})
	}

	logger.Get().Info(ctx, "generated items", logger.Int("count", len(items)))
	return items, nil
}

// generateNight creates one night ending at wake, its preceding evening
// workout on some days, and the morning resting heart rate.
func generateNight(config *Config, index int, wake time.Time) []Item {
	bed := wake.Add(-timeInBed)
	var items []Item

	items = append(items, sleepStages(bed)...)

	for t := bed.Add(heartRateInterval / 2); t.Before(wake); t = t.Add(heartRateInterval) {
		items = append(items, sampleItem(model.KindHeartRate, t, jitter(heartRateMin, heartRateRange), "count/min"))
	}
	for t := bed.Add(hourlyInterval / 2); t.Before(wake); t = t.Add(hourlyInterval) {
		items = append(items,
			sampleItem(model.KindHRV, t, jitter(hrvMin, hrvRange), "ms"),
			sampleItem(model.KindRespiratoryRate, t, jitter(respiratoryMin, respiratoryRange), "count/min"),
		)
		if config.BloodOxygen {
			items = append(items, sampleItem(model.KindBloodOxygen, t, jitter(bloodOxygenMin, bloodOxygenRange), "%"))
		}
	}
	if config.BodyTemperature {
		for t := bed.Add(time.Hour); t.Before(wake); t = t.Add(temperatureInterval) {
			items = append(items, sampleItem(model.KindBodyTemperature, t, jitter(temperatureMin, temperatureRange), "degC"))
		}
	}
	items = append(items, sampleItem(model.KindRestingHeartRate, wake.Add(-time.Minute), jitter(restingHRMin, restingHRRange), "count/min"))

	switch index % 3 {
	case 0:
		items = append(items, workoutItem(model.ActivityRunning, bed.Add(-workoutLead), 40*time.Minute))
	case 1:
		items = append(items, workoutItem(model.ActivityTraditionalStrength, bed.Add(-workoutLead), 45*time.Minute))
	}
	return items
}

// sleepStages lays out five core/deep/REM cycles followed by a short REM
// stretch and a final awake spell.
func sleepStages(bed time.Time) []Item {
	var items []Item
	at := bed
	add := func(stage model.SleepStage, d time.Duration) {
		items = append(items, intervalItem(stage, at, at.Add(d)))
		at = at.Add(d)
	}
	for i := 0; i < sleepCycles; i++ {
		deep := 25*time.Minute - time.Duration(i)*4*time.Minute
		rem := 15*time.Minute + time.Duration(i)*4*time.Minute
		add(model.StageCore, sleepCycle-deep-rem)
		add(model.StageDeep, deep)
		add(model.StageREM, rem)
	}
	rest := timeInBed - sleepCycles*sleepCycle
	add(model.StageREM, rest*2/3)
	add(model.StageAwake, rest-rest*2/3)
	return items
}

func itemID(prefix string, at time.Time) string {
	return fmt.Sprintf("synth-%s-%d", prefix, at.Unix())
}

func sampleItem(kind model.SampleKind, at time.Time, value float64, unit string) Item {
	id := itemID(string(kind), at)
	return Item{
		ID:   id,
		Kind: model.IngestSample,
		Sample: &model.BiometricSample{
			ID: id, Kind: kind, Start: at, End: at, Value: value, Unit: unit,
		},
	}
}

func intervalItem(stage model.SleepStage, from, to time.Time) Item {
	id := itemID("sleep-"+string(stage), from)
	return Item{
		ID:       id,
		Kind:     model.IngestInterval,
		Interval: &model.SleepInterval{ID: id, Stage: stage, Start: from, End: to},
	}
}

func workoutItem(category model.ActivityCategory, start time.Time, d time.Duration) Item {
	id := itemID("workout", start)
	end := start.Add(d)
	energy := jitter(energyBurnedMin, energyBurnedRange)
	var hr []model.BiometricSample
	for t := start; t.Before(end); t = t.Add(workoutHRInterval) {
		hr = append(hr, model.BiometricSample{
			Kind: model.KindHeartRate, Start: t, End: t.Add(workoutHRInterval),
			Value: jitter(workoutHRMin, workoutHRRange), Unit: "count/min",
		})
	}
	return Item{
		ID:   id,
		Kind: model.IngestWorkout,
		Workout: &model.WorkoutSession{
			ID: id, Category: category, Start: start, End: end,
			EnergyBurned: &energy, HeartRate: hr,
		},
	}
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
