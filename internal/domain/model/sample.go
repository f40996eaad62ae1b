// Package model contains domain models passed between layers.
package model

import "time"

// SampleKind identifies the physiological quantity a sample measures.
type SampleKind string

// Supported sample kinds.
const (
	KindHeartRate        SampleKind = "heart_rate"
	KindHRV              SampleKind = "hrv"
	KindRespiratoryRate  SampleKind = "respiratory_rate"
	KindBloodOxygen      SampleKind = "blood_oxygen"
	KindBodyTemperature  SampleKind = "body_temperature"
	KindRestingHeartRate SampleKind = "resting_heart_rate"
)

// Valid reports whether k is a known sample kind.
func (k SampleKind) Valid() bool {
	switch k {
	case KindHeartRate, KindHRV, KindRespiratoryRate, KindBloodOxygen, KindBodyTemperature, KindRestingHeartRate:
		return true
	}
	return false
}

// BiometricSample is a single time-stamped reading produced by the biometric source.
type BiometricSample struct {
	ID    string     `json:"id"`
	Kind  SampleKind `json:"kind"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
	Value float64    `json:"value"`
	Unit  string     `json:"unit,omitempty"`
}

// Duration returns End-Start, or zero when the sample is malformed.
func (s BiometricSample) Duration() time.Duration {
	if s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// SleepStage tags a sleep interval.
type SleepStage string

// Sleep stages.
const (
	StageAwake       SleepStage = "awake"
	StageCore        SleepStage = "core"
	StageDeep        SleepStage = "deep"
	StageREM         SleepStage = "rem"
	StageUnspecified SleepStage = "unspecified"
)

// Stages lists every stage in a fixed order.
var Stages = []SleepStage{StageAwake, StageCore, StageDeep, StageREM, StageUnspecified}

// Valid reports whether s is a known sleep stage.
func (s SleepStage) Valid() bool {
	switch s {
	case StageAwake, StageCore, StageDeep, StageREM, StageUnspecified:
		return true
	}
	return false
}

// Asleep reports whether the stage counts as time asleep.
func (s SleepStage) Asleep() bool {
	return s == StageCore || s == StageDeep || s == StageREM || s == StageUnspecified
}

// SleepInterval is a raw stage-tagged span. Raw intervals may overlap or duplicate.
type SleepInterval struct {
	ID    string     `json:"id,omitempty"`
	Stage SleepStage `json:"stage"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// ActivityCategory classifies a workout for muscular load.
type ActivityCategory string

// Activity categories.
const (
	ActivityTraditionalStrength ActivityCategory = "traditional_strength_training"
	ActivityFunctionalStrength  ActivityCategory = "functional_strength_training"
	ActivityRunning             ActivityCategory = "running"
	ActivityCycling             ActivityCategory = "cycling"
	ActivityRowing              ActivityCategory = "rowing"
	ActivityWalking             ActivityCategory = "walking"
	ActivityYoga                ActivityCategory = "yoga"
	ActivityOther               ActivityCategory = "other"
)

// Strength reports whether the category is strength-type.
func (c ActivityCategory) Strength() bool {
	return c == ActivityTraditionalStrength || c == ActivityFunctionalStrength
}

// Endurance reports whether the category is endurance-type.
func (c ActivityCategory) Endurance() bool {
	return c == ActivityRunning || c == ActivityCycling || c == ActivityRowing
}

// WorkoutSession is a completed workout with its nested heart-rate samples.
type WorkoutSession struct {
	ID           string            `json:"id"`
	Category     ActivityCategory  `json:"category"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	EnergyBurned *float64          `json:"energy_burned,omitempty"`
	HeartRate    []BiometricSample `json:"heart_rate,omitempty"`
}

// Duration returns the session length, or zero when malformed.
func (w WorkoutSession) Duration() time.Duration {
	if w.End.Before(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Capabilities reports which optional sensors the platform provides.
type Capabilities struct {
	BloodOxygen     bool `json:"blood_oxygen"`
	BodyTemperature bool `json:"body_temperature"`
}
