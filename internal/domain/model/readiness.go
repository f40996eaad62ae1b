package model

import (
	"sort"
	"time"
)

// DayLayout formats calendar days in records and cache keys.
const DayLayout = "2006-01-02"

// LoadScalar holds the weekly training load. Normalized is always a function
// of Cardiovascular+Muscular and lies in [0,1].
type LoadScalar struct {
	Cardiovascular float64 `json:"cardiovascular"`
	Muscular       float64 `json:"muscular"`
	Normalized     float64 `json:"normalized"`
}

// Raw returns the uncompressed load.
func (l LoadScalar) Raw() float64 {
	return l.Cardiovascular + l.Muscular
}

// ReadinessRecord is one persisted readiness result.
type ReadinessRecord struct {
	ID        string    `json:"id"`
	Day       string    `json:"day"`
	Score     int       `json:"score"`
	Load      float64   `json:"load"`
	CreatedAt time.Time `json:"created_at"`
}

// DayKey returns the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// LatestPerDay keeps the record with the latest CreatedAt for each day and
// returns them in ascending day order. Ties keep the record seen last.
func LatestPerDay(records []ReadinessRecord) []ReadinessRecord {
	latest := make(map[string]ReadinessRecord, len(records))
	for _, r := range records {
		cur, ok := latest[r.Day]
		if !ok || !r.CreatedAt.Before(cur.CreatedAt) {
			latest[r.Day] = r
		}
	}
	out := make([]ReadinessRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
