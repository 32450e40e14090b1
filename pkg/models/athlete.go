package models

import (
	"fmt"
	"time"
)

// HRZone is a named heart-rate band.
type HRZone struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// AthleteProfile holds identity and physiological attributes of an athlete.
// Owned by the athlete; the engine only reads it.
type AthleteProfile struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Goal          string   `json:"goal,omitempty"`
	InjuryHistory string   `json:"injury_history,omitempty"`
	HRZones       []HRZone `json:"hr_zones,omitempty"`
	AvailableDays []string `json:"available_days,omitempty"`
	WeightKg      float64  `json:"weight_kg,omitempty"`
	Age           int      `json:"age,omitempty"`
	RestingHR     int      `json:"resting_hr,omitempty"`
	MaxHR         int      `json:"max_hr,omitempty"`
	ThresholdHR   int      `json:"threshold_hr,omitempty"`
}

// Run is a single recorded activity.
type Run struct {
	Date            time.Time          `json:"date"`
	ZonePercentages map[string]float64 `json:"zone_percentages,omitempty"`
	AthleteID       string             `json:"athlete_id"`
	WorkoutType     string             `json:"workout_type,omitempty"`
	ID              int64              `json:"id"`
	DistanceKm      float64            `json:"distance_km"`
	DurationSec     int                `json:"duration_sec"`
	AvgHR           int                `json:"avg_hr,omitempty"`
	MaxHR           int                `json:"max_hr,omitempty"`
}

// Pace returns the average pace formatted as m:ss per kilometre, or "" when
// it cannot be computed.
func (r *Run) Pace() string {
	if r.DistanceKm <= 0 || r.DurationSec <= 0 {
		return ""
	}
	secPerKm := int(float64(r.DurationSec)/r.DistanceKm + 0.5)
	return fmt.Sprintf("%d:%02d/km", secPerKm/60, secPerKm%60)
}

// Duration returns the moving time formatted as h:mm:ss or m:ss.
func (r *Run) Duration() string {
	h := r.DurationSec / 3600
	m := (r.DurationSec % 3600) / 60
	s := r.DurationSec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Feedback is the athlete's subjective report on one activity, keyed by the
// activity date.
type Feedback struct {
	ActivityDate time.Time `json:"activity_date"`
	Rating       *int      `json:"rating,omitempty"`
	EffortLevel  *int      `json:"effort_level,omitempty"`
	AthleteID    string    `json:"athlete_id"`
	Feeling      string    `json:"feeling,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	ID           int64     `json:"id"`
}

// WeeklyCheckIn is a once-per-week subjective status report.
type WeeklyCheckIn struct {
	WeekStart    time.Time `json:"week_start"`
	Feeling      *int      `json:"feeling,omitempty"`
	SleepQuality *int      `json:"sleep_quality,omitempty"`
	StressLevel  *int      `json:"stress_level,omitempty"`
	AthleteID    string    `json:"athlete_id"`
	Notes        string    `json:"notes,omitempty"`
	ID           int64     `json:"id"`
}
