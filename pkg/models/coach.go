package models

import "time"

// CoachWorkoutTemplate is a named workout a coach has prescribed to this
// athlete in the past. Templates are upserted by name per athlete.
type CoachWorkoutTemplate struct {
	LastPerformed      *time.Time `json:"last_performed,omitempty"`
	AthleteID          string     `json:"athlete_id"`
	Name               string     `json:"name"`
	Category           string     `json:"category,omitempty"`
	Phase              string     `json:"phase,omitempty"`
	Description        string     `json:"description,omitempty"`
	TargetZone         string     `json:"target_zone,omitempty"`
	TargetPace         string     `json:"target_pace,omitempty"`
	CoachingNotes      string     `json:"coaching_notes,omitempty"`
	WhenToUse          string     `json:"when_to_use,omitempty"`
	WhenToAvoid        string     `json:"when_to_avoid,omitempty"`
	RecoveryNeeded     string     `json:"recovery_needed,omitempty"`
	ID                 int64      `json:"id"`
	TypicalDistanceKm  float64    `json:"typical_distance_km,omitempty"`
	TypicalDurationMin int        `json:"typical_duration_min,omitempty"`
	TimesPerformed     int        `json:"times_performed"`
	AvgFeeling         float64    `json:"avg_feeling,omitempty"`
}

// CoachPhase describes a training phase as this athlete's coach runs it.
type CoachPhase struct {
	AthleteID      string   `json:"athlete_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	KeyWorkouts    []string `json:"key_workouts,omitempty"`
	ID             int64    `json:"id"`
	TypicalWeeks   int      `json:"typical_weeks,omitempty"`
	WeeklyVolumeKm float64  `json:"weekly_volume_km,omitempty"`
}

// CoachFilters narrows coach pattern retrieval. Empty fields are unset.
type CoachFilters struct {
	Phase       string `json:"phase,omitempty"`
	WorkoutType string `json:"workout_type,omitempty"`
	Category    string `json:"category,omitempty"`
}
