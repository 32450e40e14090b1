package models

import "time"

// Weekdays is the canonical order used when rendering workouts-by-day.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// PlanWeek is one week of a training plan.
type PlanWeek struct {
	Workouts       map[string]string `json:"workouts,omitempty"`
	Phase          string            `json:"phase"`
	Focus          string            `json:"focus,omitempty"`
	WeekNumber     int               `json:"week_number"`
	TargetVolumeKm float64           `json:"target_volume_km,omitempty"`
}

// TrainingPlan is a multi-week plan. At most one plan per athlete is active;
// the persistence layer enforces that.
type TrainingPlan struct {
	CreatedAt     time.Time  `json:"created_at"`
	AthleteID     string     `json:"athlete_id"`
	PlanType      string     `json:"plan_type"`
	Weeks         []PlanWeek `json:"weeks"`
	ID            int64      `json:"id"`
	DurationWeeks int        `json:"duration_weeks"`
	CurrentWeek   int        `json:"current_week"`
	IsActive      bool       `json:"is_active"`
}

// Week returns the plan week with the given number, or nil.
func (p *TrainingPlan) Week(number int) *PlanWeek {
	if p == nil {
		return nil
	}
	for i := range p.Weeks {
		if p.Weeks[i].WeekNumber == number {
			return &p.Weeks[i]
		}
	}
	return nil
}

// CurrentPlanWeek returns the week the athlete is currently in, or nil.
func (p *TrainingPlan) CurrentPlanWeek() *PlanWeek {
	if p == nil {
		return nil
	}
	return p.Week(p.CurrentWeek)
}

// CurrentPhase returns the phase of the current week, or "" if unknown.
func (p *TrainingPlan) CurrentPhase() string {
	if w := p.CurrentPlanWeek(); w != nil {
		return w.Phase
	}
	return ""
}
