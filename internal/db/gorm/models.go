package gorm

import (
	"time"

	"github.com/lib/pq"

	"github.com/thebtf/coachctx/pkg/models"
)

// GORM Models

// Note: jsonb column types (HRZones, ZoneTimes, PlanWeeks) come from
// pkg/models and implement sql.Scanner and driver.Valuer.

// AthleteProfile is the athlete_profiles row.
type AthleteProfile struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ID            string         `gorm:"primaryKey;type:text"`
	Name          string         `gorm:"not null"`
	Goal          string         `gorm:"type:text"`
	InjuryHistory string         `gorm:"type:text"`
	HRZones       models.HRZones `gorm:"column:hr_zones;type:jsonb"`
	AvailableDays pq.StringArray `gorm:"type:text[]"`
	WeightKg      float64
	Age           int
	RestingHR     int `gorm:"column:resting_hr"`
	MaxHR         int `gorm:"column:max_hr"`
	ThresholdHR   int `gorm:"column:threshold_hr"`
}

func (AthleteProfile) TableName() string { return "athlete_profiles" }

// Run is a recorded activity.
type Run struct {
	Date            time.Time        `gorm:"index:idx_runs_athlete_date,priority:2,sort:desc;not null"`
	CreatedAt       time.Time
	ZonePercentages models.ZoneTimes `gorm:"type:jsonb"`
	AthleteID       string           `gorm:"index:idx_runs_athlete_date,priority:1;not null"`
	WorkoutType     string
	ID              int64   `gorm:"primaryKey;autoIncrement"`
	DistanceKm      float64 `gorm:"not null"`
	DurationSec     int     `gorm:"not null"`
	AvgHR           int     `gorm:"column:avg_hr"`
	MaxHR           int     `gorm:"column:max_hr"`
}

func (Run) TableName() string { return "runs" }

// RunFeedback is the athlete's subjective report on one activity.
type RunFeedback struct {
	ActivityDate time.Time `gorm:"index:idx_feedback_athlete_date,priority:2,sort:desc;not null"`
	CreatedAt    time.Time
	Rating       *int   `gorm:"check:rating BETWEEN 1 AND 10"`
	EffortLevel  *int   `gorm:"check:effort_level BETWEEN 1 AND 10"`
	AthleteID    string `gorm:"index:idx_feedback_athlete_date,priority:1;not null"`
	Feeling      string
	Comment      string `gorm:"type:text"`
	ID           int64  `gorm:"primaryKey;autoIncrement"`
}

func (RunFeedback) TableName() string { return "run_feedback" }

// WeeklyCheckIn is unique per athlete and week.
type WeeklyCheckIn struct {
	WeekStart    time.Time `gorm:"type:date;uniqueIndex:idx_checkins_athlete_week,priority:2;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Feeling      *int   `gorm:"check:feeling BETWEEN 1 AND 10"`
	SleepQuality *int   `gorm:"check:sleep_quality BETWEEN 1 AND 10"`
	StressLevel  *int   `gorm:"check:stress_level BETWEEN 1 AND 10"`
	AthleteID    string `gorm:"uniqueIndex:idx_checkins_athlete_week,priority:1;not null"`
	Notes        string `gorm:"type:text"`
	ID           int64  `gorm:"primaryKey;autoIncrement"`
}

func (WeeklyCheckIn) TableName() string { return "weekly_checkins" }

// TrainingPlan stores plan weeks as jsonb. A partial unique index allows one
// active plan per athlete.
type TrainingPlan struct {
	CreatedAt     time.Time
	AthleteID     string           `gorm:"index;not null"`
	PlanType      string           `gorm:"not null"`
	Weeks         models.PlanWeeks `gorm:"type:jsonb"`
	ID            int64            `gorm:"primaryKey;autoIncrement"`
	DurationWeeks int
	CurrentWeek   int
	IsActive      bool `gorm:"default:false"`
}

func (TrainingPlan) TableName() string { return "training_plans" }

// CoachWorkoutTemplate is unique per athlete and name.
type CoachWorkoutTemplate struct {
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastPerformed      *time.Time
	AthleteID          string `gorm:"uniqueIndex:idx_templates_athlete_name,priority:1;index:idx_templates_athlete_performed,priority:1;not null"`
	Name               string `gorm:"uniqueIndex:idx_templates_athlete_name,priority:2;not null"`
	Category           string `gorm:"index"`
	Phase              string `gorm:"index"`
	Description        string `gorm:"type:text"`
	TargetZone         string
	TargetPace         string
	CoachingNotes      string `gorm:"type:text"`
	WhenToUse          string `gorm:"type:text"`
	WhenToAvoid        string `gorm:"type:text"`
	RecoveryNeeded     string
	ID                 int64 `gorm:"primaryKey;autoIncrement"`
	TypicalDistanceKm  float64
	TypicalDurationMin int
	TimesPerformed     int `gorm:"default:0;index:idx_templates_athlete_performed,priority:2,sort:desc"`
	AvgFeeling         float64
}

func (CoachWorkoutTemplate) TableName() string { return "coach_workout_templates" }

// CoachPhase is unique per athlete and name.
type CoachPhase struct {
	AthleteID      string         `gorm:"uniqueIndex:idx_phases_athlete_name,priority:1;not null"`
	Name           string         `gorm:"uniqueIndex:idx_phases_athlete_name,priority:2;not null"`
	Description    string         `gorm:"type:text"`
	Notes          string         `gorm:"type:text"`
	KeyWorkouts    pq.StringArray `gorm:"type:text[]"`
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	TypicalWeeks   int
	WeeklyVolumeKm float64
}

func (CoachPhase) TableName() string { return "coach_phases" }
