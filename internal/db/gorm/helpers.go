package gorm

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/thebtf/coachctx/internal/db"
	"github.com/thebtf/coachctx/pkg/models"
)

// ErrNotFound is returned by point lookups that match nothing.
var ErrNotFound = db.ErrNotFound

// notFound maps gorm.ErrRecordNotFound to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// escapeLike escapes LIKE metacharacters so a search term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// runningAverage folds value into an average over n previous samples.
func runningAverage(avg float64, n int, value int) float64 {
	if n <= 0 {
		return float64(value)
	}
	return (avg*float64(n) + float64(value)) / float64(n+1)
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

func profileFromRow(r *AthleteProfile) *models.AthleteProfile {
	return &models.AthleteProfile{
		ID:            r.ID,
		Name:          r.Name,
		Goal:          r.Goal,
		InjuryHistory: r.InjuryHistory,
		HRZones:       []models.HRZone(r.HRZones),
		AvailableDays: []string(r.AvailableDays),
		WeightKg:      r.WeightKg,
		Age:           r.Age,
		RestingHR:     r.RestingHR,
		MaxHR:         r.MaxHR,
		ThresholdHR:   r.ThresholdHR,
	}
}

func runFromRow(r *Run) *models.Run {
	return &models.Run{
		Date:            r.Date,
		ZonePercentages: map[string]float64(r.ZonePercentages),
		AthleteID:       r.AthleteID,
		WorkoutType:     r.WorkoutType,
		ID:              r.ID,
		DistanceKm:      r.DistanceKm,
		DurationSec:     r.DurationSec,
		AvgHR:           r.AvgHR,
		MaxHR:           r.MaxHR,
	}
}

func feedbackFromRow(r *RunFeedback) *models.Feedback {
	return &models.Feedback{
		ActivityDate: r.ActivityDate,
		Rating:       r.Rating,
		EffortLevel:  r.EffortLevel,
		AthleteID:    r.AthleteID,
		Feeling:      r.Feeling,
		Comment:      r.Comment,
		ID:           r.ID,
	}
}

func checkInFromRow(r *WeeklyCheckIn) *models.WeeklyCheckIn {
	return &models.WeeklyCheckIn{
		WeekStart:    r.WeekStart,
		Feeling:      r.Feeling,
		SleepQuality: r.SleepQuality,
		StressLevel:  r.StressLevel,
		AthleteID:    r.AthleteID,
		Notes:        r.Notes,
		ID:           r.ID,
	}
}

func planFromRow(r *TrainingPlan) *models.TrainingPlan {
	return &models.TrainingPlan{
		CreatedAt:     r.CreatedAt,
		AthleteID:     r.AthleteID,
		PlanType:      r.PlanType,
		Weeks:         []models.PlanWeek(r.Weeks),
		ID:            r.ID,
		DurationWeeks: r.DurationWeeks,
		CurrentWeek:   r.CurrentWeek,
		IsActive:      r.IsActive,
	}
}

func templateFromRow(r *CoachWorkoutTemplate) *models.CoachWorkoutTemplate {
	return &models.CoachWorkoutTemplate{
		LastPerformed:      r.LastPerformed,
		AthleteID:          r.AthleteID,
		Name:               r.Name,
		Category:           r.Category,
		Phase:              r.Phase,
		Description:        r.Description,
		TargetZone:         r.TargetZone,
		TargetPace:         r.TargetPace,
		CoachingNotes:      r.CoachingNotes,
		WhenToUse:          r.WhenToUse,
		WhenToAvoid:        r.WhenToAvoid,
		RecoveryNeeded:     r.RecoveryNeeded,
		ID:                 r.ID,
		TypicalDistanceKm:  r.TypicalDistanceKm,
		TypicalDurationMin: r.TypicalDurationMin,
		TimesPerformed:     r.TimesPerformed,
		AvgFeeling:         r.AvgFeeling,
	}
}

func templatesFromRows(rows []CoachWorkoutTemplate) []*models.CoachWorkoutTemplate {
	out := make([]*models.CoachWorkoutTemplate, len(rows))
	for i := range rows {
		out[i] = templateFromRow(&rows[i])
	}
	return out
}

func phaseFromRow(r *CoachPhase) *models.CoachPhase {
	return &models.CoachPhase{
		AthleteID:      r.AthleteID,
		Name:           r.Name,
		Description:    r.Description,
		Notes:          r.Notes,
		KeyWorkouts:    []string(r.KeyWorkouts),
		ID:             r.ID,
		TypicalWeeks:   r.TypicalWeeks,
		WeeklyVolumeKm: r.WeeklyVolumeKm,
	}
}
