package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/coachctx/internal/db"
	"github.com/thebtf/coachctx/pkg/models"
)

// AthleteStore reads and writes athlete profiles, activities, feedback,
// check-ins and plans.
type AthleteStore struct {
	db *gorm.DB
}

var _ db.AthleteStore = (*AthleteStore)(nil)

// NewAthleteStore creates an AthleteStore on store.
func NewAthleteStore(store *Store) *AthleteStore {
	return &AthleteStore{db: store.DB}
}

// GetProfile returns the athlete's profile or ErrNotFound.
func (s *AthleteStore) GetProfile(ctx context.Context, athleteID string) (*models.AthleteProfile, error) {
	var row AthleteProfile
	if err := s.db.WithContext(ctx).Where("id = ?", athleteID).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return profileFromRow(&row), nil
}

// RecentRuns returns up to limit runs on or after since, most recent first.
func (s *AthleteStore) RecentRuns(ctx context.Context, athleteID string, since time.Time, limit int) ([]*models.Run, error) {
	var rows []Run
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND date >= ?", athleteID, since).
		Order("date DESC, id DESC").
		Limit(clampLimit(limit, 50)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	runs := make([]*models.Run, len(rows))
	for i := range rows {
		runs[i] = runFromRow(&rows[i])
	}
	return runs, nil
}

// RecentFeedback returns feedback on or after since, most recent first.
func (s *AthleteStore) RecentFeedback(ctx context.Context, athleteID string, since time.Time) ([]*models.Feedback, error) {
	var rows []RunFeedback
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND activity_date >= ?", athleteID, since).
		Order("activity_date DESC, id DESC").
		Limit(MaxQueryLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent feedback: %w", err)
	}
	out := make([]*models.Feedback, len(rows))
	for i := range rows {
		out[i] = feedbackFromRow(&rows[i])
	}
	return out, nil
}

// ActivePlan returns the athlete's active plan or ErrNotFound.
func (s *AthleteStore) ActivePlan(ctx context.Context, athleteID string) (*models.TrainingPlan, error) {
	var row TrainingPlan
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND is_active", athleteID).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return planFromRow(&row), nil
}

// LatestCheckIn returns the most recent weekly check-in or ErrNotFound.
func (s *AthleteStore) LatestCheckIn(ctx context.Context, athleteID string) (*models.WeeklyCheckIn, error) {
	var row WeeklyCheckIn
	err := s.db.WithContext(ctx).
		Where("athlete_id = ?", athleteID).
		Order("week_start DESC").
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return checkInFromRow(&row), nil
}

// UpsertProfile inserts or replaces a profile by id.
func (s *AthleteStore) UpsertProfile(ctx context.Context, p *models.AthleteProfile) error {
	row := &AthleteProfile{
		ID:            p.ID,
		Name:          p.Name,
		Goal:          p.Goal,
		InjuryHistory: p.InjuryHistory,
		HRZones:       models.HRZones(p.HRZones),
		AvailableDays: p.AvailableDays,
		WeightKg:      p.WeightKg,
		Age:           p.Age,
		RestingHR:     p.RestingHR,
		MaxHR:         p.MaxHR,
		ThresholdHR:   p.ThresholdHR,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "goal", "injury_history", "hr_zones", "available_days",
				"weight_kg", "age", "resting_hr", "max_hr", "threshold_hr", "updated_at",
			}),
		}).
		Create(row).Error
}

// AddRun stores a run and returns its id.
func (s *AthleteStore) AddRun(ctx context.Context, r *models.Run) (int64, error) {
	row := &Run{
		Date:            r.Date,
		ZonePercentages: models.ZoneTimes(r.ZonePercentages),
		AthleteID:       r.AthleteID,
		WorkoutType:     r.WorkoutType,
		DistanceKm:      r.DistanceKm,
		DurationSec:     r.DurationSec,
		AvgHR:           r.AvgHR,
		MaxHR:           r.MaxHR,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("add run: %w", err)
	}
	return row.ID, nil
}

// AddFeedback stores feedback and returns its id.
func (s *AthleteStore) AddFeedback(ctx context.Context, f *models.Feedback) (int64, error) {
	row := &RunFeedback{
		ActivityDate: f.ActivityDate,
		Rating:       f.Rating,
		EffortLevel:  f.EffortLevel,
		AthleteID:    f.AthleteID,
		Feeling:      f.Feeling,
		Comment:      f.Comment,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("add feedback: %w", err)
	}
	return row.ID, nil
}

// UpsertCheckIn inserts or replaces the check-in for (athlete, week).
func (s *AthleteStore) UpsertCheckIn(ctx context.Context, c *models.WeeklyCheckIn) error {
	row := &WeeklyCheckIn{
		WeekStart:    c.WeekStart,
		Feeling:      c.Feeling,
		SleepQuality: c.SleepQuality,
		StressLevel:  c.StressLevel,
		AthleteID:    c.AthleteID,
		Notes:        c.Notes,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "athlete_id"}, {Name: "week_start"}},
			DoUpdates: clause.AssignmentColumns([]string{"feeling", "sleep_quality", "stress_level", "notes", "updated_at"}),
		}).
		Create(row).Error
}

// SavePlan stores a plan. Saving an active plan deactivates the athlete's
// previous active plan in the same transaction.
func (s *AthleteStore) SavePlan(ctx context.Context, p *models.TrainingPlan) (int64, error) {
	row := &TrainingPlan{
		AthleteID:     p.AthleteID,
		PlanType:      p.PlanType,
		Weeks:         models.PlanWeeks(p.Weeks),
		DurationWeeks: p.DurationWeeks,
		CurrentWeek:   p.CurrentWeek,
		IsActive:      p.IsActive,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.IsActive {
			if err := tx.Model(&TrainingPlan{}).
				Where("athlete_id = ? AND is_active", row.AthleteID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("save plan: %w", err)
	}
	return row.ID, nil
}
