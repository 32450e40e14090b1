package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/coachctx/internal/db"
	"github.com/thebtf/coachctx/pkg/models"
)

// CoachStore reads and writes coach workout templates and phases.
type CoachStore struct {
	db *gorm.DB
}

var _ db.CoachStore = (*CoachStore)(nil)

// NewCoachStore creates a CoachStore on store.
func NewCoachStore(store *Store) *CoachStore {
	return &CoachStore{db: store.DB}
}

const templateOrder = "times_performed DESC, last_performed DESC NULLS LAST, id"

// TemplatesByPhase returns templates whose phase equals phase, ignoring case.
func (s *CoachStore) TemplatesByPhase(ctx context.Context, athleteID, phase string, limit int) ([]*models.CoachWorkoutTemplate, error) {
	return s.findTemplates(ctx, limit, "athlete_id = ? AND LOWER(phase) = LOWER(?)", athleteID, phase)
}

// TemplatesByCategory returns templates whose category equals category, ignoring case.
func (s *CoachStore) TemplatesByCategory(ctx context.Context, athleteID, category string, limit int) ([]*models.CoachWorkoutTemplate, error) {
	return s.findTemplates(ctx, limit, "athlete_id = ? AND LOWER(category) = LOWER(?)", athleteID, category)
}

// SearchTemplatesByName returns templates whose name contains term.
func (s *CoachStore) SearchTemplatesByName(ctx context.Context, athleteID, term string, limit int) ([]*models.CoachWorkoutTemplate, error) {
	return s.findTemplates(ctx, limit, `athlete_id = ? AND name ILIKE ? ESCAPE '\'`, athleteID, "%"+escapeLike(term)+"%")
}

// MostPerformedTemplates returns the athlete's most used templates.
func (s *CoachStore) MostPerformedTemplates(ctx context.Context, athleteID string, limit int) ([]*models.CoachWorkoutTemplate, error) {
	return s.findTemplates(ctx, limit, "athlete_id = ?", athleteID)
}

func (s *CoachStore) findTemplates(ctx context.Context, limit int, query string, args ...interface{}) ([]*models.CoachWorkoutTemplate, error) {
	var rows []CoachWorkoutTemplate
	err := s.db.WithContext(ctx).
		Where(query, args...).
		Order(templateOrder).
		Limit(clampLimit(limit, 5)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find templates: %w", err)
	}
	return templatesFromRows(rows), nil
}

// Phases returns all phases the coach uses with this athlete.
func (s *CoachStore) Phases(ctx context.Context, athleteID string) ([]*models.CoachPhase, error) {
	var rows []CoachPhase
	if err := s.db.WithContext(ctx).Where("athlete_id = ?", athleteID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("phases: %w", err)
	}
	out := make([]*models.CoachPhase, len(rows))
	for i := range rows {
		out[i] = phaseFromRow(&rows[i])
	}
	return out, nil
}

// UpsertTemplate inserts or updates a template by (athlete, name).
func (s *CoachStore) UpsertTemplate(ctx context.Context, t *models.CoachWorkoutTemplate, feeling *int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row CoachWorkoutTemplate
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("athlete_id = ? AND name = ?", t.AthleteID, t.Name).
			First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		isNew := errors.Is(err, gorm.ErrRecordNotFound)

		row.AthleteID = t.AthleteID
		row.Name = t.Name
		row.Category = t.Category
		row.Phase = t.Phase
		row.Description = t.Description
		row.TargetZone = t.TargetZone
		row.TargetPace = t.TargetPace
		row.CoachingNotes = t.CoachingNotes
		row.WhenToUse = t.WhenToUse
		row.WhenToAvoid = t.WhenToAvoid
		row.RecoveryNeeded = t.RecoveryNeeded
		row.TypicalDistanceKm = t.TypicalDistanceKm
		row.TypicalDurationMin = t.TypicalDurationMin
		if feeling != nil {
			row.AvgFeeling = runningAverage(row.AvgFeeling, row.TimesPerformed, *feeling)
			row.TimesPerformed++
			now := time.Now().UTC()
			row.LastPerformed = &now
		}

		if isNew {
			return tx.Create(&row).Error
		}
		return tx.Save(&row).Error
	})
}

// UpsertPhase inserts or updates a phase by (athlete, name).
func (s *CoachStore) UpsertPhase(ctx context.Context, p *models.CoachPhase) error {
	row := &CoachPhase{
		AthleteID:      p.AthleteID,
		Name:           p.Name,
		Description:    p.Description,
		Notes:          p.Notes,
		KeyWorkouts:    p.KeyWorkouts,
		TypicalWeeks:   p.TypicalWeeks,
		WeeklyVolumeKm: p.WeeklyVolumeKm,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "athlete_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "notes", "key_workouts", "typical_weeks", "weekly_volume_km"}),
		}).
		Create(row).Error
}
