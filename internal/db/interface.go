// Package db defines the persistence interfaces the context engine reads
// through.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/thebtf/coachctx/pkg/models"
)

// ErrNotFound is returned by point lookups that legitimately match nothing.
var ErrNotFound = errors.New("db: not found")

// AthleteReader defines read operations for athlete data. Range reads are
// ordered most recent first.
type AthleteReader interface {
	GetProfile(ctx context.Context, athleteID string) (*models.AthleteProfile, error)
	RecentRuns(ctx context.Context, athleteID string, since time.Time, limit int) ([]*models.Run, error)
	RecentFeedback(ctx context.Context, athleteID string, since time.Time) ([]*models.Feedback, error)
	ActivePlan(ctx context.Context, athleteID string) (*models.TrainingPlan, error)
	LatestCheckIn(ctx context.Context, athleteID string) (*models.WeeklyCheckIn, error)
}

// AthleteWriter defines write operations for athlete data.
type AthleteWriter interface {
	UpsertProfile(ctx context.Context, profile *models.AthleteProfile) error
	AddRun(ctx context.Context, run *models.Run) (int64, error)
	AddFeedback(ctx context.Context, feedback *models.Feedback) (int64, error)
	UpsertCheckIn(ctx context.Context, checkIn *models.WeeklyCheckIn) error
	SavePlan(ctx context.Context, plan *models.TrainingPlan) (int64, error)
}

// AthleteStore combines read and write operations for athlete data.
type AthleteStore interface {
	AthleteReader
	AthleteWriter
}

// CoachReader defines read operations for coach workout templates and phases.
type CoachReader interface {
	TemplatesByPhase(ctx context.Context, athleteID, phase string, limit int) ([]*models.CoachWorkoutTemplate, error)
	TemplatesByCategory(ctx context.Context, athleteID, category string, limit int) ([]*models.CoachWorkoutTemplate, error)
	SearchTemplatesByName(ctx context.Context, athleteID, term string, limit int) ([]*models.CoachWorkoutTemplate, error)
	MostPerformedTemplates(ctx context.Context, athleteID string, limit int) ([]*models.CoachWorkoutTemplate, error)
	Phases(ctx context.Context, athleteID string) ([]*models.CoachPhase, error)
}

// CoachWriter defines write operations for coach data.
type CoachWriter interface {
	// UpsertTemplate inserts or updates a template by (athlete, name). When
	// feeling is non-nil the performance counter is incremented and the
	// running average feeling updated.
	UpsertTemplate(ctx context.Context, template *models.CoachWorkoutTemplate, feeling *int) error
	UpsertPhase(ctx context.Context, phase *models.CoachPhase) error
}

// CoachStore combines read and write operations for coach data.
type CoachStore interface {
	CoachReader
	CoachWriter
}
