package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// DefaultEmbeddingDimensions sizes the embedding column when unset.
const DefaultEmbeddingDimensions = 1536

// filteredSearchFunctionSQL installs match_book_instructions_filtered. NULL
// filters match everything; instructions without phase or workout-type tags
// apply to every phase or workout type.
const filteredSearchFunctionSQL = `
CREATE OR REPLACE FUNCTION match_book_instructions_filtered(
	query_embedding vector,
	match_threshold double precision,
	match_count integer,
	filter_phase text DEFAULT NULL,
	filter_workout_type text DEFAULT NULL,
	filter_level text DEFAULT NULL
)
RETURNS TABLE (
	id bigint,
	book_title text,
	methodology text,
	chapter_title text,
	section_title text,
	content text,
	level text,
	key_rules text[],
	phases text[],
	workout_types text[],
	similarity double precision
)
LANGUAGE sql STABLE
AS $$
	SELECT b.id, b.book_title, b.methodology, b.chapter_title, b.section_title, b.content, b.level,
	       b.key_rules, b.phases, b.workout_types,
	       1 - (b.embedding <=> query_embedding) AS similarity
	FROM book_instructions b
	WHERE b.embedding IS NOT NULL
	  AND 1 - (b.embedding <=> query_embedding) >= match_threshold
	  AND (filter_phase IS NULL OR COALESCE(cardinality(b.phases), 0) = 0 OR filter_phase = ANY(b.phases))
	  AND (filter_workout_type IS NULL OR COALESCE(cardinality(b.workout_types), 0) = 0 OR filter_workout_type = ANY(b.workout_types))
	  AND (filter_level IS NULL OR COALESCE(b.level, '') = '' OR b.level = filter_level)
	ORDER BY b.embedding <=> query_embedding
	LIMIT match_count
$$`

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB, embeddingDims int) error {
	if embeddingDims <= 0 {
		embeddingDims = DefaultEmbeddingDimensions
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_extensions",
			Migrate: func(tx *gorm.DB) error {
				for _, s := range []string{
					"CREATE EXTENSION IF NOT EXISTS vector",
					"CREATE EXTENSION IF NOT EXISTS pg_trgm",
				} {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error { return nil },
		},

		{
			ID: "002_athlete_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&AthleteProfile{}, &Run{}, &RunFeedback{}, &WeeklyCheckIn{}, &TrainingPlan{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_plans_one_active
					ON training_plans(athlete_id) WHERE is_active`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("training_plans", "weekly_checkins", "run_feedback", "runs", "athlete_profiles")
			},
		},

		{
			ID: "003_coach_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&CoachWorkoutTemplate{}, &CoachPhase{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_templates_name_trgm
					ON coach_workout_templates USING gin (name gin_trgm_ops)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("coach_phases", "coach_workout_templates")
			},
		},

		{
			ID: "004_book_instructions",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					fmt.Sprintf(`CREATE TABLE IF NOT EXISTS book_instructions (
						id bigserial PRIMARY KEY,
						content_hash text NOT NULL UNIQUE,
						book_title text NOT NULL,
						methodology text NOT NULL DEFAULT '',
						chapter_title text,
						section_title text,
						content text NOT NULL,
						level text,
						key_rules text[] NOT NULL DEFAULT '{}',
						phases text[] NOT NULL DEFAULT '{}',
						workout_types text[] NOT NULL DEFAULT '{}',
						embedding vector(%d),
						embedding_model text,
						updated_at timestamptz NOT NULL DEFAULT now()
					)`, embeddingDims),
					`CREATE INDEX IF NOT EXISTS idx_book_instructions_embedding
						ON book_instructions USING hnsw (embedding vector_cosine_ops)`,
					`CREATE INDEX IF NOT EXISTS idx_book_instructions_phases
						ON book_instructions USING gin (phases)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP TABLE IF EXISTS book_instructions").Error
			},
		},

		{
			ID: "005_filtered_search_function",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(filteredSearchFunctionSQL).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP FUNCTION IF EXISTS match_book_instructions_filtered").Error
			},
		},
	})

	return m.Migrate()
}
