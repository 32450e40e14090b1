// Package pgvector provides PostgreSQL+pgvector backed similarity search over
// book instructions.
package pgvector

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/coachctx/internal/vector"
	"github.com/thebtf/coachctx/pkg/models"
)

// FilteredSearchFunction is the SQL function installed by the migrations.
const FilteredSearchFunction = "match_book_instructions_filtered"

// SQLSTATE codes meaning the function or table is missing.
const (
	sqlStateUndefinedFunction = "42883"
	sqlStateUndefinedTable    = "42P01"
)

// instructionRecord is the GORM model for the book_instructions table
// (created by migrations).
type instructionRecord struct {
	ID             int64          `gorm:"primaryKey;column:id"`
	ContentHash    string         `gorm:"column:content_hash"`
	BookTitle      string         `gorm:"column:book_title"`
	Methodology    string         `gorm:"column:methodology"`
	ChapterTitle   string         `gorm:"column:chapter_title"`
	SectionTitle   string         `gorm:"column:section_title"`
	Content        string         `gorm:"column:content"`
	Level          string         `gorm:"column:level"`
	KeyRules       pq.StringArray `gorm:"column:key_rules;type:text[]"`
	Phases         pq.StringArray `gorm:"column:phases;type:text[]"`
	WorkoutTypes   pq.StringArray `gorm:"column:workout_types;type:text[]"`
	Embedding      pgvec.Vector   `gorm:"column:embedding"`
	EmbeddingModel string         `gorm:"column:embedding_model"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (instructionRecord) TableName() string { return "book_instructions" }

// Client provides similarity search via PostgreSQL+pgvector.
type Client struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

var _ vector.Searcher = (*Client)(nil)

// NewClient creates a new pgvector client on an open GORM connection.
func NewClient(db *gorm.DB) (*Client, error) {
	if db == nil {
		return nil, fmt.Errorf("DB is required")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	return &Client{db: db, sqlDB: sqlDB}, nil
}

const selectColumns = `id, book_title, methodology, chapter_title, section_title, content, level,
	key_rules, phases, workout_types, similarity`

// FilteredSearch calls the filtered search function. Empty filter fields are
// passed as NULL and match everything.
func (c *Client) FilteredSearch(ctx context.Context, query []float32, threshold float64, limit int, filters models.BookFilters) ([]models.BookMatch, error) {
	sqlStr := fmt.Sprintf(`SELECT %s FROM %s($1, $2, $3, $4, $5, $6)`, selectColumns, FilteredSearchFunction)
	rows, err := c.sqlDB.QueryContext(ctx, sqlStr,
		pgvec.NewVector(query), threshold, limit,
		nullable(filters.Phase), nullable(filters.WorkoutType), nullable(filters.Level),
	)
	if err != nil {
		if isUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", vector.ErrFilteredSearchUnavailable, err)
		}
		return nil, fmt.Errorf("filtered search: %w", err)
	}
	defer rows.Close()
	return scanMatches(rows)
}

// BasicSearch ranks every instruction by cosine similarity.
func (c *Client) BasicSearch(ctx context.Context, query []float32, threshold float64, limit int) ([]models.BookMatch, error) {
	sqlStr := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT *, 1 - (embedding <=> $1) AS similarity
			FROM book_instructions
			WHERE embedding IS NOT NULL
		) ranked
		WHERE similarity >= $2
		ORDER BY similarity DESC
		LIMIT $3`, selectColumns)

	rows, err := c.sqlDB.QueryContext(ctx, sqlStr, pgvec.NewVector(query), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("basic search: %w", err)
	}
	defer rows.Close()
	return scanMatches(rows)
}

func scanMatches(rows *sql.Rows) ([]models.BookMatch, error) {
	var matches []models.BookMatch
	for rows.Next() {
		var (
			m                              models.BookMatch
			chapter, section, level        sql.NullString
			keyRules, phases, workoutTypes pq.StringArray
		)
		in := &m.Instruction
		if err := rows.Scan(
			&in.ID, &in.BookTitle, &in.Methodology, &chapter, &section, &in.Content, &level,
			&keyRules, &phases, &workoutTypes, &m.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		in.ChapterTitle, in.SectionTitle, in.Level = chapter.String, section.String, level.String
		in.KeyRules, in.Phases, in.WorkoutTypes = keyRules, phases, workoutTypes
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// UpsertInstructions stores instructions that carry an embedding. Rows are
// keyed by a hash of title, chapter, section and content so re-ingesting a
// manifest updates in place. Instructions without an embedding are skipped.
func (c *Client) UpsertInstructions(ctx context.Context, model string, instructions []models.BookInstruction) (int, error) {
	records := make([]instructionRecord, 0, len(instructions))
	now := time.Now().UTC()
	for _, in := range instructions {
		if len(in.Embedding) == 0 {
			continue
		}
		records = append(records, instructionRecord{
			ContentHash:    ContentHash(in),
			BookTitle:      in.BookTitle,
			Methodology:    in.Methodology,
			ChapterTitle:   in.ChapterTitle,
			SectionTitle:   in.SectionTitle,
			Content:        in.Content,
			Level:          in.Level,
			KeyRules:       pq.StringArray(in.KeyRules),
			Phases:         pq.StringArray(in.Phases),
			WorkoutTypes:   pq.StringArray(in.WorkoutTypes),
			Embedding:      pgvec.NewVector(in.Embedding),
			EmbeddingModel: model,
			UpdatedAt:      now,
		})
	}
	if len(records) == 0 {
		return 0, nil
	}

	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "content_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"methodology", "level", "key_rules", "phases", "workout_types",
				"embedding", "embedding_model", "updated_at",
			}),
		}).
		Omit("id").
		Create(&records).Error
	if err != nil {
		return 0, fmt.Errorf("upsert book instructions: %w", err)
	}
	return len(records), nil
}

// Count returns the number of stored instructions.
func (c *Client) Count(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&instructionRecord{}).Count(&count).Error
	return count, err
}

// IsConnected checks whether the PostgreSQL connection is alive.
func (c *Client) IsConnected(ctx context.Context) bool {
	return c.sqlDB.PingContext(ctx) == nil
}

// ContentHash identifies an instruction by its source position and text.
func ContentHash(in models.BookInstruction) string {
	h := sha256.New()
	for _, part := range []string{in.BookTitle, in.ChapterTitle, in.SectionTitle, in.Content} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func isUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUndefinedFunction || pgErr.Code == sqlStateUndefinedTable
	}
	return false
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
