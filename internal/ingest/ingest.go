package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/coachctx/internal/embedding"
	"github.com/thebtf/coachctx/pkg/models"
)

// Store persists embedded instructions and returns how many were written.
type Store interface {
	UpsertInstructions(ctx context.Context, model string, instructions []models.BookInstruction) (int, error)
}

// Report summarizes one ingestion run.
type Report struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
	Stored   int `json:"stored"`
	Failed   int `json:"failed"`
}

// Run embeds every instruction in batches and stores those that embedded
// successfully. A failed batch does not discard the others; its entries are
// counted as failed and the error is returned alongside the report.
func Run(ctx context.Context, emb embedding.BatchEmbedder, store Store, instructions []models.BookInstruction, batchSize int) (Report, error) {
	report := Report{Total: len(instructions)}
	if len(instructions) == 0 {
		return report, nil
	}

	texts := make([]string, len(instructions))
	for i, in := range instructions {
		texts[i] = EmbeddingText(in)
	}

	vectors, embedErr := emb.EmbedBatch(ctx, texts, batchSize)
	if embedErr != nil {
		log.Warn().Err(embedErr).Int("total", len(texts)).Msg("Some instructions failed to embed")
	}

	ready := make([]models.BookInstruction, 0, len(instructions))
	for i, in := range instructions {
		if i < len(vectors) && len(vectors[i]) > 0 {
			in.Embedding = vectors[i]
			ready = append(ready, in)
		}
	}
	report.Embedded = len(ready)
	report.Failed = report.Total - report.Embedded

	if len(ready) > 0 {
		stored, err := store.UpsertInstructions(ctx, emb.ModelName(), ready)
		report.Stored = stored
		if err != nil {
			report.Failed = report.Total - stored
			return report, errors.Join(embedErr, fmt.Errorf("store instructions: %w", err))
		}
	}

	log.Info().
		Int("total", report.Total).
		Int("embedded", report.Embedded).
		Int("stored", report.Stored).
		Int("failed", report.Failed).
		Str("model", emb.ModelName()).
		Msg("Methodology ingestion finished")

	if embedErr != nil {
		return report, fmt.Errorf("embed instructions: %w", embedErr)
	}
	return report, nil
}
