// Package vector defines the similarity-search capability over book
// instructions and the single call site that chooses between its filtered
// and unfiltered variants.
package vector

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/coachctx/pkg/models"
)

// ErrFilteredSearchUnavailable marks a backend whose filtered search entry
// point is missing or unusable.
var ErrFilteredSearchUnavailable = errors.New("vector: filtered search unavailable")

// Searcher finds book instructions similar to a query vector. Results are
// ordered by descending similarity and never exceed limit.
type Searcher interface {
	FilteredSearch(ctx context.Context, query []float32, threshold float64, limit int, filters models.BookFilters) ([]models.BookMatch, error)
	BasicSearch(ctx context.Context, query []float32, threshold float64, limit int) ([]models.BookMatch, error)
}

// Mode reports which variant produced a result.
type Mode string

const (
	ModeFiltered Mode = "filtered"
	ModeBasic    Mode = "basic"
)

// SearchWithFallback tries FilteredSearch and, on any error other than a
// cancelled context, retries once with BasicSearch using the same threshold
// and limit. The fallback is logged, never surfaced. Only a BasicSearch
// failure is returned.
func SearchWithFallback(ctx context.Context, s Searcher, query []float32, threshold float64, limit int, filters models.BookFilters) ([]models.BookMatch, Mode, error) {
	matches, err := s.FilteredSearch(ctx, query, threshold, limit, filters)
	if err == nil {
		return matches, ModeFiltered, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ModeFiltered, ctxErr
	}

	log.Info().Err(err).
		Bool("unavailable", errors.Is(err, ErrFilteredSearchUnavailable)).
		Msg("Filtered book search failed, falling back to basic search")

	matches, err = s.BasicSearch(ctx, query, threshold, limit)
	if err != nil {
		return nil, ModeBasic, err
	}
	return matches, ModeBasic, nil
}

// DistanceToSimilarity converts a cosine distance into a similarity score.
func DistanceToSimilarity(distance float64) float64 {
	return 1 - distance
}
