// Package methodology retrieves training-methodology excerpts similar to a
// query and formats them with source attribution.
package methodology

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/coachctx/internal/budget"
	"github.com/thebtf/coachctx/internal/embedding"
	"github.com/thebtf/coachctx/internal/tokens"
	"github.com/thebtf/coachctx/internal/vector"
	"github.com/thebtf/coachctx/pkg/models"
)

const (
	// DefaultThreshold is the minimum similarity for a match.
	DefaultThreshold = 0.7
	// CharsPerInstruction estimates how much budget one excerpt takes.
	CharsPerInstruction = 500
	// MaxMatches caps the requested match count for very large budgets.
	MaxMatches = 20

	// NoMatchesText is the layer text when nothing clears the threshold.
	NoMatchesText = "No relevant methodology found for this query."
)

// UnavailableText formats the placeholder used when the query could not be
// embedded.
func UnavailableText(reason string) string {
	return fmt.Sprintf("No book context available (%s)", reason)
}

// Retriever builds the book layer.
type Retriever struct {
	embedder  embedding.Embedder
	searcher  vector.Searcher
	threshold float64
}

// New creates a Retriever. A threshold outside (0,1] falls back to
// DefaultThreshold.
func New(embedder embedding.Embedder, searcher vector.Searcher, threshold float64) *Retriever {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Retriever{embedder: embedder, searcher: searcher, threshold: threshold}
}

// MatchCount is the number of matches requested for a budget of maxChars.
func MatchCount(maxChars int) int {
	n := maxChars / CharsPerInstruction
	if n < 1 {
		return 1
	}
	if n > MaxMatches {
		return MaxMatches
	}
	return n
}

// Retrieve embeds query, searches with filters (falling back to an
// unfiltered search) and formats the matches within maxChars. Only a
// cancelled context is returned as an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, filters models.BookFilters, maxChars int) (models.BookLayer, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.BookLayer{}, ctxErr
		}
		log.Warn().Err(err).Str("model", r.embedder.ModelName()).Msg("Query embedding failed, book layer degraded")
		return unavailable(reason(err)), nil
	}

	matches, mode, err := vector.SearchWithFallback(ctx, r.searcher, vec, r.threshold, MatchCount(maxChars), filters)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.BookLayer{}, ctxErr
		}
		log.Warn().Err(err).Msg("Book search failed")
		return noMatches(), nil
	}
	if len(matches) == 0 {
		log.Debug().Str("mode", string(mode)).Msg("No book instructions above threshold")
		return noMatches(), nil
	}

	layer := render(matches, maxChars)
	log.Debug().Str("mode", string(mode)).Int("matches", len(matches)).
		Int("sources", len(layer.Sources)).Msg("Book methodology retrieved")
	return layer, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, embedding.ErrMissingCredentials):
		return "embedding provider not configured"
	case errors.Is(err, embedding.ErrProviderStatus):
		return "embedding provider error"
	case errors.Is(err, embedding.ErrMalformedResponse):
		return "malformed embedding response"
	case errors.Is(err, embedding.ErrEmptyInput):
		return "empty query"
	default:
		return "embedding failed"
	}
}

func unavailable(why string) models.BookLayer {
	return models.BookLayer{Text: UnavailableText(why), Sources: []models.BookSource{}}
}

func noMatches() models.BookLayer {
	return models.BookLayer{
		Text:       NoMatchesText,
		Sources:    []models.BookSource{},
		TokenCount: tokens.Estimate(NoMatchesText),
	}
}

func render(matches []models.BookMatch, maxChars int) models.BookLayer {
	entries := make([]string, len(matches))
	for i := range matches {
		entries[i] = FormatInstruction(&matches[i].Instruction)
	}
	packed, _ := budget.Pack(entries, maxChars, func(s string) int { return len(s) }, true)

	layer := models.BookLayer{Sources: []models.BookSource{}}
	type sourceKey struct{ book, chapter string }
	seen := map[sourceKey]struct{}{}
	for i := range packed {
		in := &matches[i].Instruction
		key := sourceKey{in.BookTitle, in.ChapterTitle}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		layer.Sources = append(layer.Sources, models.BookSource{
			BookTitle:    in.BookTitle,
			Methodology:  in.Methodology,
			ChapterTitle: in.ChapterTitle,
		})
	}

	layer.Text = strings.TrimRight(strings.Join(packed, ""), "\n")
	layer.TokenCount = tokens.Estimate(layer.Text)
	return layer
}

// FormatInstruction renders one excerpt with its attribution line, body and
// key rules.
func FormatInstruction(in *models.BookInstruction) string {
	var b strings.Builder
	b.WriteString("**" + in.BookTitle + "**")
	if in.Methodology != "" {
		b.WriteString(" [" + in.Methodology + "]")
	}
	var where []string
	if in.ChapterTitle != "" {
		where = append(where, in.ChapterTitle)
	}
	if in.SectionTitle != "" {
		where = append(where, in.SectionTitle)
	}
	if len(where) > 0 {
		b.WriteString(" - " + strings.Join(where, " > "))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(in.Content) + "\n")
	if len(in.KeyRules) > 0 {
		b.WriteString("Key rules:\n")
		for _, rule := range in.KeyRules {
			b.WriteString("- " + rule + "\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}
