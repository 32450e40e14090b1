// Package embedding turns free text into fixed-dimension vectors through an
// OpenAI-compatible provider, with an optional Redis-backed cache.
package embedding

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Embedder produces a vector for a single text.
type Embedder interface {
	// Embed returns the embedding of text. Failures are explicit errors; callers
	// treat them as degraded retrieval, not as fatal.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName identifies the vector space; cache keys and stored rows carry it.
	ModelName() string

	// Dimensions returns the vector size.
	Dimensions() int
}

// BatchEmbedder also embeds many texts in provider-sized batches.
type BatchEmbedder interface {
	Embedder

	// EmbedBatch returns one vector per input, in order. Entries of batches that
	// failed are nil and the returned error joins every batch failure.
	EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Normalize collapses runs of whitespace to a single space and truncates the
// result to at most maxChars bytes on a word boundary. A single word longer
// than maxChars is cut at the last complete rune.
func Normalize(text string, maxChars int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if maxChars <= 0 || len(collapsed) <= maxChars {
		return collapsed
	}
	if collapsed[maxChars] == ' ' {
		return collapsed[:maxChars]
	}
	cut := collapsed[:maxChars]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		return cut[:i]
	}
	end := maxChars
	for end > 0 && !utf8.RuneStart(collapsed[end]) {
		end--
	}
	return collapsed[:end]
}
