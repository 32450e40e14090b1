// Package tokens provides prompt size estimates.
package tokens

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// CharsPerToken is the character-to-token ratio used for every budget in
// the engine.
const CharsPerToken = 4

// Estimate returns ceil(len(text)/4). All budgets are based on this
// approximation, not on a real tokenizer.
func Estimate(text string) int {
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// Chars converts a token budget into a character budget.
func Chars(tokenBudget int) int {
	if tokenBudget <= 0 {
		return 0
	}
	return tokenBudget * CharsPerToken
}

var (
	codec     tokenizer.Codec
	codecErr  error
	codecOnce sync.Once
)

// Count returns the cl100k token count of text. It is used for
// observability only; when the encoder is unavailable it falls back to
// Estimate.
func Count(text string) int {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
		if codecErr != nil {
			log.Warn().Err(codecErr).Msg("cl100k encoder unavailable, using estimates")
		}
	})
	if codecErr != nil || text == "" {
		return Estimate(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return Estimate(text)
	}
	return len(ids)
}
