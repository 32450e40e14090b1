package coachpatterns

import (
	"strings"
	"unicode"

	"github.com/thebtf/coachctx/internal/classify"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "what": {}, "should": {}, "could": {}, "would": {},
	"can": {}, "how": {}, "this": {}, "that": {}, "there": {}, "today": {}, "tomorrow": {}, "tonight": {},
	"week": {}, "weeks": {}, "run": {}, "runs": {}, "running": {}, "workout": {}, "workouts": {},
	"training": {}, "train": {}, "plan": {}, "do": {}, "does": {}, "did": {}, "make": {}, "create": {},
	"help": {}, "please": {}, "about": {}, "need": {}, "want": {}, "give": {}, "some": {}, "any": {},
	"are": {}, "was": {}, "were": {}, "have": {}, "has": {}, "had": {}, "you": {}, "your": {}, "my": {},
	"me": {}, "from": {}, "into": {}, "after": {}, "before": {}, "when": {}, "why": {}, "which": {},
	"good": {}, "best": {}, "more": {}, "less": {}, "next": {}, "last": {}, "feel": {}, "feeling": {},
	"like": {}, "just": {}, "also": {}, "been": {}, "being": {}, "than": {}, "then": {}, "them": {},
}

// ExtractKeywords returns up to max search terms from query. Stop-words and
// words shorter than three letters are dropped; workout vocabulary comes
// first, then the remaining words in order of appearance.
func ExtractKeywords(query string, max int) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	var vocab, other []string
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if classify.IsWorkoutTerm(w) {
			vocab = append(vocab, w)
		} else {
			other = append(other, w)
		}
	}

	out := append(vocab, other...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}
