// Package classify maps free-text coaching questions to a QueryType and
// guesses the workout type they are about.
package classify

import (
	"regexp"
	"strings"

	"github.com/thebtf/coachctx/pkg/models"
)

// rule is one entry of the ordered classification list.
type rule struct {
	queryType models.QueryType
	patterns  []*regexp.Regexp
}

// rules are checked in order and the first match wins, so a message that
// mentions both "today" and a new plan is daily advice.
var rules = []rule{
	{
		queryType: models.QueryDailyAdvice,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\btoday\b`),
			regexp.MustCompile(`(?i)\btonight\b`),
			regexp.MustCompile(`(?i)\btomorrow\b`),
			regexp.MustCompile(`(?i)\bthis (morning|afternoon|evening)\b`),
			regexp.MustCompile(`(?i)\bwhat should i (do|run)\b`),
			regexp.MustCompile(`(?i)\bshould i (run|train|rest|skip)\b`),
		},
	},
	{
		queryType: models.QueryPlanReview,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\breview\b`),
			regexp.MustCompile(`(?i)\bhow did (i|my)\b`),
			regexp.MustCompile(`(?i)\bhow (is|am|was) (my|i)\b.*\b(progress|training|doing)\b`),
			regexp.MustCompile(`(?i)\blast (week|run|workout|month)\b`),
			regexp.MustCompile(`(?i)\banaly[sz]e\b`),
			regexp.MustCompile(`(?i)\bfeedback on\b`),
		},
	},
	{
		queryType: models.QueryPlanGeneration,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(create|generate|build|make|design|write)\b.*\b(plan|program|schedule)\b`),
			regexp.MustCompile(`(?i)\bnew (training )?plan\b`),
			regexp.MustCompile(`(?i)\b\d+[- ]week (plan|program|block)\b`),
			regexp.MustCompile(`(?i)\bplan for (a|my|the|an)\b`),
		},
	},
}

// Classify returns the QueryType of text. Matching is deterministic and
// ordered: daily advice, then review, then plan generation. Anything else
// is a general coaching question. Second opinions are never inferred; they
// must be requested explicitly.
func Classify(text string) models.QueryType {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.QueryAskCoach
	}
	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(text) {
				return r.queryType
			}
		}
	}
	return models.QueryAskCoach
}

// Resolve returns explicit when it is a valid QueryType and classifies text
// otherwise.
func Resolve(explicit models.QueryType, text string) models.QueryType {
	if explicit.Valid() {
		return explicit
	}
	return Classify(text)
}
