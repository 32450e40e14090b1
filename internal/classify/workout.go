package classify

import "strings"

// WorkoutTerms is the fixed workout vocabulary. Keyword extraction ranks
// these above other words.
var WorkoutTerms = []string{
	"tempo", "interval", "intervals", "long", "easy", "recovery", "hill", "hills",
	"fartlek", "threshold", "race", "speed", "progression", "strides", "track",
	"marathon", "repeats", "vo2",
}

// IsWorkoutTerm reports whether word is in WorkoutTerms.
func IsWorkoutTerm(word string) bool {
	word = strings.ToLower(word)
	for _, t := range WorkoutTerms {
		if t == word {
			return true
		}
	}
	return false
}

// workoutDictionary maps query substrings to workout types. Longer phrases
// come first so "long run" wins over "run"-free matches like "long".
var workoutDictionary = []struct {
	phrase      string
	workoutType string
}{
	{"long run", "long_run"},
	{"tempo", "tempo"},
	{"threshold", "tempo"},
	{"interval", "intervals"},
	{"repeats", "intervals"},
	{"vo2", "intervals"},
	{"speed work", "intervals"},
	{"track", "intervals"},
	{"fartlek", "fartlek"},
	{"hill", "hills"},
	{"recovery", "recovery"},
	{"easy", "easy"},
	{"strides", "strides"},
	{"race", "race"},
	{"long", "long_run"},
}

// GuessWorkoutType returns a best-effort workout type for text, or "".
func GuessWorkoutType(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range workoutDictionary {
		if strings.Contains(lower, entry.phrase) {
			return entry.workoutType
		}
	}
	return ""
}
