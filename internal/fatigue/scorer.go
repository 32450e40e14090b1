// Package fatigue computes the composite 1-10 fatigue score used in athlete context.
package fatigue

import (
	"math"

	"github.com/thebtf/coachctx/pkg/models"
)

const (
	// DefaultScore is returned when no feedback signal exists.
	DefaultScore = 5.0

	MinScore = 1.0
	MaxScore = 10.0
)

// Components is the breakdown of a fatigue score. A nil factor had no source
// data and was left out of the average.
type Components struct {
	Effort      *float64 `json:"effort,omitempty"`
	SleepDebt   *float64 `json:"sleep_debt,omitempty"`
	Stress      *float64 `json:"stress,omitempty"`
	LowFeeling  *float64 `json:"low_feeling,omitempty"`
	Score       float64  `json:"score"`
	FactorCount int      `json:"factor_count"`
}

// Score returns the composite fatigue score for the given signals.
// Both inputs are optional.
func Score(feedback []*models.Feedback, checkIn *models.WeeklyCheckIn) float64 {
	return Calculate(feedback, checkIn).Score
}

// Calculate returns the fatigue score together with the factors it averaged.
//
// Factors, each on a 1-10 scale where higher means more fatigued:
//
//	Effort     = mean effort level across feedback
//	SleepDebt  = 11 - sleep quality
//	Stress     = stress level
//	LowFeeling = 11 - overall feeling
//
// Absent factors are excluded from the denominator. The mean is clamped to
// [1,10] and rounded to one decimal.
func Calculate(feedback []*models.Feedback, checkIn *models.WeeklyCheckIn) Components {
	var c Components
	var sum float64

	add := func(dst **float64, v float64) {
		*dst = &v
		sum += v
		c.FactorCount++
	}

	var effortSum float64
	var effortCount int
	for _, fb := range feedback {
		if fb == nil || fb.EffortLevel == nil {
			continue
		}
		effortSum += float64(*fb.EffortLevel)
		effortCount++
	}
	if effortCount > 0 {
		add(&c.Effort, effortSum/float64(effortCount))
	}

	if checkIn != nil {
		if checkIn.SleepQuality != nil {
			add(&c.SleepDebt, 11-float64(*checkIn.SleepQuality))
		}
		if checkIn.StressLevel != nil {
			add(&c.Stress, float64(*checkIn.StressLevel))
		}
		if checkIn.Feeling != nil {
			add(&c.LowFeeling, 11-float64(*checkIn.Feeling))
		}
	}

	if c.FactorCount == 0 {
		c.Score = DefaultScore
		return c
	}

	score := sum / float64(c.FactorCount)
	score = math.Max(MinScore, math.Min(MaxScore, score))
	c.Score = math.Round(score*10) / 10
	return c
}

// Describe returns the human-readable band for a score.
func Describe(score float64) string {
	switch {
	case score < 4:
		return "Low"
	case score < 7:
		return "Moderate"
	case score < 8.5:
		return "High"
	default:
		return "Very High"
	}
}
