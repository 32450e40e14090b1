// Package budget splits the prompt budget between knowledge sources and
// packs formatted entries into a character allowance.
package budget

import (
	"fmt"
	"math"

	"github.com/thebtf/coachctx/pkg/models"
)

// weightTolerance is the allowed floating error when checking that a weight
// triple sums to 1.0.
const weightTolerance = 1e-9

// Table holds one weight triple per QueryType.
type Table struct {
	DailyAdvice    models.ContextWeights `json:"daily_advice"`
	PlanReview     models.ContextWeights `json:"plan_review"`
	PlanGeneration models.ContextWeights `json:"plan_generation"`
	AskCoach       models.ContextWeights `json:"ask_coach"`
	SecondOpinion  models.ContextWeights `json:"second_opinion"`
}

// DefaultTable is the compiled-in weight table. It is validated at package
// init and never mutated afterwards.
var DefaultTable = Table{
	DailyAdvice:    models.ContextWeights{User: 0.65, Coach: 0.10, Book: 0.25},
	PlanReview:     models.ContextWeights{User: 0.50, Coach: 0.25, Book: 0.25},
	PlanGeneration: models.ContextWeights{User: 0.35, Coach: 0.30, Book: 0.35},
	AskCoach:       models.ContextWeights{User: 0.30, Coach: 0.25, Book: 0.45},
	SecondOpinion:  models.ContextWeights{User: 0.40, Coach: 0.20, Book: 0.40},
}

func init() {
	if err := DefaultTable.Validate(); err != nil {
		panic(fmt.Sprintf("budget: invalid default weight table: %v", err))
	}
}

// For returns the weights of q. Unknown types get the general Q&A weights.
func (t Table) For(q models.QueryType) models.ContextWeights {
	switch q {
	case models.QueryDailyAdvice:
		return t.DailyAdvice
	case models.QueryPlanReview:
		return t.PlanReview
	case models.QueryPlanGeneration:
		return t.PlanGeneration
	case models.QuerySecondOpinion:
		return t.SecondOpinion
	default:
		return t.AskCoach
	}
}

// Validate checks that every weight is in [0,1] and every triple sums to 1.0.
func (t Table) Validate() error {
	for _, q := range models.QueryTypes {
		w := t.For(q)
		for name, v := range map[string]float64{"user": w.User, "coach": w.Coach, "book": w.Book} {
			if v < 0 || v > 1 || math.IsNaN(v) {
				return fmt.Errorf("%s: %s weight %v out of range [0,1]", q, name, v)
			}
		}
		if math.Abs(w.Sum()-1.0) > weightTolerance {
			return fmt.Errorf("%s: weights sum to %v, want 1.0", q, w.Sum())
		}
	}
	return nil
}

// Allocation is a total budget split three ways, in approximate tokens.
type Allocation struct {
	Total int `json:"total"`
	User  int `json:"user"`
	Coach int `json:"coach"`
	Book  int `json:"book"`
}

// Allocate floors total*weight for each source. Floor rounding may leave up
// to two units unallocated; that is accepted and never redistributed.
func Allocate(total int, w models.ContextWeights) Allocation {
	if total < 0 {
		total = 0
	}
	return Allocation{
		Total: total,
		User:  share(total, w.User),
		Coach: share(total, w.Coach),
		Book:  share(total, w.Book),
	}
}

// share absorbs binary representation error (0.65*8000 = 5199.999...) so that
// weights with a few decimals split exactly.
func share(total int, weight float64) int {
	return int(math.Floor(float64(total)*weight + weightTolerance))
}
