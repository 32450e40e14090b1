// Package models defines the shared data model of the coaching context engine.
package models

import "fmt"

// QueryType identifies the kind of coaching request a prompt is assembled for.
// It is only ever used as a lookup key.
type QueryType string

const (
	QueryDailyAdvice    QueryType = "daily_advice"
	QueryPlanReview     QueryType = "plan_review"
	QueryPlanGeneration QueryType = "plan_generation"
	QueryAskCoach       QueryType = "ask_coach"
	QuerySecondOpinion  QueryType = "second_opinion"
)

// QueryTypes lists every QueryType in declaration order.
var QueryTypes = []QueryType{
	QueryDailyAdvice,
	QueryPlanReview,
	QueryPlanGeneration,
	QueryAskCoach,
	QuerySecondOpinion,
}

// Valid reports whether q is one of the known query types.
func (q QueryType) Valid() bool {
	for _, known := range QueryTypes {
		if q == known {
			return true
		}
	}
	return false
}

// ParseQueryType converts a wire value into a QueryType.
func ParseQueryType(s string) (QueryType, error) {
	q := QueryType(s)
	if !q.Valid() {
		return "", fmt.Errorf("unknown query type %q", s)
	}
	return q, nil
}

// ContextWeights splits a prompt budget between the three knowledge sources.
// Each weight is in [0,1] and the three sum to 1.0.
type ContextWeights struct {
	User  float64 `json:"user"`
	Coach float64 `json:"coach"`
	Book  float64 `json:"book"`
}

// Sum returns the total of the three weights.
func (w ContextWeights) Sum() float64 {
	return w.User + w.Coach + w.Book
}
