package models

// UserLayer is the formatted athlete-data section of a prompt.
type UserLayer struct {
	CurrentPhase       *string `json:"current_phase"`
	Text               string  `json:"text"`
	TokenCount         int     `json:"token_count"`
	ActivitiesIncluded int     `json:"activities_included"`
	FatigueScore       float64 `json:"fatigue_score"`
	HasActivePlan      bool    `json:"has_active_plan"`
}

// CoachLayer is the formatted coach-pattern section of a prompt.
type CoachLayer struct {
	Text             string   `json:"text"`
	WorkoutsIncluded []string `json:"workouts_included"`
	PhasesIncluded   []string `json:"phases_included"`
	TokenCount       int      `json:"token_count"`
}

// BookLayer is the formatted methodology section of a prompt.
type BookLayer struct {
	Text       string       `json:"text"`
	Sources    []BookSource `json:"sources"`
	TokenCount int          `json:"token_count"`
}

// EnhancedContext is the engine's only externally visible output. It is
// request scoped and never persisted.
type EnhancedContext struct {
	QueryType      QueryType  `json:"query_type"`
	CombinedPrompt string     `json:"combined_prompt"`
	User           UserLayer  `json:"user"`
	Coach          CoachLayer `json:"coach"`
	Book           BookLayer  `json:"book"`
	TotalTokens    int        `json:"total_tokens"`
}

// LayerTokens holds per-layer token estimates.
type LayerTokens struct {
	User  int `json:"user"`
	Coach int `json:"coach"`
	Book  int `json:"book"`
}

// ContextStats is the observability view of an EnhancedContext. It carries
// counts and citation lists only, never prompt text or vectors.
type ContextStats struct {
	Sources               []BookSource `json:"sources"`
	Workouts              []string     `json:"workouts"`
	PerLayerTokens        LayerTokens  `json:"per_layer_tokens"`
	TotalTokens           int          `json:"total_tokens"`
	EncodedTokens         int          `json:"encoded_tokens"`
	SourceCount           int          `json:"source_count"`
	WorkoutsIncludedCount int          `json:"workouts_included_count"`
}
