package models

// BookInstruction is a chunk of training-methodology text. It is written by
// the ingestion pipeline and only read by the engine.
type BookInstruction struct {
	BookTitle    string    `json:"book_title"`
	Methodology  string    `json:"methodology"`
	ChapterTitle string    `json:"chapter_title,omitempty"`
	SectionTitle string    `json:"section_title,omitempty"`
	Content      string    `json:"content"`
	Level        string    `json:"level,omitempty"`
	KeyRules     []string  `json:"key_rules,omitempty"`
	Phases       []string  `json:"phases,omitempty"`
	WorkoutTypes []string  `json:"workout_types,omitempty"`
	Embedding    []float32 `json:"-"`
	ID           int64     `json:"id"`
}

// BookMatch is a similarity-search hit.
type BookMatch struct {
	Instruction BookInstruction `json:"instruction"`
	Similarity  float64         `json:"similarity"`
}

// BookFilters narrows methodology search. Empty fields are unset.
type BookFilters struct {
	Phase       string `json:"phase,omitempty"`
	WorkoutType string `json:"workout_type,omitempty"`
	Level       string `json:"level,omitempty"`
}

// IsZero reports whether no filter is set.
func (f BookFilters) IsZero() bool {
	return f.Phase == "" && f.WorkoutType == "" && f.Level == ""
}

// BookSource is a citation for methodology text included in a prompt.
type BookSource struct {
	BookTitle    string `json:"book_title"`
	Methodology  string `json:"methodology,omitempty"`
	ChapterTitle string `json:"chapter_title,omitempty"`
}
