package model

// Question is a single natural-language analytics question. Immutable input;
// consumed once per run.
type Question struct {
	ID         string `json:"id" yaml:"id"`
	Text       string `json:"question" yaml:"question"`
	FormatHint string `json:"format_hint,omitempty" yaml:"format_hint,omitempty"`
}

// Passage is one retrieved document chunk. SourceID identifies the chunk
// (e.g. "marketing_calendar::chunk2") and Source the originating document.
type Passage struct {
	SourceID string  `json:"source_id"`
	Source   string  `json:"source"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}
