package model

import "sort"

// CitationKind distinguishes document chunks from database tables.
type CitationKind string

const (
	CiteDocument CitationKind = "document"
	CiteTable    CitationKind = "table"
)

// Citation ties part of a final answer to a specific source.
type Citation struct {
	SourceID string       `json:"source_id"`
	Kind     CitationKind `json:"kind"`
}

// CitationSet accumulates citations with set semantics: duplicate
// source+kind pairs are dropped.
type CitationSet struct {
	seen  map[Citation]bool
	cites []Citation
}

// Add records a citation unless it was already present or has an empty id.
func (s *CitationSet) Add(id string, kind CitationKind) {
	if id == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[Citation]bool)
	}
	c := Citation{SourceID: id, Kind: kind}
	if s.seen[c] {
		return
	}
	s.seen[c] = true
	s.cites = append(s.cites, c)
}

// List returns the citations sorted by kind then source id for stable output.
func (s *CitationSet) List() []Citation {
	out := make([]Citation, len(s.cites))
	copy(out, s.cites)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

// AnswerRecord is the terminal artifact for one question: created once by the
// synthesizer, immutable thereafter, exactly one per question id.
type AnswerRecord struct {
	ID          string     `json:"id"`
	FinalAnswer any        `json:"final_answer"`
	SQL         *string    `json:"sql"`
	Confidence  float64    `json:"confidence"`
	Explanation string     `json:"explanation"`
	Citations   []Citation `json:"citations"`
}

// SynthesisFlags are the deterministic inputs to confidence scoring and
// explanation text. They record what actually happened during the run, not
// why; the synthesizer derives both outputs from the same flags so the
// scoring stays auditable.
type SynthesisFlags struct {
	Template       string // template name, empty when the oracle drafted
	OracleDraft    bool
	RepairAttempts int // attempts beyond the first
	EmptyResult    bool
	OracleRouted   bool
	RetrievalEmpty bool
	ExecFailed     bool
	FailureCause   string
}
