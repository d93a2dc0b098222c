package model

// DateRange is a named campaign period extracted from a document.
type DateRange struct {
	Name     string `json:"name"`
	Start    string `json:"start"` // YYYY-MM-DD
	End      string `json:"end"`   // YYYY-MM-DD
	SourceID string `json:"source_id"`
}

// KPIFormula is a metric definition extracted from a document
// (e.g. AOV = revenue / distinct orders).
type KPIFormula struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	SourceID   string `json:"source_id"`
}

// PolicyRule is a policy fact extracted from a document
// (e.g. return window for unopened Beverages is 30 days).
type PolicyRule struct {
	Subject   string `json:"subject"`
	Condition string `json:"condition"`
	Value     string `json:"value"`
	SourceID  string `json:"source_id"`
}

// ConstraintSet groups the typed facts extracted from retrieved passages for
// one question. Read-only after extraction; every entry carries the SourceID
// of the passage it came from so citations can be traced back.
type ConstraintSet struct {
	DateRanges []DateRange  `json:"date_ranges,omitempty"`
	Formulas   []KPIFormula `json:"formulas,omitempty"`
	Policies   []PolicyRule `json:"policies,omitempty"`
}

// Empty reports whether no constraints were extracted.
func (c ConstraintSet) Empty() bool {
	return len(c.DateRanges) == 0 && len(c.Formulas) == 0 && len(c.Policies) == 0
}

// SourceIDs returns the deduplicated passage ids that contributed constraints,
// in first-seen order.
func (c ConstraintSet) SourceIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, d := range c.DateRanges {
		add(d.SourceID)
	}
	for _, f := range c.Formulas {
		add(f.SourceID)
	}
	for _, p := range c.Policies {
		add(p.SourceID)
	}
	return ids
}
