package model

// DraftOrigin records how a query draft was produced.
type DraftOrigin string

const (
	OriginTemplate DraftOrigin = "template" // matched a known pattern; trusted
	OriginOracle   DraftOrigin = "oracle"   // translated by the language model
	OriginRepaired DraftOrigin = "repaired" // rewritten by a repair rule
)

// QueryDraft is one attempt at an executable SQL query. The accepted draft is
// immutable once the executor reports success.
type QueryDraft struct {
	SQL      string      `json:"sql"`
	Origin   DraftOrigin `json:"origin"`
	Template string      `json:"template,omitempty"` // template name when Origin is template
	Attempt  int         `json:"attempt"`            // 1-based
}

// ExecStatus classifies the outcome of executing one draft.
type ExecStatus string

const (
	ExecOk            ExecStatus = "ok"
	ExecEmptyOk       ExecStatus = "empty_ok"
	ExecSyntaxError   ExecStatus = "syntax_error"
	ExecSemanticError ExecStatus = "semantic_error"
)

// ExecutionResult is the outcome of exactly one draft execution. A retried
// draft produces a new ExecutionResult; results are never mutated in place.
type ExecutionResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]any    `json:"rows"`
	Status  ExecStatus `json:"status"`
	Err     string     `json:"error,omitempty"`
	Tables  []string   `json:"tables,omitempty"` // tables referenced by the query
}

// OK reports whether execution succeeded, with or without rows.
func (r *ExecutionResult) OK() bool {
	return r.Status == ExecOk || r.Status == ExecEmptyOk
}

// Failed reports whether execution ended in an error status.
func (r *ExecutionResult) Failed() bool {
	return r.Status == ExecSyntaxError || r.Status == ExecSemanticError
}
