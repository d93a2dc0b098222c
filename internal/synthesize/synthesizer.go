// Package synthesize turns the pipeline's intermediate artifacts into the
// terminal AnswerRecord: a typed final answer, citations for every source that
// contributed, a confidence score, and a deterministic explanation. No
// language-model call happens here; the record must be reproducible from the
// same inputs.
package synthesize

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/analytics-copilot/internal/model"
)

var folder = cases.Fold()

// Input collects everything one question produced along its branches. Query is
// nil for pure document routes.
type Input struct {
	Question    model.Question
	Route       model.RouteDecision
	Passages    []model.Passage
	Constraints model.ConstraintSet
	Query       *QueryOutcome
}

// QueryOutcome is the SQL branch result the synthesizer consumes. It mirrors
// the generator's result without importing it, keeping this package free of a
// dependency on query generation.
type QueryOutcome struct {
	Draft       model.QueryDraft
	Exec        *model.ExecutionResult
	Attempts    int
	Template    string
	OracleDraft bool
}

// Synthesize builds the AnswerRecord for one question.
func Synthesize(in Input) model.AnswerRecord {
	flags := buildFlags(in)
	rec := model.AnswerRecord{
		ID:         in.Question.ID,
		Confidence: Confidence(flags),
	}

	var cites model.CitationSet

	switch {
	case flags.ExecFailed:
		// Unanswerable: the question needed SQL and none could be produced.
		rec.FinalAnswer = nil
	case in.Route.Route == model.RouteRAG:
		answer, sourceID := answerFromPassages(in.Question, in.Passages, in.Constraints)
		rec.FinalAnswer = answer
		if sourceID != "" {
			cites.Add(sourceID, model.CiteDocument)
		} else {
			for _, p := range in.Passages {
				cites.Add(p.SourceID, model.CiteDocument)
			}
		}
	default: // SQL or HYBRID
		rec.FinalAnswer = answerFromRows(in.Question, in.Query.Exec)
		sqlText := in.Query.Draft.SQL
		rec.SQL = &sqlText
		for _, t := range in.Query.Exec.Tables {
			cites.Add(t, model.CiteTable)
		}
		if in.Route.Route == model.RouteHybrid {
			for _, id := range in.Constraints.SourceIDs() {
				cites.Add(id, model.CiteDocument)
			}
		}
	}

	rec.Citations = cites.List()
	rec.Explanation = explain(in, flags)

	zap.L().Debug("answer synthesized",
		zap.String("question_id", in.Question.ID),
		zap.Float64("confidence", rec.Confidence),
		zap.Int("citations", len(rec.Citations)),
	)
	return rec
}

func buildFlags(in Input) model.SynthesisFlags {
	f := model.SynthesisFlags{
		OracleRouted:   in.Route.FromOracle,
		RetrievalEmpty: in.Route.Route.NeedsRetrieval() && len(in.Passages) == 0,
	}
	if in.Route.Route.NeedsSQL() && (in.Query == nil || in.Query.Exec == nil) {
		f.ExecFailed = true
		f.FailureCause = "no query was produced"
		return f
	}
	if q := in.Query; q != nil {
		f.Template = q.Template
		f.OracleDraft = q.OracleDraft
		if q.Attempts > 1 {
			f.RepairAttempts = q.Attempts - 1
		}
		if q.Exec != nil {
			f.EmptyResult = q.Exec.Status == model.ExecEmptyOk
			if q.Exec.Failed() {
				f.ExecFailed = true
				f.FailureCause = q.Exec.Err
			}
		}
	}
	return f
}

// Confidence scores one answer from the run's flags: base 0.9, minus 0.1 for
// an oracle-origin draft, 0.1 per repair attempt, 0.3 for an empty result,
// 0.3 for empty retrieval, and 0.05 for an oracle-chosen route, clamped to
// [0,1]. A failed execution scores zero outright.
func Confidence(f model.SynthesisFlags) float64 {
	if f.ExecFailed {
		return 0
	}
	score := 0.9
	if f.OracleDraft {
		score -= 0.1
	}
	score -= 0.1 * float64(f.RepairAttempts)
	if f.EmptyResult {
		score -= 0.3
	}
	if f.RetrievalEmpty {
		score -= 0.3
	}
	if f.OracleRouted {
		score -= 0.05
	}
	return math.Min(1, math.Max(0, score))
}

// explain renders the human-readable justification from the same flags that
// drive the confidence score.
func explain(in Input, f model.SynthesisFlags) string {
	if f.ExecFailed {
		cause := f.FailureCause
		if cause == "" {
			cause = "unknown error"
		}
		return "Could not answer with a database query: " + cause + "."
	}

	var parts []string
	switch in.Route.Route {
	case model.RouteRAG:
		parts = append(parts, "Answered from the document corpus")
	case model.RouteSQL:
		parts = append(parts, "Answered with a database query")
	case model.RouteHybrid:
		parts = append(parts, "Answered with a database query parameterized by document facts")
	}

	if f.Template != "" {
		parts = append(parts, fmt.Sprintf("using the %s template", f.Template))
	} else if f.OracleDraft {
		parts = append(parts, "using a model-drafted query")
	}
	if f.RepairAttempts == 1 {
		parts = append(parts, "after 1 repair")
	} else if f.RepairAttempts > 1 {
		parts = append(parts, fmt.Sprintf("after %d repairs", f.RepairAttempts))
	}

	s := strings.Join(parts, " ") + "."
	if f.EmptyResult {
		s += " The query returned no rows; the requested period or filter may not match the data."
	}
	if f.RetrievalEmpty {
		s += " No supporting passages were found in the corpus."
	}
	if f.OracleRouted {
		s += " Route chosen by the language model."
	}
	return s
}

var (
	intRe      = regexp.MustCompile(`-?\d+`)
	sentenceRe = regexp.MustCompile(`[^.?!]*[.?!]`)
)

// answerFromPassages derives a document-route answer. Typed constraints are
// preferred over raw passage text; the returned source id points at the
// passage that supplied the answer, or "" when the answer came from the
// passage list as a whole.
func answerFromPassages(q model.Question, passages []model.Passage, set model.ConstraintSet) (any, string) {
	qf := folder.String(q.Text)

	if rule := matchPolicy(qf, set.Policies); rule != nil {
		return coerceHint(q.FormatHint, rule.Value), rule.SourceID
	}
	if strings.Contains(qf, "formula") || strings.Contains(qf, "definition") || strings.Contains(qf, "calculated") || strings.Contains(qf, "defined") {
		for _, fm := range set.Formulas {
			if questionMentions(qf, fm.Name) {
				return fm.Expression, fm.SourceID
			}
		}
	}
	if strings.Contains(qf, "when") || strings.Contains(qf, "dates") || strings.Contains(qf, "period") {
		for _, d := range set.DateRanges {
			if questionMentions(qf, d.Name) {
				return d.Start + " to " + d.End, d.SourceID
			}
		}
	}

	if len(passages) == 0 {
		return nil, ""
	}
	// Fall back to the best-ranked passage's leading sentence.
	top := passages[0]
	text := strings.TrimSpace(top.Content)
	if s := sentenceRe.FindString(text); s != "" {
		text = strings.TrimSpace(s)
	}
	return coerceHint(q.FormatHint, text), top.SourceID
}

// matchPolicy finds the policy rule whose subject appears in the question and
// whose condition, if any, also appears. Conditional rules are checked first
// so "unopened Beverages" beats the bare Beverages rule.
func matchPolicy(qf string, rules []model.PolicyRule) *model.PolicyRule {
	for pass := 0; pass < 2; pass++ {
		for i := range rules {
			r := &rules[i]
			conditional := r.Condition != ""
			if (pass == 0) != conditional {
				continue
			}
			if !questionMentions(qf, r.Subject) {
				continue
			}
			if conditional && !strings.Contains(qf, folder.String(r.Condition)) {
				continue
			}
			return r
		}
	}
	return nil
}

func questionMentions(foldedQuestion, name string) bool {
	tokens := strings.Fields(folder.String(name))
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !strings.Contains(foldedQuestion, tok) {
			return false
		}
	}
	return true
}

// answerFromRows derives a SQL-route answer from the result grid, shaped by
// the question's format hint or, absent one, its lexical cues.
func answerFromRows(q model.Question, exec *model.ExecutionResult) any {
	hint := normalizeHint(q.FormatHint)
	if hint == "" {
		hint = inferHint(q.Text, exec)
	}

	if len(exec.Rows) == 0 {
		if hint == "list" {
			return []any{}
		}
		return nil
	}

	switch hint {
	case "list":
		out := make([]any, 0, len(exec.Rows))
		for _, row := range exec.Rows {
			if len(row) > 0 {
				out = append(out, row[0])
			}
		}
		return out
	case "object":
		row := exec.Rows[0]
		obj := make(map[string]any, len(exec.Columns))
		for i, col := range exec.Columns {
			if i < len(row) {
				obj[col] = row[i]
			}
		}
		return obj
	case "int":
		return toInt(firstCell(exec))
	case "float":
		return toFloat(firstCell(exec))
	case "string":
		return fmt.Sprintf("%v", firstCell(exec))
	default:
		return firstCell(exec)
	}
}

func firstCell(exec *model.ExecutionResult) any {
	if len(exec.Rows) == 0 || len(exec.Rows[0]) == 0 {
		return nil
	}
	return exec.Rows[0][0]
}

func normalizeHint(hint string) string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "int", "integer":
		return "int"
	case "float", "number", "double":
		return "float"
	case "str", "string":
		return "string"
	case "list", "array":
		return "list"
	case "object", "dict", "map":
		return "object"
	default:
		return ""
	}
}

// inferHint maps lexical cues to an answer shape: "how many" counts, "which"
// names a thing, "top N" enumerates. Multi-row results without a cue come
// back as a list rather than silently dropping rows.
func inferHint(question string, exec *model.ExecutionResult) string {
	qf := folder.String(question)
	switch {
	case strings.Contains(qf, "how many") || strings.Contains(qf, "count of"):
		return "int"
	case strings.Contains(qf, "top ") || strings.Contains(qf, "list "):
		return "list"
	case strings.Contains(qf, "which ") || strings.Contains(qf, "who "):
		return "string"
	case strings.Contains(qf, "average") || strings.Contains(qf, "total ") || strings.Contains(qf, "revenue") || strings.Contains(qf, "margin"):
		return "float"
	case len(exec.Rows) > 1:
		return "list"
	default:
		return ""
	}
}

func coerceHint(hint, text string) any {
	switch normalizeHint(hint) {
	case "int":
		if m := intRe.FindString(text); m != "" {
			return toInt(m)
		}
		return text
	case "float":
		if m := intRe.FindString(text); m != "" {
			return toFloat(m)
		}
		return text
	default:
		return text
	}
}

func toInt(v any) any {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(math.Round(n))
	case string:
		var i int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &i); err == nil {
			return i
		}
	}
	return v
}

func toFloat(v any) any {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%f", &f); err == nil {
			return f
		}
	}
	return v
}
