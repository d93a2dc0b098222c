package sqlgen

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-copilot/internal/executor"
	"github.com/sells-group/analytics-copilot/internal/model"
	"github.com/sells-group/analytics-copilot/internal/schema"
)

// Translator is the oracle capability the generator falls back to when no
// template matches. Implementations may fail; any failure means "no usable
// draft", never a fatal error.
type Translator interface {
	Translate(ctx context.Context, question, schemaSummary string, constraints model.ConstraintSet) (string, error)
}

// Generator produces an executable query for a question and drives the
// bounded execute-validate-repair loop.
type Generator struct {
	exec        *executor.Executor
	cache       *schema.Cache
	oracle      Translator // nil means oracle unavailable
	maxAttempts int
	maxElapsed  time.Duration
}

// New creates a generator. maxAttempts bounds executions per question
// (default 3); maxElapsed, when positive, bounds the whole loop's wall clock.
func New(exec *executor.Executor, cache *schema.Cache, oracle Translator, maxAttempts int, maxElapsed time.Duration) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Generator{
		exec:        exec,
		cache:       cache,
		oracle:      oracle,
		maxAttempts: maxAttempts,
		maxElapsed:  maxElapsed,
	}
}

// Result is the outcome of query generation for one question. Exec carries
// the final attempt's classification even when all attempts failed; failure
// is surfaced, not hidden.
type Result struct {
	Draft       model.QueryDraft
	Exec        *model.ExecutionResult
	Attempts    int
	Template    string // template name when a template drafted
	OracleDraft bool
}

// Generate drafts, executes, and repairs a query for the question. An error
// is returned only when the schema itself cannot be loaded; every other
// failure mode is encoded in the Result.
func (g *Generator) Generate(ctx context.Context, q model.Question, constraints model.ConstraintSet) (*Result, error) {
	info, err := g.cache.Info(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "sqlgen: load schema")
	}

	if g.maxElapsed > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.maxElapsed)
		defer cancel()
	}

	log := zap.L().With(zap.String("question_id", q.ID))

	res := &Result{}
	name, sqlText, ok := MatchTemplate(BuildInput{Question: q.Text, Schema: info, Constraints: constraints})
	if ok {
		res.Template = name
		res.Draft = model.QueryDraft{SQL: sqlText, Origin: model.OriginTemplate, Template: name, Attempt: 1}
		log.Debug("template matched", zap.String("template", name))
	} else {
		draft, oracleErr := g.oracleDraft(ctx, q, info, constraints)
		if oracleErr != nil {
			// Unanswerable by SQL: surface as a terminal semantic failure.
			res.Exec = &model.ExecutionResult{
				Status: model.ExecSemanticError,
				Err:    oracleErr.Error(),
			}
			return res, nil
		}
		res.OracleDraft = true
		res.Draft = draft
		log.Debug("oracle drafted query")
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		res.Attempts = attempt
		res.Draft.Attempt = attempt
		res.Exec = g.exec.Execute(ctx, res.Draft.SQL)

		if res.Exec.OK() {
			return res, nil
		}

		if attempt == g.maxAttempts {
			break
		}

		fixed, changed := Repair(res.Draft.SQL, res.Exec.Status, info)
		if !changed {
			// No rule covers this error class; stop rather than loop.
			break
		}
		log.Debug("repairing draft",
			zap.Int("attempt", attempt),
			zap.String("status", string(res.Exec.Status)),
		)
		res.Draft = model.QueryDraft{SQL: fixed, Origin: model.OriginRepaired, Template: res.Draft.Template}
	}

	log.Debug("query generation exhausted",
		zap.Int("attempts", res.Attempts),
		zap.String("status", string(res.Exec.Status)),
	)
	return res, nil
}

func (g *Generator) oracleDraft(ctx context.Context, q model.Question, info *schema.Info, constraints model.ConstraintSet) (model.QueryDraft, error) {
	if g.oracle == nil {
		return model.QueryDraft{}, eris.New("no template matched and oracle unavailable")
	}
	raw, err := g.oracle.Translate(ctx, q.Text, info.Summary(), constraints)
	if err != nil {
		return model.QueryDraft{}, eris.Wrap(err, "no template matched and oracle translation failed")
	}
	cleaned := Clean(raw)
	if cleaned == "" {
		return model.QueryDraft{}, eris.New("no template matched and oracle draft contained no SELECT")
	}
	return model.QueryDraft{SQL: cleaned, Origin: model.OriginOracle, Attempt: 1}, nil
}
