package pipeline

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/analytics-copilot/internal/constraint"
	"github.com/sells-group/analytics-copilot/internal/model"
	"github.com/sells-group/analytics-copilot/internal/sqlgen"
	"github.com/sells-group/analytics-copilot/internal/synthesize"
)

// Retriever is the passage retrieval contract: deterministic for a fixed
// index state, finite, ranked.
type Retriever interface {
	Retrieve(query string, k int) []model.Passage
}

// Orchestrator runs one question through route, branch, and synthesis.
// Single pass: no branch is revisited once finished, and every failure is
// folded into the question's AnswerRecord rather than propagated.
type Orchestrator struct {
	router    *Router
	retriever Retriever
	generator *sqlgen.Generator
	topK      int
}

// New creates an orchestrator. retriever may be nil when no corpus is
// configured; document routes then synthesize with empty passages.
func New(router *Router, retriever Retriever, generator *sqlgen.Generator, topK int) *Orchestrator {
	if topK <= 0 {
		topK = 5
	}
	return &Orchestrator{
		router:    router,
		retriever: retriever,
		generator: generator,
		topK:      topK,
	}
}

// Answer runs the full state machine for one question and always returns a
// terminal AnswerRecord. Per-question failures surface as confidence 0 with
// an explanatory record, never as an error to the caller.
func (o *Orchestrator) Answer(ctx context.Context, q model.Question) model.AnswerRecord {
	decision := o.router.Route(ctx, q)
	log := zap.L().With(zap.String("question_id", q.ID))
	log.Info("question routed",
		zap.String("route", string(decision.Route)),
		zap.String("rationale", decision.Rationale),
	)

	var passages []model.Passage
	var constraints model.ConstraintSet
	if decision.Route.NeedsRetrieval() && o.retriever != nil {
		passages = o.retriever.Retrieve(retrievalQuery(q.Text), o.topK)
		constraints = constraint.Extract(passages)
		log.Debug("passages retrieved", zap.Int("count", len(passages)))
	}

	var outcome *synthesize.QueryOutcome
	if decision.Route.NeedsSQL() {
		res, err := o.generator.Generate(ctx, q, constraints)
		if err != nil {
			// Schema introspection failed; this question cannot touch the
			// database at all.
			log.Error("query generation failed", zap.Error(err))
			outcome = &synthesize.QueryOutcome{
				Exec: &model.ExecutionResult{Status: model.ExecSemanticError, Err: err.Error()},
			}
		} else {
			outcome = &synthesize.QueryOutcome{
				Draft:       res.Draft,
				Exec:        res.Exec,
				Attempts:    res.Attempts,
				Template:    res.Template,
				OracleDraft: res.OracleDraft,
			}
		}
	}

	return synthesize.Synthesize(synthesize.Input{
		Question:    q,
		Route:       decision,
		Passages:    passages,
		Constraints: constraints,
		Query:       outcome,
	})
}

var quotedNameRe = regexp.MustCompile(`'([^']+)'`)

// retrievalQuery rewrites the question into a retrieval query. A quoted
// campaign name retrieves better as "<name> dates" than as the full question,
// whose aggregate vocabulary drags in unrelated chunks.
func retrievalQuery(question string) string {
	if m := quotedNameRe.FindStringSubmatch(question); m != nil {
		return strings.TrimSpace(m[1]) + " dates"
	}
	return question
}

// Batch answers every question with at most concurrency in flight. Output
// order matches input order; a cancelled context stops unstarted questions
// but already-produced records are kept intact.
func (o *Orchestrator) Batch(ctx context.Context, questions []model.Question, concurrency int) []model.AnswerRecord {
	if concurrency <= 0 {
		concurrency = 4
	}

	records := make([]model.AnswerRecord, len(questions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, q := range questions {
		i, q := i, q
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				records[i] = model.AnswerRecord{
					ID:          q.ID,
					Explanation: "Cancelled before processing.",
				}
				return nil
			}
			records[i] = o.Answer(ctx, q)
			return nil
		})
	}

	// Workers never return errors; per-question failures live in the records.
	_ = g.Wait()
	return records
}
