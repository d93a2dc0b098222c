// Package pipeline wires routing, retrieval, constraint extraction, query
// generation, and synthesis into the per-question state machine, and runs
// batches of questions concurrently.
package pipeline

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/analytics-copilot/internal/model"
)

var folder = cases.Fold()

// Classifier is the oracle capability the router consults when keyword
// heuristics are inconclusive. It may fail; failure means "no usable label".
type Classifier interface {
	Classify(ctx context.Context, question string) (string, error)
}

// Router decides which branches a question takes. Heuristics run first and
// are never overridden by the oracle; the oracle is consulted once, without
// retries, only when the heuristics say nothing.
type Router struct {
	oracle Classifier // nil means oracle unavailable
}

func NewRouter(oracle Classifier) *Router {
	return &Router{oracle: oracle}
}

// Document-only vocabulary. Campaign references count as document signals
// because campaign dates live in the corpus, not the database.
var docTerms = []string{
	"policy", "policies", "definition", "defined", "formula", "according to",
	"return window", "document", "guideline", "calendar",
}

// Aggregate vocabulary that points at the database.
var sqlTerms = []string{
	"total", "average", "aov", "top ", "how many", "revenue", "margin",
	"quantity", "count", "sum of", "highest", "lowest", "most ",
}

var campaignRefRe = regexp.MustCompile(`'[^']+'|\bduring\b|\bcampaign\b`)

// Route classifies one question. Never fails; ambiguity resolves to HYBRID.
func (r *Router) Route(ctx context.Context, q model.Question) model.RouteDecision {
	qf := folder.String(q.Text)
	hasDoc := containsAny(qf, docTerms) || campaignRefRe.MatchString(qf)
	hasSQL := containsAny(qf, sqlTerms)

	switch {
	case hasDoc && hasSQL:
		return model.RouteDecision{Route: model.RouteHybrid, Rationale: "document and aggregate keywords present"}
	case hasDoc:
		return model.RouteDecision{Route: model.RouteRAG, Rationale: "document keywords only"}
	case hasSQL:
		return model.RouteDecision{Route: model.RouteSQL, Rationale: "aggregate keywords only"}
	}

	return r.askOracle(ctx, q)
}

// askOracle consults the classifier once. Any failure or unrecognized label
// falls back to HYBRID, the safest superset.
func (r *Router) askOracle(ctx context.Context, q model.Question) model.RouteDecision {
	if r.oracle == nil {
		return model.RouteDecision{Route: model.RouteHybrid, Rationale: "no keyword match; oracle unavailable"}
	}

	label, err := r.oracle.Classify(ctx, q.Text)
	if err != nil {
		zap.L().Debug("route classification failed",
			zap.String("question_id", q.ID),
			zap.Error(err),
		)
		return model.RouteDecision{Route: model.RouteHybrid, Rationale: "no keyword match; oracle classification failed"}
	}

	route := model.Route(strings.ToLower(strings.TrimSpace(label)))
	if !route.Valid() {
		return model.RouteDecision{Route: model.RouteHybrid, Rationale: "oracle returned unrecognized label", FromOracle: true}
	}
	return model.RouteDecision{Route: route, Rationale: "oracle classification", FromOracle: true}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
