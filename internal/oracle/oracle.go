// Package oracle exposes the language model as two narrow capabilities:
// route classification and question-to-SQL translation. Both may fail; the
// rest of the pipeline treats any failure as "no usable output" and falls
// back to heuristics and templates.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/analytics-copilot/internal/config"
	"github.com/sells-group/analytics-copilot/internal/model"
	"github.com/sells-group/analytics-copilot/internal/resilience"
	"github.com/sells-group/analytics-copilot/pkg/anthropic"
)

const classifySystem = `You route analytics questions. Reply with exactly one word:
rag    - answerable from policy/reference documents alone
sql    - answerable from the sales database alone
hybrid - needs document facts to parameterize a database query`

const translateSystem = `You translate analytics questions into a single SQLite SELECT statement.
Rules:
- Reply with SQL only, no prose and no markdown fences.
- Quote identifiers that contain spaces, e.g. "Order Details".
- OrderDate is stored as text; compare with date(OrderDate).
- Never write anything other than a SELECT.`

// Oracle wraps the Anthropic client with rate limiting, retry, per-call
// timeouts, and usage logging.
type Oracle struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
}

// New builds an oracle from configuration. Returns nil when the oracle is
// disabled or no API key is configured; callers treat a nil oracle as the
// capability being absent.
func New(cfg config.OracleConfig) *Oracle {
	if cfg.Disabled || cfg.Key == "" {
		return nil
	}
	return FromClient(anthropic.NewClient(cfg.Key), cfg)
}

// FromClient wires an oracle over an existing client. Used directly by tests.
func FromClient(client anthropic.Client, cfg config.OracleConfig) *Oracle {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2.0
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 500
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	retry := resilience.FromRetryConfig(cfg.RetryMaxAttempts, 0, 0, 0, -1)
	breaker := resilience.FromCircuitConfig(cfg.BreakerFailureThreshold, cfg.BreakerResetSecs)
	return &Oracle{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		retry:     retry,
		breaker:   resilience.NewCircuitBreaker(breaker),
	}
}

// Classify labels a question rag, sql, or hybrid. The returned label is not
// validated here; the router owns the fallback for unrecognized labels.
func (o *Oracle) Classify(ctx context.Context, question string) (string, error) {
	text, err := o.complete(ctx, "classify", classifySystem, question)
	if err != nil {
		return "", err
	}
	label := strings.ToLower(strings.TrimSpace(text))
	if i := strings.IndexAny(label, " \n"); i > 0 {
		label = label[:i]
	}
	return label, nil
}

// Translate drafts a SQL query for the question. The caller cleans and
// validates the draft; this method only shapes the prompt.
func (o *Oracle) Translate(ctx context.Context, question, schemaSummary string, constraints model.ConstraintSet) (string, error) {
	var b strings.Builder
	b.WriteString("Schema:\n")
	b.WriteString(schemaSummary)
	if facts := renderConstraints(constraints); facts != "" {
		b.WriteString("\nKnown facts:\n")
		b.WriteString(facts)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	return o.complete(ctx, "translate", translateSystem, b.String())
}

// complete runs one rate-limited, retried message call and logs token usage.
func (o *Oracle) complete(ctx context.Context, phase, system, user string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "oracle: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cfg := o.retry
	cfg.OnRetry = resilience.RetryLogger("anthropic", phase)

	resp, err := resilience.ExecuteVal(ctx, o.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return o.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     o.model,
				MaxTokens: o.maxTokens,
				System:    anthropic.BuildCachedSystemBlocks(system),
				Messages:  []anthropic.Message{{Role: "user", Content: user}},
			})
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "oracle: %s", phase)
	}

	resp.Usage.LogCost(o.model, phase)

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("oracle: %s returned empty response", phase)
	}
	return text, nil
}

// renderConstraints flattens the extracted facts into prompt lines.
func renderConstraints(set model.ConstraintSet) string {
	var lines []string
	for _, d := range set.DateRanges {
		lines = append(lines, fmt.Sprintf("- %s runs %s to %s", d.Name, d.Start, d.End))
	}
	for _, f := range set.Formulas {
		lines = append(lines, fmt.Sprintf("- %s = %s", f.Name, f.Expression))
	}
	for _, p := range set.Policies {
		subject := p.Subject
		if p.Condition != "" {
			subject += " (" + p.Condition + ")"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", subject, p.Value))
	}
	return strings.Join(lines, "\n")
}
