// Package executor runs generated SQL against the analytics engine and
// classifies the outcome. It never retries; retry policy belongs to the
// query generator.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/analytics-copilot/internal/model"
)

// Executor wraps one read-only engine connection with a per-call timeout.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

// New creates an executor. A non-positive timeout disables the bound.
func New(db *sql.DB, timeout time.Duration) *Executor {
	return &Executor{db: db, timeout: timeout}
}

// fromJoinRe captures identifiers after FROM and JOIN, quoted or bare.
var fromJoinRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+("(?:[^"]|"")+"|[A-Za-z_][\w]*)`)

// Tables returns the deduplicated table names referenced by the query, in
// first-mention order. Quoted identifiers are unwrapped.
func Tables(sqlText string) []string {
	seen := make(map[string]bool)
	var tables []string
	for _, m := range fromJoinRe.FindAllStringSubmatch(sqlText, -1) {
		name := m[1]
		if strings.HasPrefix(name, `"`) {
			name = strings.ReplaceAll(strings.Trim(name, `"`), `""`, `"`)
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		tables = append(tables, name)
	}
	return tables
}

// readOnly reports whether the statement is a plain SELECT (optionally a CTE).
func readOnly(sqlText string) bool {
	head := strings.ToUpper(strings.TrimSpace(sqlText))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}

// Execute runs one query and classifies the result. The returned
// ExecutionResult belongs to exactly this attempt; a retried draft produces a
// fresh result.
func (e *Executor) Execute(ctx context.Context, sqlText string) *model.ExecutionResult {
	res := &model.ExecutionResult{Tables: Tables(sqlText)}

	if !readOnly(sqlText) {
		res.Status = model.ExecSemanticError
		res.Err = "only SELECT statements are allowed"
		return res
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		e.classify(res, ctx, err)
		return res
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		e.classify(res, ctx, err)
		return res
	}
	res.Columns = cols

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			e.classify(res, ctx, err)
			return res
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		e.classify(res, ctx, err)
		return res
	}

	if len(res.Rows) == 0 {
		res.Status = model.ExecEmptyOk
	} else {
		res.Status = model.ExecOk
	}
	return res
}

var syntaxMarkers = []string{
	"syntax error",
	"unrecognized token",
	"incomplete input",
	"near \"",
}

// classify maps an engine error onto the syntax/semantic taxonomy. A timeout
// counts as semantic with an explicit marker so the repair loop does not keep
// re-running a slow query.
func (e *Executor) classify(res *model.ExecutionResult, ctx context.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Status = model.ExecSemanticError
		res.Err = "query timeout exceeded"
		return
	}

	msg := err.Error()
	res.Err = msg
	lower := strings.ToLower(msg)
	for _, marker := range syntaxMarkers {
		if strings.Contains(lower, marker) {
			res.Status = model.ExecSyntaxError
			zap.L().Debug("query syntax error", zap.String("error", msg))
			return
		}
	}
	res.Status = model.ExecSemanticError
	zap.L().Debug("query semantic error", zap.String("error", msg))
}
