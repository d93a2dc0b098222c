package sqlgen

import (
	"regexp"
	"strings"

	"github.com/sells-group/analytics-copilot/internal/model"
	"github.com/sells-group/analytics-copilot/internal/schema"
)

var (
	fenceRe     = regexp.MustCompile("```(?:sql)?\n?")
	commentRe   = regexp.MustCompile(`--[^\n]*`)
	selectRe    = regexp.MustCompile(`(?is)\b(SELECT|WITH)\b`)
	yearFnRe    = regexp.MustCompile(`(?i)YEAR\(([^)]+)\)\s*=\s*'?(\d{4})'?`)
	bareDateRe  = regexp.MustCompile(`(?i)\b(?:(\w+)\.)?(\w*Date)\s+(BETWEEN|>=|<=|>|<|=)`)
	wrappedRe   = regexp.MustCompile(`(?i)date\(\s*(?:\w+\.)?\w*Date\s*\)`)
	betweenTypo = regexp.MustCompile(`(?i)\bBETWE?W?H?E?N\b`)
)

// Clean normalizes an oracle draft before its first execution: strips
// markdown fences and comments, cuts any preamble before the first SELECT,
// and drops a trailing semicolon. Returns "" when no SELECT survives, which
// the generator treats as a structurally unusable draft.
func Clean(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	s = commentRe.ReplaceAllString(s, "")
	loc := selectRe.FindStringIndex(s)
	if loc == nil {
		return ""
	}
	s = s[loc[0]:]
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";"))
	return s
}

// Repair applies the deterministic rewrite rules to a failing draft. Returns
// the repaired SQL and whether any rule changed it; an unchanged draft means
// the observed error class is not repairable and the loop must stop.
func Repair(sqlText string, status model.ExecStatus, info *schema.Info) (string, bool) {
	fixed := sqlText

	// Unquoted spaced identifiers surface as either error class depending on
	// where the parser trips, so quoting applies to both.
	fixed = quoteSpacedTables(fixed, info)

	switch status {
	case model.ExecSyntaxError:
		fixed = betweenTypo.ReplaceAllString(fixed, "BETWEEN")
	case model.ExecSemanticError:
		// YEAR() is not a SQLite function.
		fixed = yearFnRe.ReplaceAllString(fixed, `strftime('%Y', $1) = '$2'`)
		// Date comparisons against text columns need normalization when the
		// engine stores datetimes.
		if info == nil || info.DateFormat == schema.DateTime {
			fixed = wrapDateComparisons(fixed)
		}
	}

	return fixed, fixed != sqlText
}

// quoteSpacedTables quotes every schema table whose name contains a space
// wherever it appears unquoted in the draft.
func quoteSpacedTables(sqlText string, info *schema.Info) string {
	if info == nil {
		// Without a schema the one structurally known offender is still the
		// line-items table.
		re := regexp.MustCompile(`(?i)(^|[^"\w])Order\s+Details([^"\w]|$)`)
		return re.ReplaceAllString(sqlText, `$1"Order Details"$2`)
	}
	out := sqlText
	for _, t := range info.TableOrder {
		if !strings.Contains(t, " ") {
			continue
		}
		re := regexp.MustCompile(`(?i)(^|[^"\w])` + strings.ReplaceAll(regexp.QuoteMeta(t), ` `, `\s+`) + `([^"\w]|$)`)
		out = re.ReplaceAllString(out, `$1`+schema.QuoteIdent(t)+`$2`)
	}
	return out
}

// wrapDateComparisons wraps bare *Date column comparisons in date(), leaving
// already-wrapped ones alone.
func wrapDateComparisons(sqlText string) string {
	return bareDateRe.ReplaceAllStringFunc(sqlText, func(m string) string {
		sub := bareDateRe.FindStringSubmatch(m)
		col := sub[2]
		if sub[1] != "" {
			col = sub[1] + "." + sub[2]
		}
		// Skip when this occurrence is already inside date(...).
		if wrappedRe.MatchString(m) {
			return m
		}
		return "date(" + col + ") " + sub[3]
	})
}
