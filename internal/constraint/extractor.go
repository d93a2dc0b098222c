// Package constraint parses structured facts out of retrieved passages:
// named campaign date ranges, KPI formulas, and policy rules. Extraction is
// best-effort; passages that match nothing are dropped silently.
package constraint

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/analytics-copilot/internal/model"
)

var (
	headingRe   = regexp.MustCompile(`(?m)^#{1,3}\s*(.+?)\s*$`)
	dateRangeRe = regexp.MustCompile(`(?i)(\d{4}-\d{2}-\d{2})\s*(?:to|through|–|—)\s*(\d{4}-\d{2}-\d{2})`)
	formulaRe   = regexp.MustCompile(`(?m)^([A-Z][\w ()/]{0,40}?)\s*=\s*(.+?)\s*$`)
	// "Beverages unopened: 30 days" and "Confections: 14 days, unopened only."
	condRuleRe = regexp.MustCompile(`(?m)^([A-Z][\w/ ]*?)\s+(unopened|opened|refrigerated chain intact)\s*:\s*([^.\n]+)`)
	bareRuleRe = regexp.MustCompile(`(?m)^([A-Z][\w/ ]*?)\s*:\s*(\d[^.\n]*)`)

	folder = cases.Fold()
)

// Extract parses the retrieved passages into a typed constraint set. Every
// constraint keeps the SourceID of the passage it came from so downstream
// citations stay tied to passages that were actually retrieved.
func Extract(passages []model.Passage) model.ConstraintSet {
	var set model.ConstraintSet

	for _, p := range passages {
		extractDateRanges(p, &set)
		extractFormulas(p, &set)
		extractPolicies(p, &set)
	}

	if !set.Empty() {
		zap.L().Debug("constraints extracted",
			zap.Int("date_ranges", len(set.DateRanges)),
			zap.Int("formulas", len(set.Formulas)),
			zap.Int("policies", len(set.Policies)),
		)
	}
	return set
}

func extractDateRanges(p model.Passage, set *model.ConstraintSet) {
	matches := dateRangeRe.FindAllStringSubmatch(p.Content, -1)
	if len(matches) == 0 {
		return
	}

	name := ""
	if h := headingRe.FindStringSubmatch(p.Content); h != nil {
		name = h[1]
	}

	for _, m := range matches {
		set.DateRanges = append(set.DateRanges, model.DateRange{
			Name:     name,
			Start:    m[1],
			End:      m[2],
			SourceID: p.SourceID,
		})
	}
}

func extractFormulas(p model.Passage, set *model.ConstraintSet) {
	for _, m := range formulaRe.FindAllStringSubmatch(p.Content, -1) {
		name := strings.TrimSpace(m[1])
		expr := strings.TrimSpace(m[2])
		// An expression without an aggregate or operator is prose, not a formula.
		if !strings.ContainsAny(expr, "(*/+-") {
			continue
		}
		set.Formulas = append(set.Formulas, model.KPIFormula{
			Name:       name,
			Expression: expr,
			SourceID:   p.SourceID,
		})
	}
}

func extractPolicies(p model.Passage, set *model.ConstraintSet) {
	seen := make(map[string]bool)
	for _, m := range condRuleRe.FindAllStringSubmatch(p.Content, -1) {
		subject := strings.TrimSpace(m[1])
		seen[subject+"|"+m[2]] = true
		set.Policies = append(set.Policies, model.PolicyRule{
			Subject:   subject,
			Condition: strings.TrimSpace(m[2]),
			Value:     strings.TrimSpace(m[3]),
			SourceID:  p.SourceID,
		})
	}
	for _, m := range bareRuleRe.FindAllStringSubmatch(p.Content, -1) {
		subject := strings.TrimSpace(m[1])
		if seen[subject+"|"] || strings.Contains(subject, "Dates") {
			continue
		}
		set.Policies = append(set.Policies, model.PolicyRule{
			Subject:  subject,
			Value:    strings.TrimSpace(m[2]),
			SourceID: p.SourceID,
		})
	}
}

// MatchDateRange picks the extracted date range whose campaign name best
// matches the question: the first range all of whose name tokens appear in
// the question. Falls back to the first extracted range so questions that
// reference a single campaign implicitly still get its dates.
func MatchDateRange(set model.ConstraintSet, question string) *model.DateRange {
	if len(set.DateRanges) == 0 {
		return nil
	}
	q := folder.String(question)
	for i := range set.DateRanges {
		d := &set.DateRanges[i]
		if d.Name == "" {
			continue
		}
		tokens := strings.Fields(folder.String(d.Name))
		all := true
		for _, tok := range tokens {
			if !strings.Contains(q, tok) {
				all = false
				break
			}
		}
		if all && len(tokens) > 0 {
			return d
		}
	}
	return &set.DateRanges[0]
}
