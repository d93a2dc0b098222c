// Package sqlgen produces executable SQL for a question, preferring a closed
// list of deterministic templates over the language-model oracle, and owns
// the execute-validate-repair loop.
package sqlgen

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/analytics-copilot/internal/constraint"
	"github.com/sells-group/analytics-copilot/internal/model"
	"github.com/sells-group/analytics-copilot/internal/schema"
)

var folder = cases.Fold()

// BuildInput carries everything a template may parameterize on.
type BuildInput struct {
	Question    string
	Schema      *schema.Info
	Constraints model.ConstraintSet
}

// Template is one parametrized query pattern. Match must be deterministic;
// Build returns false when the template triggers but cannot be instantiated
// (missing schema tables, missing constraint values).
type Template struct {
	Name  string
	Match func(question string) bool
	Build func(in BuildInput) (string, bool)
}

// Templates is the closed template list, checked in priority order. A
// question matching two patterns always resolves to the earlier entry; the
// ordering is part of the contract and covered by tests.
var Templates = []Template{
	{
		Name:  "top_n_products_by_revenue",
		Match: func(q string) bool { return hasAll(q, "top", "product", "revenue") },
		Build: buildTopNProductsByRevenue,
	},
	{
		Name:  "category_quantity_in_range",
		Match: func(q string) bool { return hasAll(q, "category", "quantity") },
		Build: buildCategoryQuantityInRange,
	},
	{
		Name:  "average_order_value",
		Match: func(q string) bool { return has(q, "aov") || has(q, "average order value") },
		Build: buildAverageOrderValue,
	},
	{
		Name:  "category_revenue_filter",
		Match: func(q string) bool { return has(q, "revenue") && matchCategory(q) != "" },
		Build: buildCategoryRevenueFilter,
	},
	{
		Name:  "customer_gross_margin",
		Match: func(q string) bool { return has(q, "customer") && has(q, "margin") },
		Build: buildCustomerGrossMargin,
	},
}

// MatchTemplate returns the first template whose trigger matches, alongside
// its instantiated SQL. ok is false when no template matched or the winning
// template could not be instantiated.
func MatchTemplate(in BuildInput) (name, sql string, ok bool) {
	for _, t := range Templates {
		if !t.Match(in.Question) {
			continue
		}
		built, buildOK := t.Build(in)
		if !buildOK {
			return t.Name, "", false
		}
		return t.Name, built, true
	}
	return "", "", false
}

func has(q, sub string) bool {
	return strings.Contains(folder.String(q), sub)
}

func hasAll(q string, subs ...string) bool {
	f := folder.String(q)
	for _, s := range subs {
		if !strings.Contains(f, s) {
			return false
		}
	}
	return true
}

var (
	topNRe = regexp.MustCompile(`(?i)\btop\s+(\d+)`)
	yearRe = regexp.MustCompile(`\b(20\d{2})\b`)
)

// categories the catalog documents; used only to bind a question to a
// category filter, never to validate data.
var knownCategories = []string{
	"Beverages", "Condiments", "Confections", "Dairy Products",
	"Grains/Cereals", "Meat/Poultry", "Produce", "Seafood",
}

// matchCategory finds the first known category mentioned in the question,
// tolerating singular forms ("beverage" matches "Beverages").
func matchCategory(question string) string {
	q := folder.String(question)
	for _, cat := range knownCategories {
		c := folder.String(cat)
		if strings.Contains(q, c) || strings.Contains(q, strings.TrimSuffix(c, "s")) {
			return cat
		}
	}
	return ""
}

func extractTopN(question string) int {
	if m := topNRe.FindStringSubmatch(question); m != nil {
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n > 0 {
			return n
		}
	}
	return 3
}

// orderTables checks the join spine every sales template relies on.
func orderTables(info *schema.Info, names ...string) bool {
	for _, n := range names {
		if !info.HasTable(n) {
			return false
		}
	}
	return true
}

func dateFilter(set model.ConstraintSet, question string) (clause string, ok bool) {
	d := constraint.MatchDateRange(set, question)
	if d == nil {
		return "", false
	}
	return fmt.Sprintf(`date(o.OrderDate) BETWEEN '%s' AND '%s'`, d.Start, d.End), true
}

func buildTopNProductsByRevenue(in BuildInput) (string, bool) {
	if !orderTables(in.Schema, "Order Details", "Products") {
		return "", false
	}
	n := extractTopN(in.Question)
	sql := fmt.Sprintf(`SELECT p.ProductName, ROUND(SUM(od.UnitPrice * od.Quantity * (1 - od.Discount)), 2) AS Revenue
FROM %s od
JOIN Products p ON od.ProductID = p.ProductID
GROUP BY p.ProductName
ORDER BY Revenue DESC
LIMIT %d`, schema.QuoteIdent("Order Details"), n)
	return sql, true
}

func buildCategoryQuantityInRange(in BuildInput) (string, bool) {
	if !orderTables(in.Schema, "Order Details", "Products", "Categories", "Orders") {
		return "", false
	}
	where, ok := dateFilter(in.Constraints, in.Question)
	if !ok {
		return "", false
	}
	sql := fmt.Sprintf(`SELECT c.CategoryName, SUM(od.Quantity) AS TotalQuantity
FROM %s od
JOIN Products p ON od.ProductID = p.ProductID
JOIN Categories c ON p.CategoryID = c.CategoryID
JOIN Orders o ON od.OrderID = o.OrderID
WHERE %s
GROUP BY c.CategoryName
ORDER BY TotalQuantity DESC
LIMIT 1`, schema.QuoteIdent("Order Details"), where)
	return sql, true
}

func buildAverageOrderValue(in BuildInput) (string, bool) {
	if !orderTables(in.Schema, "Order Details", "Orders") {
		return "", false
	}
	where := ""
	if clause, ok := dateFilter(in.Constraints, in.Question); ok {
		where = "\nWHERE " + clause
	}
	sql := fmt.Sprintf(`SELECT ROUND(SUM(od.UnitPrice * od.Quantity * (1 - od.Discount)) / COUNT(DISTINCT o.OrderID), 2) AS AOV
FROM %s od
JOIN Orders o ON od.OrderID = o.OrderID%s`, schema.QuoteIdent("Order Details"), where)
	return sql, true
}

func buildCategoryRevenueFilter(in BuildInput) (string, bool) {
	if !orderTables(in.Schema, "Order Details", "Products", "Categories", "Orders") {
		return "", false
	}
	cat := matchCategory(in.Question)
	if cat == "" {
		return "", false
	}
	conds := []string{fmt.Sprintf(`c.CategoryName = '%s'`, strings.ReplaceAll(cat, "'", "''"))}
	if clause, ok := dateFilter(in.Constraints, in.Question); ok {
		conds = append(conds, clause)
	}
	sql := fmt.Sprintf(`SELECT ROUND(SUM(od.UnitPrice * od.Quantity * (1 - od.Discount)), 2) AS Revenue
FROM %s od
JOIN Products p ON od.ProductID = p.ProductID
JOIN Categories c ON p.CategoryID = c.CategoryID
JOIN Orders o ON od.OrderID = o.OrderID
WHERE %s`, schema.QuoteIdent("Order Details"), strings.Join(conds, "\n  AND "))
	return sql, true
}

func buildCustomerGrossMargin(in BuildInput) (string, bool) {
	if !orderTables(in.Schema, "Order Details", "Orders", "Customers") {
		return "", false
	}
	where := ""
	if m := yearRe.FindStringSubmatch(in.Question); m != nil {
		where = fmt.Sprintf("\nWHERE strftime('%%Y', o.OrderDate) = '%s'", m[1])
	}
	sql := fmt.Sprintf(`SELECT c.CompanyName, ROUND(SUM((od.UnitPrice * 0.3) * od.Quantity * (1 - od.Discount)), 2) AS GrossMargin
FROM %s od
JOIN Orders o ON od.OrderID = o.OrderID
JOIN Customers c ON o.CustomerID = c.CustomerID%s
GROUP BY c.CompanyName
ORDER BY GrossMargin DESC
LIMIT 1`, schema.QuoteIdent("Order Details"), where)
	return sql, true
}
