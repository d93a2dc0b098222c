package synthesize

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-copilot/internal/model"
)

func TestConfidence_AllFlagCombinationsStayInRange(t *testing.T) {
	bools := []bool{false, true}
	for _, oracleDraft := range bools {
		for _, empty := range bools {
			for _, oracleRouted := range bools {
				for _, retrievalEmpty := range bools {
					for _, failed := range bools {
						for repairs := 0; repairs <= 5; repairs++ {
							f := model.SynthesisFlags{
								OracleDraft:    oracleDraft,
								RepairAttempts: repairs,
								EmptyResult:    empty,
								OracleRouted:   oracleRouted,
								RetrievalEmpty: retrievalEmpty,
								ExecFailed:     failed,
							}
							c := Confidence(f)
							assert.GreaterOrEqual(t, c, 0.0, "flags %+v", f)
							assert.LessOrEqual(t, c, 1.0, "flags %+v", f)
						}
					}
				}
			}
		}
	}
}

func TestConfidence_KnownDeductions(t *testing.T) {
	tests := []struct {
		name  string
		flags model.SynthesisFlags
		want  float64
	}{
		{"clean template run", model.SynthesisFlags{Template: "average_order_value"}, 0.9},
		{"oracle draft one repair", model.SynthesisFlags{OracleDraft: true, RepairAttempts: 1}, 0.7},
		{"empty result", model.SynthesisFlags{Template: "category_revenue_filter", EmptyResult: true}, 0.6},
		{"oracle routed", model.SynthesisFlags{Template: "average_order_value", OracleRouted: true}, 0.85},
		{"execution failed", model.SynthesisFlags{OracleDraft: true, ExecFailed: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.flags), 1e-9)
		})
	}
}

func TestSynthesize_PolicyQuestionFromDocuments(t *testing.T) {
	rec := Synthesize(Input{
		Question: model.Question{ID: "q1", Text: "According to the product policy, what is the return window for unopened Beverages?"},
		Route:    model.RouteDecision{Route: model.RouteRAG},
		Passages: []model.Passage{
			{SourceID: "product_policy::chunk1", Source: "product_policy", Content: "Beverages unopened: 30 days."},
		},
		Constraints: model.ConstraintSet{Policies: []model.PolicyRule{
			{Subject: "Beverages", Condition: "unopened", Value: "30 days", SourceID: "product_policy::chunk1"},
		}},
	})

	assert.Equal(t, "30 days", rec.FinalAnswer)
	assert.Nil(t, rec.SQL)
	require.Len(t, rec.Citations, 1)
	assert.Equal(t, model.Citation{SourceID: "product_policy::chunk1", Kind: model.CiteDocument}, rec.Citations[0])
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
	assert.Contains(t, rec.Explanation, "document corpus")
}

func TestSynthesize_PolicyIntHint(t *testing.T) {
	rec := Synthesize(Input{
		Question: model.Question{ID: "q2", Text: "How many days is the unopened Beverages return window?", FormatHint: "int"},
		Route:    model.RouteDecision{Route: model.RouteRAG},
		Constraints: model.ConstraintSet{Policies: []model.PolicyRule{
			{Subject: "Beverages", Condition: "unopened", Value: "30 days", SourceID: "product_policy::chunk1"},
		}},
		Passages: []model.Passage{{SourceID: "product_policy::chunk1", Content: "Beverages unopened: 30 days."}},
	})
	assert.Equal(t, 30, rec.FinalAnswer)
}

func TestSynthesize_TopNListFromRows(t *testing.T) {
	sqlText := `SELECT p.ProductName FROM "Order Details" od JOIN Products p ON p.ProductID = od.ProductID`
	rec := Synthesize(Input{
		Question: model.Question{ID: "q3", Text: "What are the top 3 products by total revenue all-time?"},
		Route:    model.RouteDecision{Route: model.RouteSQL},
		Query: &QueryOutcome{
			Draft:    model.QueryDraft{SQL: sqlText, Origin: model.OriginTemplate, Template: "top_n_products_by_revenue"},
			Template: "top_n_products_by_revenue",
			Attempts: 1,
			Exec: &model.ExecutionResult{
				Status:  model.ExecOk,
				Columns: []string{"ProductName", "Revenue"},
				Rows: [][]any{
					{"Chang", 342.0},
					{"Chai", 306.0},
					{"Aniseed Syrup", 50.0},
				},
				Tables: []string{"Order Details", "Products"},
			},
		},
	})

	assert.Equal(t, []any{"Chang", "Chai", "Aniseed Syrup"}, rec.FinalAnswer)
	require.NotNil(t, rec.SQL)
	assert.Equal(t, sqlText, *rec.SQL)
	assert.GreaterOrEqual(t, rec.Confidence, 0.7)
	assert.ElementsMatch(t, []model.Citation{
		{SourceID: "Order Details", Kind: model.CiteTable},
		{SourceID: "Products", Kind: model.CiteTable},
	}, rec.Citations)
	assert.Contains(t, rec.Explanation, "top_n_products_by_revenue")
}

func TestSynthesize_HybridCitesDocumentsAndTables(t *testing.T) {
	rec := Synthesize(Input{
		Question: model.Question{ID: "q4", Text: "During 'Summer Beverages 2017', which category had the highest quantity sold?"},
		Route:    model.RouteDecision{Route: model.RouteHybrid},
		Passages: []model.Passage{{SourceID: "marketing_calendar::chunk2", Content: "## Summer Beverages 2017\nDates: 2017-06-01 to 2017-06-30"}},
		Constraints: model.ConstraintSet{DateRanges: []model.DateRange{
			{Name: "Summer Beverages 2017", Start: "2017-06-01", End: "2017-06-30", SourceID: "marketing_calendar::chunk2"},
		}},
		Query: &QueryOutcome{
			Draft:    model.QueryDraft{SQL: "SELECT c.CategoryName FROM Categories c", Origin: model.OriginTemplate, Template: "category_quantity_in_range"},
			Template: "category_quantity_in_range",
			Attempts: 1,
			Exec: &model.ExecutionResult{
				Status:  model.ExecOk,
				Columns: []string{"CategoryName", "TotalQuantity"},
				Rows:    [][]any{{"Beverages", int64(30)}},
				Tables:  []string{"Categories", "Products", "Order Details", "Orders"},
			},
		},
	})

	assert.Equal(t, "Beverages", rec.FinalAnswer)
	kinds := map[model.CitationKind]int{}
	for _, c := range rec.Citations {
		kinds[c.Kind]++
	}
	assert.Equal(t, 1, kinds[model.CiteDocument])
	assert.Equal(t, 4, kinds[model.CiteTable])
}

func TestSynthesize_EmptyResultLowersConfidence(t *testing.T) {
	rec := Synthesize(Input{
		Question: model.Question{ID: "q5", Text: "What was the total Beverages revenue during Winter Classics 2019?"},
		Route:    model.RouteDecision{Route: model.RouteSQL},
		Query: &QueryOutcome{
			Draft:    model.QueryDraft{SQL: "SELECT 1 WHERE 0", Origin: model.OriginTemplate, Template: "category_revenue_filter"},
			Template: "category_revenue_filter",
			Attempts: 1,
			Exec:     &model.ExecutionResult{Status: model.ExecEmptyOk, Columns: []string{"Revenue"}},
		},
	})

	assert.Nil(t, rec.FinalAnswer)
	assert.InDelta(t, 0.6, rec.Confidence, 1e-9)
	assert.Contains(t, rec.Explanation, "no rows")
}

func TestSynthesize_ExecutionFailureIsUnanswerable(t *testing.T) {
	rec := Synthesize(Input{
		Question: model.Question{ID: "q6", Text: "How many units were sold overall?"},
		Route:    model.RouteDecision{Route: model.RouteSQL},
		Query: &QueryOutcome{
			Draft:       model.QueryDraft{SQL: "SELECT Nope FROM Products", Origin: model.OriginOracle},
			OracleDraft: true,
			Attempts:    3,
			Exec:        &model.ExecutionResult{Status: model.ExecSemanticError, Err: "no such column: Nope"},
		},
	})

	assert.Nil(t, rec.FinalAnswer)
	assert.Zero(t, rec.Confidence)
	assert.Contains(t, rec.Explanation, "no such column: Nope")
}

func TestSynthesize_RepairAttemptVisibleInConfidence(t *testing.T) {
	base := Input{
		Question: model.Question{ID: "q7", Text: "How many units were sold overall?", FormatHint: "int"},
		Route:    model.RouteDecision{Route: model.RouteSQL},
		Query: &QueryOutcome{
			Draft:       model.QueryDraft{SQL: `SELECT SUM(Quantity) FROM "Order Details"`, Origin: model.OriginRepaired},
			OracleDraft: true,
			Attempts:    2,
			Exec: &model.ExecutionResult{
				Status:  model.ExecOk,
				Columns: []string{"SUM(Quantity)"},
				Rows:    [][]any{{int64(42)}},
				Tables:  []string{"Order Details"},
			},
		},
	}
	rec := Synthesize(base)

	assert.Equal(t, 42, rec.FinalAnswer)
	// 0.9 base, -0.1 oracle draft, -0.1 one repair.
	assert.InDelta(t, 0.7, rec.Confidence, 1e-9)
	assert.Contains(t, rec.Explanation, "after 1 repair")
}

func TestSynthesize_DeterministicForSameInput(t *testing.T) {
	in := Input{
		Question: model.Question{ID: "q8", Text: "Which customer had the highest gross margin in 2017?"},
		Route:    model.RouteDecision{Route: model.RouteSQL, FromOracle: true},
		Query: &QueryOutcome{
			Draft:    model.QueryDraft{SQL: "SELECT CompanyName FROM Customers", Origin: model.OriginTemplate, Template: "customer_gross_margin"},
			Template: "customer_gross_margin",
			Attempts: 1,
			Exec: &model.ExecutionResult{
				Status:  model.ExecOk,
				Columns: []string{"CompanyName", "Margin"},
				Rows:    [][]any{{"Bon app", 120.5}},
				Tables:  []string{"Customers", "Orders", "Order Details"},
			},
		},
	}

	a := Synthesize(in)
	b := Synthesize(in)
	assert.Equal(t, fmt.Sprintf("%+v", a), fmt.Sprintf("%+v", b))
	assert.Equal(t, "Bon app", a.FinalAnswer)
	assert.InDelta(t, 0.85, a.Confidence, 1e-9)
}
