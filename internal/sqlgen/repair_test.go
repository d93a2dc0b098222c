package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-copilot/internal/model"
)

func TestClean_StripsFencesAndPreamble(t *testing.T) {
	raw := "Here is the query:\n```sql\nSELECT 1; -- done\n```"
	assert.Equal(t, "SELECT 1", Clean(raw))
}

func TestClean_NoSelectIsUnusable(t *testing.T) {
	assert.Empty(t, Clean("I cannot answer that question."))
	assert.Empty(t, Clean(""))
}

func TestClean_KeepsCTE(t *testing.T) {
	raw := "WITH t AS (SELECT 1) SELECT * FROM t;"
	assert.Equal(t, "WITH t AS (SELECT 1) SELECT * FROM t", Clean(raw))
}

func TestRepair_QuotesSpacedTable(t *testing.T) {
	info := loadSchema(t, newNorthwindDB(t))

	fixed, changed := Repair(`SELECT SUM(Quantity) FROM Order Details`, model.ExecSyntaxError, info)
	require.True(t, changed)
	assert.Equal(t, `SELECT SUM(Quantity) FROM "Order Details"`, fixed)

	// Already-quoted occurrences are left alone.
	_, changed = Repair(`SELECT SUM(Quantity) FROM "Order Details"`, model.ExecSyntaxError, info)
	assert.False(t, changed)
}

func TestRepair_BetweenTypo(t *testing.T) {
	info := loadSchema(t, newNorthwindDB(t))

	fixed, changed := Repair(`SELECT * FROM Orders WHERE date(OrderDate) BETWEN '2017-06-01' AND '2017-06-30'`, model.ExecSyntaxError, info)
	require.True(t, changed)
	assert.Contains(t, fixed, "BETWEEN '2017-06-01'")
}

func TestRepair_YearFunction(t *testing.T) {
	info := loadSchema(t, newNorthwindDB(t))

	fixed, changed := Repair(`SELECT * FROM Orders WHERE YEAR(OrderDate) = 2017`, model.ExecSemanticError, info)
	require.True(t, changed)
	assert.Contains(t, fixed, `strftime('%Y', OrderDate) = '2017'`)
}

func TestRepair_WrapsDateComparison(t *testing.T) {
	info := loadSchema(t, newNorthwindDB(t))

	fixed, changed := Repair(`SELECT * FROM Orders o WHERE o.OrderDate BETWEEN '2017-06-01' AND '2017-06-30'`, model.ExecSemanticError, info)
	require.True(t, changed)
	assert.Contains(t, fixed, "date(o.OrderDate) BETWEEN")

	// Idempotent: a second pass finds nothing left to fix.
	_, changed = Repair(fixed, model.ExecSemanticError, info)
	assert.False(t, changed)
}

func TestRepair_UnfixableErrorReturnsUnchanged(t *testing.T) {
	info := loadSchema(t, newNorthwindDB(t))

	_, changed := Repair(`SELECT Nonexistent FROM Products`, model.ExecSemanticError, info)
	assert.False(t, changed)
}
