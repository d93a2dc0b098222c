package pipeline

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sells-group/analytics-copilot/internal/executor"
	"github.com/sells-group/analytics-copilot/internal/retrieve"
	"github.com/sells-group/analytics-copilot/internal/schema"
	"github.com/sells-group/analytics-copilot/internal/sqlgen"
)

const policyDoc = `# Product Policy

Beverages unopened: 30 days.
Beverages opened: no returns.

Condiments unopened: 45 days.
`

const calendarDoc = `# Marketing Calendar

## Summer Beverages 2017
Dates: 2017-06-01 to 2017-06-30
Focus categories: Beverages

## Winter Classics 2017
Dates: 2017-12-01 to 2017-12-31
Focus categories: Beverages, Confections
`

const kpiDoc = `# KPI Definitions

## AOV
AOV = SUM(UnitPrice * Quantity * (1 - Discount)) / COUNT(DISTINCT OrderID)
Defined over all non-cancelled orders.
`

func newDocsIndex(t *testing.T) *retrieve.Index {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"product_policy.md":     policyDoc,
		"marketing_calendar.md": calendarDoc,
		"kpi_definitions.md":    kpiDoc,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	idx, err := retrieve.NewIndex(dir)
	require.NoError(t, err)
	return idx
}

func newNorthwindDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE Categories (CategoryID INTEGER PRIMARY KEY, CategoryName TEXT);
		CREATE TABLE Products (ProductID INTEGER PRIMARY KEY, ProductName TEXT, CategoryID INTEGER);
		CREATE TABLE Customers (CustomerID TEXT PRIMARY KEY, CompanyName TEXT);
		CREATE TABLE Orders (OrderID INTEGER PRIMARY KEY, CustomerID TEXT, OrderDate TEXT);
		CREATE TABLE "Order Details" (OrderID INTEGER, ProductID INTEGER, UnitPrice REAL, Quantity INTEGER, Discount REAL);

		INSERT INTO Categories VALUES (1, 'Beverages'), (2, 'Condiments');
		INSERT INTO Products VALUES (1, 'Chai', 1), (2, 'Chang', 1), (3, 'Aniseed Syrup', 2);
		INSERT INTO Customers VALUES ('ALFKI', 'Alfreds Futterkiste'), ('BONAP', 'Bon app');

		INSERT INTO Orders VALUES
			(10, 'ALFKI', '2017-06-05 00:00:00'),
			(11, 'BONAP', '2017-06-20 00:00:00'),
			(12, 'ALFKI', '2017-12-10 00:00:00');

		INSERT INTO "Order Details" VALUES
			(10, 1, 18.0, 10, 0.0),
			(10, 3, 10.0, 5, 0.0),
			(11, 2, 19.0, 20, 0.1),
			(12, 1, 18.0, 7, 0.0);
	`)
	require.NoError(t, err)
	return db
}

// newOrchestrator builds the full pipeline over the fixture corpus and
// database, with no oracle wired.
func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	db := newNorthwindDB(t)
	gen := sqlgen.New(executor.New(db, 5*time.Second), schema.NewCache(db), nil, 3, 0)
	return New(NewRouter(nil), newDocsIndex(t), gen, 5)
}
