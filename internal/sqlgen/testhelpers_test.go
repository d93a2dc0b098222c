package sqlgen

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sells-group/analytics-copilot/internal/schema"
)

// newNorthwindDB builds a miniature retail database: three products across
// two categories, orders inside and outside the June 2017 campaign window.
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

func loadSchema(t *testing.T, db *sql.DB) *schema.Info {
	t.Helper()
	info, err := schema.NewCache(db).Info(context.Background())
	require.NoError(t, err)
	return info
}
