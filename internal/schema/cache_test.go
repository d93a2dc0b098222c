package schema

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1) // one shared in-memory database
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE Orders (OrderID INTEGER PRIMARY KEY, OrderDate TEXT, CustomerID TEXT);
		CREATE TABLE "Order Details" (OrderID INTEGER, ProductID INTEGER, UnitPrice REAL, Quantity INTEGER, Discount REAL);
		CREATE TABLE Products (ProductID INTEGER PRIMARY KEY, ProductName TEXT, CategoryID INTEGER);
		INSERT INTO Orders VALUES (1, '2017-06-05 00:00:00', 'ALFKI');
	`)
	require.NoError(t, err)
	return db
}

func TestCache_LoadsTablesAndColumns(t *testing.T) {
	cache := NewCache(openTestDB(t))

	info, err := cache.Info(context.Background())
	require.NoError(t, err)

	assert.True(t, info.HasTable("Orders"))
	assert.True(t, info.HasTable("Order Details"))
	assert.True(t, info.HasColumn("UnitPrice"))
	assert.False(t, info.HasTable("Nope"))

	cols := info.Tables["Orders"]
	require.Len(t, cols, 3)
	assert.Equal(t, "OrderID", cols[0].Name)
	assert.True(t, cols[0].PrimaryKey)
}

func TestCache_DetectsDateTimeFormat(t *testing.T) {
	cache := NewCache(openTestDB(t))

	info, err := cache.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DateTime, info.DateFormat)
}

func TestCache_MemoizesUntilReset(t *testing.T) {
	cache := NewCache(openTestDB(t))
	ctx := context.Background()

	first, err := cache.Info(ctx)
	require.NoError(t, err)
	second, err := cache.Info(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	cache.Reset()
	third, err := cache.Info(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "Orders", QuoteIdent("Orders"))
	assert.Equal(t, `"Order Details"`, QuoteIdent("Order Details"))
	assert.Equal(t, `"2021_sales"`, QuoteIdent("2021_sales"))
	assert.Equal(t, `"say ""hi"""`, QuoteIdent(`say "hi"`))
}

func TestInfo_Summary(t *testing.T) {
	cache := NewCache(openTestDB(t))

	info, err := cache.Info(context.Background())
	require.NoError(t, err)

	s := info.Summary()
	assert.Contains(t, s, `"Order Details"(`)
	assert.Contains(t, s, "OrderDate")
	assert.Contains(t, s, "Date literal format: datetime")
}
