// Package schema introspects the analytics database and memoizes its
// table/column metadata plus the detected date-literal format.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DateFormat describes how date literals are stored in the engine.
type DateFormat string

const (
	// DateOnly means bare YYYY-MM-DD literals.
	DateOnly DateFormat = "date"
	// DateTime means literals carry a time component and comparisons must be
	// wrapped in date().
	DateTime DateFormat = "datetime"
)

// Column is one column of a table, in declaration order.
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
}

// Info is the loaded schema snapshot. Values never change within a run once
// populated for a given connection.
type Info struct {
	TableOrder []string
	Tables     map[string][]Column
	DateFormat DateFormat
}

// HasTable reports whether the schema contains the table, case-insensitively.
func (i *Info) HasTable(name string) bool {
	for _, t := range i.TableOrder {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// HasColumn reports whether any table carries the column, case-insensitively.
func (i *Info) HasColumn(name string) bool {
	for _, cols := range i.Tables {
		for _, c := range cols {
			if strings.EqualFold(c.Name, name) {
				return true
			}
		}
	}
	return false
}

// QuoteIdent quotes an identifier when it needs quoting (spaces or a
// non-leading-alpha start). Plain identifiers pass through unchanged.
func QuoteIdent(name string) string {
	if name == "" {
		return name
	}
	needs := strings.ContainsAny(name, " -")
	if !needs {
		for i, r := range name {
			if i == 0 && !(r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')) {
				needs = true
				break
			}
		}
	}
	if !needs {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Summary renders a prompt-ready schema description for the oracle.
func (i *Info) Summary() string {
	var b strings.Builder
	b.WriteString("Tables:\n")
	for _, t := range i.TableOrder {
		fmt.Fprintf(&b, "- %s(", QuoteIdent(t))
		for j, c := range i.Tables[t] {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
			if c.Type != "" {
				b.WriteString(" " + c.Type)
			}
		}
		b.WriteString(")\n")
	}
	fmt.Fprintf(&b, "Date literal format: %s\n", i.DateFormat)
	return b.String()
}

// Cache lazily loads and memoizes schema Info for one engine connection.
// The first Info call populates the snapshot; afterwards reads share the same
// immutable value. Reset discards it (tests, schema migrations).
type Cache struct {
	db *sql.DB

	mu   sync.Mutex
	info *Info
}

// NewCache creates a cache bound to db. Nothing is loaded until Info is called.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Info returns the memoized schema snapshot, loading it on first use.
func (c *Cache) Info(ctx context.Context) (*Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info != nil {
		return c.info, nil
	}

	info, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.info = info

	zap.L().Debug("schema loaded",
		zap.Int("tables", len(info.TableOrder)),
		zap.String("date_format", string(info.DateFormat)),
	)
	return c.info, nil
}

// Reset discards the memoized snapshot. Exclusive with in-flight loads.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.info = nil
	c.mu.Unlock()
}

func (c *Cache) load(ctx context.Context) (*Info, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "schema: list tables")
	}
	defer rows.Close()

	info := &Info{Tables: make(map[string][]Column)}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "schema: scan table name")
		}
		info.TableOrder = append(info.TableOrder, name)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "schema: iterate tables")
	}

	for _, t := range info.TableOrder {
		cols, err := c.loadColumns(ctx, t)
		if err != nil {
			return nil, err
		}
		info.Tables[t] = cols
	}

	info.DateFormat = c.detectDateFormat(ctx, info)
	return info, nil
}

func (c *Cache) loadColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, QuoteIdent(table)))
	if err != nil {
		return nil, eris.Wrapf(err, "schema: table_info %s", table)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   sql.NullString
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, eris.Wrapf(err, "schema: scan column of %s", table)
		}
		cols = append(cols, Column{Name: name, Type: ctype.String, PrimaryKey: pk > 0})
	}
	return cols, eris.Wrapf(rows.Err(), "schema: iterate columns of %s", table)
}

// detectDateFormat samples one value from the first *Date column it finds.
// Falls back to DateOnly when no sample exists; a wrong guess only costs an
// extra repair attempt later.
func (c *Cache) detectDateFormat(ctx context.Context, info *Info) DateFormat {
	for _, t := range info.TableOrder {
		for _, col := range info.Tables[t] {
			if !strings.Contains(strings.ToLower(col.Name), "date") {
				continue
			}
			q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT 1`,
				QuoteIdent(col.Name), QuoteIdent(t), QuoteIdent(col.Name))
			var sample string
			if err := c.db.QueryRowContext(ctx, q).Scan(&sample); err != nil {
				continue
			}
			if strings.ContainsAny(sample, "T ") {
				return DateTime
			}
			return DateOnly
		}
	}
	return DateOnly
}
