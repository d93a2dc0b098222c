package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CopyFrom bulk-inserts rows into a table using the PostgreSQL COPY protocol.
// One COPY carries a whole batch of answer records, which beats row-at-a-time
// inserts by a wide margin on large question files.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, eris.Errorf("db: row %d has %d values for %d columns", i, len(row), len(columns))
		}
	}

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	zap.L().Debug("bulk copy complete",
		zap.String("table", table),
		zap.Int64("rows", n),
	)
	return n, nil
}
