package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom streams rows into table over the COPY protocol and returns the
// number written. Every row must have one value per column; a short or long
// row fails before anything is sent. Zero rows is a no-op.
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, eris.Errorf("db: %s row %d has %d values for %d columns", table, i, len(r), len(columns))
		}
	}

	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) { return rows[i], nil })
	n, err := c.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	return n, nil
}
