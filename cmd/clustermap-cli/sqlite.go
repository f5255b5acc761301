package main

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/persistorai/clustermap/internal/batch"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	return db, nil
}

// readTable loads every row of table into columns keyed by column name, so
// the batch decoders map SQLite exports the same way as JSON ones.
func readTable(ctx context.Context, db *sql.DB, table string) (*batch.Columns, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table) //nolint:gosec // table name validated above.
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading %s columns: %w", table, err)
	}

	data := make(map[string][]any, len(names))
	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		for i, name := range names {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			data[name] = append(data[name], v)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", table, err)
	}

	if len(data) == 0 {
		for _, name := range names {
			data[name] = nil
		}
	}

	return batch.NewColumns(data)
}
