package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertConfig defines the parameters for a bulk insert-if-absent.
type InsertConfig struct {
	Table        string   // target table (e.g., "veille.publications")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	Returning    []string // columns returned for each newly inserted row
}

// InsertNew bulk-inserts rows that do not collide with existing ones and
// returns the Returning columns of the rows actually inserted.
// 1. Creates a temp table shaped like the target
// 2. COPY rows into the temp table
// 3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO NOTHING RETURNING ...
// The temp table is dropped on commit.
func InsertNew(ctx context.Context, pool Pool, cfg InsertConfig, rows [][]any) ([][]any, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if len(cfg.Columns) == 0 {
		return nil, eris.New("db: insert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return nil, eris.New("db: insert: no conflict keys specified")
	}
	returning := cfg.Returning
	if len(returning) == 0 {
		returning = cfg.ConflictKeys
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "db: insert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := tempTableName(cfg.Table)

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return nil, eris.Wrapf(err, "db: insert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return nil, eris.Wrapf(err, "db: insert: COPY into temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING RETURNING %s",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		quoteAndJoin(returning),
	)

	result, err := tx.Query(ctx, insertSQL)
	if err != nil {
		return nil, eris.Wrapf(err, "db: insert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	var inserted [][]any
	for result.Next() {
		vals, err := result.Values()
		if err != nil {
			result.Close()
			return nil, eris.Wrap(err, "db: insert: scan returning row")
		}
		inserted = append(inserted, vals)
	}
	result.Close()
	if err := result.Err(); err != nil {
		return nil, eris.Wrap(err, "db: insert: iterate returning rows")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "db: insert: commit tx")
	}

	return inserted, nil
}

func tempTableName(table string) string {
	return "_tmp_insert_" + strings.ReplaceAll(table, ".", "_")
}

// sanitizeTable handles schema-qualified table names like "veille.publications".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
