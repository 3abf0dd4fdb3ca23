package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = InsertConfig{
	Table:        "publications",
	Columns:      []string{"url", "commune", "title"},
	ConflictKeys: []string{"url", "commune"},
}

func TestInsertNew_EmptyRows(t *testing.T) {
	got, err := InsertNew(context.Background(), nil, testCfg, nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertNew_NoColumns(t *testing.T) {
	_, err := InsertNew(context.Background(), nil, InsertConfig{
		Table:        "publications",
		ConflictKeys: []string{"url"},
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestInsertNew_NoConflictKeys(t *testing.T) {
	_, err := InsertNew(context.Background(), nil, InsertConfig{
		Table:   "publications",
		Columns: []string{"url"},
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestInsertNew_ReturnsInsertedKeys(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_insert_publications" \(LIKE "publications"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_publications"}, testCfg.Columns).WillReturnResult(2)
	mock.ExpectQuery(`INSERT INTO "publications" .* ON CONFLICT \("url", "commune"\) DO NOTHING RETURNING "url", "commune"`).
		WillReturnRows(pgxmock.NewRows([]string{"url", "commune"}).AddRow("https://a", "Sion"))
	mock.ExpectCommit()

	rows := [][]any{{"https://a", "Sion", "A"}, {"https://b", "Bulle", "B"}}
	got, err := InsertNew(context.Background(), mock, testCfg, rows)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []any{"https://a", "Sion"}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNew_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_publications"}, testCfg.Columns).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = InsertNew(context.Background(), mock, testCfg, [][]any{{"u", "c", "t"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"veille.publications", `"veille"."publications"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}

func TestTempTableName(t *testing.T) {
	assert.Equal(t, "_tmp_insert_veille_publications", tempTableName("veille.publications"))
}
