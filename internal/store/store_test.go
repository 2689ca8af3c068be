package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name  string
		query string
		ok    bool
	}{
		{"select", "SELECT * FROM t", true},
		{"lowercase with semicolon", "select 1;", true},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"parenthesized", "(SELECT 1)", true},
		{"leading comment", "-- totals\nSELECT 1", true},
		{"block comment", "/* hi */ SELECT 1 /* bye */", true},
		{"semicolon in literal", "SELECT 'a;b' FROM t", true},
		{"escaped quote", "SELECT 'it''s; fine'", true},
		{"bracket identifier", "SELECT [weird;col] FROM t", true},
		{"insert", "INSERT INTO t VALUES (1)", false},
		{"drop", "DROP TABLE t", false},
		{"pragma", "PRAGMA writable_schema = 1", false},
		{"attach", "ATTACH DATABASE '/tmp/x.db' AS x", false},
		{"stacked", "SELECT 1; DROP TABLE t", false},
		{"stacked after comment", "SELECT 1; -- ok\n DELETE FROM t", false},
		{"empty", "  ;  ", false},
		{"unterminated quote", "SELECT 'abc", false},
		{"unterminated comment", "SELECT 1 /* oops", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrQueryNotAllowed), "got %v", err)
			}
		})
	}
}

func seed(t *testing.T, driver string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.db")
	db, err := sql.Open(driver, path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE tickets (type TEXT, units INTEGER, price REAL);
		INSERT INTO tickets VALUES ('Gold', 2, 10.5), ('Silver', 1, 3), ('Gold', 1, 4);`)
	require.NoError(t, err)
	return path
}

func TestOpenAndQuery(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			path := seed(t, driver)
			db, err := Open(driver, path, true)
			require.NoError(t, err)
			defer db.Close()

			rows, err := Query(context.Background(), db, "SELECT type, SUM(units * price) AS total FROM tickets WHERE type = ? GROUP BY type", "Gold")
			require.NoError(t, err)
			assert.Equal(t, []string{"type", "total"}, rows.Columns)
			require.Len(t, rows.Records, 1)
			assert.Equal(t, "Gold", rows.Records[0]["type"])
			assert.EqualValues(t, 25, rows.Records[0]["total"])
		})
	}
}

func TestOpen_PathWithURIDelimiters(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		for _, name := range []string{"sales?v=1.db", "q1#2024.db", "100%.db"} {
			t.Run(driver+"/"+name, func(t *testing.T) {
				src := seed(t, driver)
				path := filepath.Join(filepath.Dir(src), name)
				require.NoError(t, os.Rename(src, path))

				db, err := Open(driver, path, true)
				require.NoError(t, err)
				defer db.Close()

				rows, err := Query(context.Background(), db, "SELECT COUNT(*) AS n FROM tickets")
				require.NoError(t, err)
				require.Len(t, rows.Records, 1)
				assert.EqualValues(t, 3, rows.Records[0]["n"])
			})
		}
	}
}

func TestDSN_EscapesPath(t *testing.T) {
	assert.Equal(t, "file:/data/a%3fb%23c%25d.db?_busy_timeout=5000&mode=ro",
		dsn("sqlite3", "/data/a?b#c%d.db", true))
}

func TestOpen_ReadOnlyRejectsWrites(t *testing.T) {
	path := seed(t, "sqlite3")
	db, err := Open("sqlite3", path, true)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("DELETE FROM tickets")
	assert.Error(t, err)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open("sqlite3", filepath.Join(t.TempDir(), "nope.db"), true)
	assert.True(t, errors.Is(err, ErrDatabaseNotFound))
}

func TestQuery_EmptyResultIsEmptySlice(t *testing.T) {
	path := seed(t, "sqlite3")
	db, err := Open("sqlite3", path, true)
	require.NoError(t, err)
	defer db.Close()

	rows, err := Query(context.Background(), db, "SELECT * FROM tickets WHERE type = 'Bronze'")
	require.NoError(t, err)
	assert.NotNil(t, rows.Records)
	assert.Empty(t, rows.Records)
}
