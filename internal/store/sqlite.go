// Package store opens SQLite databases for the SQL handlers and turns
// result sets into JSON-ready rows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"taskagent/internal/logging"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // driver "sqlite"
)

// ErrDatabaseNotFound is returned when the database file does not exist.
var ErrDatabaseNotFound = errors.New("database file not found")

// Open opens an existing database file. driver is "sqlite3" (mattn) or
// "sqlite" (modernc). A read-only handle is opened in mode=ro so writes
// fail inside SQLite regardless of the statement text.
func Open(driver, path string, readOnly bool) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}

	db, err := sql.Open(driver, dsn(driver, path, readOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logging.Get(logging.CategoryStore).Debug("database opened",
		zap.String("driver", driver),
		zap.String("path", path),
		zap.Bool("read_only", readOnly))
	return db, nil
}

// uriPath escapes the characters SQLite's URI filename parser treats as
// delimiters or escapes.
var uriPath = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func dsn(driver, path string, readOnly bool) string {
	q := url.Values{}
	if readOnly {
		q.Set("mode", "ro")
	}
	switch driver {
	case "sqlite":
		q.Add("_pragma", "busy_timeout(5000)")
	default:
		q.Set("_busy_timeout", "5000")
	}
	u := url.URL{Scheme: "file", Opaque: uriPath.Replace(path), RawQuery: q.Encode()}
	return u.String()
}

// Rows is a materialized result set.
type Rows struct {
	Columns []string
	Records []map[string]any
}

// Query runs a query and materializes every row. BLOBs and TEXT returned
// as []byte become strings; time values are formatted as RFC 3339.
func Query(ctx context.Context, db *sql.DB, query string, args ...any) (*Rows, error) {
	start := time.Now()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &Rows{Columns: cols, Records: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = normalize(values[i])
		}
		out.Records = append(out.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryStore).Debug("query finished",
		zap.Int("rows", len(out.Records)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}
