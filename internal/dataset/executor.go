// Package dataset runs compiled queries against read-only sqlite dataset files
// and offers the maintenance operations used around uploads.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/catalog"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/filter"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// Config holds executor settings
type Config struct {
	BusyTimeout  time.Duration
	QueryTimeout time.Duration
}

// Executor opens the dataset file per call. No handle outlives a request.
type Executor struct {
	config Config
}

// NewExecutor creates an executor
func NewExecutor(cfg Config) *Executor {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return &Executor{config: cfg}
}

// openReadOnly stats the file and opens it in read-only mode
func (e *Executor) openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", fileDSN(path, url.Values{
		"mode":          {"ro"},
		"_busy_timeout": {strconv.FormatInt(e.config.BusyTimeout.Milliseconds(), 10)},
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// fileDSN builds a sqlite URI for path. The path is percent-escaped so that
// '?', '#' and '%' in file names cannot leak into the query string.
func fileDSN(path string, params url.Values) string {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath()
	if len(params) > 0 {
		dsn += "?" + params.Encode()
	}
	return dsn
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, e.config.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// Execute runs q against the dataset at path. On failure it returns an empty
// result carrying the query's columns together with a *DatasetError.
func (e *Executor) Execute(ctx context.Context, path string, q *filter.Query) (*models.QueryResult, error) {
	result := &models.QueryResult{
		Columns: q.Columns,
		Labels:  q.Labels,
		Rows:    [][]string{},
	}

	db, err := e.openReadOnly(path)
	if err != nil {
		return result, wrapErr("open", path, err)
	}
	defer db.Close()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return result, wrapErr("query", path, err)
	}
	defer rows.Close()

	width := len(q.Columns)
	values := make([]any, width)
	dest := make([]any, width)
	for i := range values {
		dest[i] = &values[i]
	}

	var out [][]string
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return result, wrapErr("scan", path, err)
		}
		row := make([]string, width)
		for i, v := range values {
			row[i] = stringify(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return result, wrapErr("query", path, err)
	}

	if out != nil {
		result.Rows = out
	}
	return result, nil
}

// Count returns the number of rows q would produce, bounded by its limit
func (e *Executor) Count(ctx context.Context, path string, q *filter.Query) (int, error) {
	db, err := e.openReadOnly(path)
	if err != nil {
		return 0, wrapErr("open", path, err)
	}
	defer db.Close()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var n int
	if err := db.QueryRowContext(ctx, q.CountSQL(), q.Args...).Scan(&n); err != nil {
		return 0, wrapErr("count", path, err)
	}
	return n, nil
}

// Catalog inspects the dataset schema and narrows the field catalog to it.
// The returned catalog is never nil.
func (e *Executor) Catalog(ctx context.Context, path string) (*catalog.Catalog, error) {
	return catalog.Inspect(ctx, &fileInspector{executor: e, path: path})
}

type fileInspector struct {
	executor *Executor
	path     string
}

// TableColumns lists the columns of each table through PRAGMA table_info.
// Table names come from the catalog's closed set.
func (f *fileInspector) TableColumns(ctx context.Context, tables []string) (map[string][]string, error) {
	db, err := f.executor.openReadOnly(f.path)
	if err != nil {
		return nil, wrapErr("open", f.path, err)
	}
	defer db.Close()

	columns := make(map[string][]string, len(tables))
	for _, table := range tables {
		cols, err := tableColumns(ctx, db, table)
		if err != nil {
			return nil, wrapErr("inspect", f.path, err)
		}
		columns[table] = cols
	}
	return columns, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// stringify renders a sqlite value as text. NULL becomes the empty string.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
