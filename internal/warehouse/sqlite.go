package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/retail-copilot/internal/model"
)

// Warehouse wraps the analytic SQLite database. It exposes schema
// introspection and read-only query execution; execution errors are captured
// in the result rather than returned, so the repair loop can see them.
type Warehouse struct {
	db *sql.DB
}

// Open opens the analytic database at the given path.
func Open(dsn string) (*Warehouse, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: open")
	}
	for _, pragma := range []string{
		"PRAGMA query_only=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "warehouse: exec %s", pragma)
		}
	}
	return &Warehouse{db: db}, nil
}

// NewFromDB wraps an existing database handle. Used by tests.
func NewFromDB(db *sql.DB) *Warehouse {
	return &Warehouse{db: db}
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

// Tables lists user table names in name order.
func (w *Warehouse) Tables(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type='table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan table name")
		}
		tables = append(tables, name)
	}
	return tables, eris.Wrap(rows.Err(), "warehouse: iterate tables")
}

// Schema returns a textual description of every user table and its columns,
// exactly as introspected. The generator must reference these names verbatim.
func (w *Warehouse) Schema(ctx context.Context) (string, error) {
	tables, err := w.Tables(ctx)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, table := range tables {
		rows, err := w.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info([%s])", table))
		if err != nil {
			return "", eris.Wrapf(err, "warehouse: table_info %s", table)
		}

		var cols []string
		for rows.Next() {
			var (
				cid        int
				name, typ  string
				notNull    int
				defaultVal sql.NullString
				pk         int
			)
			if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
				rows.Close()
				return "", eris.Wrapf(err, "warehouse: scan column of %s", table)
			}
			cols = append(cols, fmt.Sprintf("  %s %s", name, typ))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", eris.Wrapf(err, "warehouse: iterate columns of %s", table)
		}
		rows.Close()

		parts = append(parts, fmt.Sprintf("%s(\n%s\n)", table, strings.Join(cols, ",\n")))
	}

	return strings.Join(parts, "\n\n"), nil
}

// Query executes one read-only statement. Database-level failures (syntax
// errors, missing tables, type mismatches) come back in ExecutionResult.Err,
// never as a Go error; only a nil receiver misuse would panic here.
func (w *Warehouse) Query(ctx context.Context, sqlText string) *model.ExecutionResult {
	result := &model.ExecutionResult{}

	if !isReadOnly(sqlText) {
		result.Err = "only SELECT statements are allowed"
		return result
	}

	rows, err := w.db.QueryContext(ctx, sqlText)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		result.Err = err.Error()
		return result
	}
	result.Columns = cols

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			result.Err = err.Error()
			return result
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		result.Err = err.Error()
	}

	return result
}

// isReadOnly accepts SELECT and WITH (CTE) statements only.
func isReadOnly(sqlText string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(sqlText))
	return strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH")
}

// normalizeValue converts driver byte slices to strings so rows marshal to
// readable JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
