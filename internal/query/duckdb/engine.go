package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/query"
)

// Engine runs each statement in a fresh in-memory DuckDB database holding only df.
type Engine struct {
	// TempDir holds the per-query parquet file; empty uses the OS default.
	TempDir string
}

func NewEngine(tempDir string) *Engine {
	return &Engine{TempDir: tempDir}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if request.Dataset == nil {
		return query.Result{}, fmt.Errorf("dataset is required")
	}
	if err := query.CheckReadOnly(request.SQL); err != nil {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: err}
	}

	start := time.Now()
	workDir, err := os.MkdirTemp(e.TempDir, "finqa-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath, err := writeSnapshotFile(workDir, request.Dataset)
	if err != nil {
		return query.Result{}, fmt.Errorf("write local parquet file: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, bindTableSQL(localPath)); err != nil {
		return query.Result{}, fmt.Errorf("bind table %s: %w", dataset.TableName, err)
	}
	for _, stmt := range lockdownStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return query.Result{}, fmt.Errorf("lock down duckdb (%s): %w", stmt, err)
		}
	}

	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if request.RowLimit > 0 {
		// newlines keep a trailing line comment from swallowing the wrapper
		sqlText = fmt.Sprintf("SELECT * FROM (\n%s\n) AS q LIMIT %d", sqlText, request.RowLimit+1)
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		if ctx.Err() != nil {
			return query.Result{}, ctx.Err()
		}
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: fmt.Errorf("scan row: %w", err)}
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return query.Result{}, ctx.Err()
		}
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: err}
	}

	truncated := false
	if request.RowLimit > 0 && len(resultRows) > request.RowLimit {
		resultRows = resultRows[:request.RowLimit]
		truncated = true
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

// lockdownStatements run after df is bound: no file, network or extension access, and no
// way to turn it back on from the generated statement.
var lockdownStatements = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

func bindTableSQL(localPath string) string {
	casts := make([]string, 0, len(dataset.Columns))
	for _, column := range dataset.Columns {
		casts = append(casts, fmt.Sprintf("CAST(%s AS %s) AS %s", quoteIdent(column.Name), column.SQLType, quoteIdent(column.Name)))
	}
	return fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM read_parquet(%s)",
		quoteIdent(dataset.TableName), strings.Join(casts, ", "), quoteString(localPath))
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case *big.Int:
			if typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed.String()
			}
		case goduckdb.Decimal:
			normalized[i] = typed.Float64()
		case float32:
			normalized[i] = float64(typed)
		case int32:
			normalized[i] = int64(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
