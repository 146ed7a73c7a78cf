// Package query executes read-only SQL against a dataset snapshot.
package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/finqa/finqa/internal/dataset"
)

type Request struct {
	SQL      string
	Dataset  *dataset.Dataset
	RowLimit int
}

type Result struct {
	Columns []string
	Rows    [][]any
	// Truncated is set when the statement produced more than RowLimit rows.
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

var ErrNotReadOnly = errors.New("statement is not read-only")

// ExecutionError carries the engine's message for a statement that was rejected or failed.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return "query execution failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsEmpty reports whether the result carries no information: no rows, or only NULLs, which
// is what an aggregate over zero matching rows returns.
func (r Result) IsEmpty() bool {
	for _, row := range r.Rows {
		for _, value := range row {
			if value != nil {
				return false
			}
		}
	}
	return true
}

// Scalar returns the single value of a one-row, one-column result.
func (r Result) Scalar() (any, bool) {
	if len(r.Rows) != 1 || len(r.Rows[0]) != 1 {
		return nil, false
	}
	return r.Rows[0][0], true
}

// Format renders up to limit rows as a pipe-separated table with a header line. A limit
// of zero or less renders every row.
func (r Result) Format(limit int) string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | "))
	rows := r.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for _, row := range rows {
		b.WriteByte('\n')
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = FormatValue(value)
		}
		b.WriteString(strings.Join(cells, " | "))
	}
	if hidden := len(r.Rows) - len(rows); hidden > 0 {
		fmt.Fprintf(&b, "\n... %d more row(s)", hidden)
	}
	if r.Truncated {
		b.WriteString("\n... result truncated")
	}
	return b.String()
}

func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case float64:
		// Amounts are currency; two decimals also hides float summation noise.
		return strconv.FormatFloat(typed, 'f', 2, 64)
	case float32:
		return FormatValue(float64(typed))
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format("2006-01-02")
		}
		return typed.Format(time.RFC3339)
	default:
		return fmt.Sprint(typed)
	}
}
