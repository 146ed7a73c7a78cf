package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/finqa/finqa/internal/auth"
	"github.com/finqa/finqa/internal/llm"
	"github.com/finqa/finqa/internal/nl2sql"
	"github.com/finqa/finqa/internal/pipeline"
)

const maxAskBodyBytes = 64 << 10

type askRequest struct {
	Question string `json:"question"`
	// AsOf is an optional YYYY-MM-DD date that relative periods in the question count from.
	AsOf string `json:"as_of"`
}

type askResponse struct {
	RequestID      string        `json:"request_id"`
	Answer         string        `json:"answer"`
	Degraded       bool          `json:"degraded"`
	Filter         nl2sql.Filter `json:"filter"`
	SQL            string        `json:"sql"`
	Columns        []string      `json:"columns"`
	Rows           [][]any       `json:"rows"`
	Truncated      bool          `json:"truncated"`
	AsOf           string        `json:"as_of"`
	DatasetVersion string        `json:"dataset_version"`
	Stats          askStats      `json:"stats"`
}

type askStats struct {
	Attempts        int   `json:"attempts"`
	QueryDurationMs int64 `json:"query_duration_ms"`
	DurationMs      int64 `json:"duration_ms"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	if err := auth.Authorize(r.Context(), auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	var asOf time.Time
	if strings.TrimSpace(request.AsOf) != "" {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(request.AsOf))
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_AS_OF", "as_of must be a YYYY-MM-DD date", false, map[string]any{"as_of": request.AsOf})
			return
		}
		asOf = parsed
	}

	ctx := r.Context()
	if deps.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.AskTimeout)
		defer cancel()
	}

	started := time.Now()
	qc, err := deps.Asker.Ask(ctx, pipeline.Request{Question: request.Question, AsOf: asOf})
	if err != nil {
		writeAskError(r, w, qc, err)
		return
	}

	columns := qc.Result.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := qc.Result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		RequestID:      qc.ID,
		Answer:         qc.Answer,
		Degraded:       qc.Degraded,
		Filter:         qc.Filter,
		SQL:            qc.SQL,
		Columns:        columns,
		Rows:           rows,
		Truncated:      qc.Result.Truncated,
		AsOf:           qc.AsOf.Format(time.DateOnly),
		DatasetVersion: qc.DatasetVersion,
		Stats: askStats{
			Attempts:        qc.Attempts,
			QueryDurationMs: qc.Result.Duration.Milliseconds(),
			DurationMs:      time.Since(started).Milliseconds(),
		},
	})
}

func writeAskError(r *http.Request, w http.ResponseWriter, qc pipeline.QueryContext, err error) {
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, pipeline.CodeInternal, "question failed", true, map[string]any{"details": err.Error()})
		return
	}

	extra := map[string]any{
		"request_id": qc.ID,
		"stage":      string(stageErr.Stage),
		"details":    stageErr.Err.Error(),
	}
	if stageErr.Offending != "" {
		extra["offending"] = stageErr.Offending
	}

	status, retryable, message := http.StatusInternalServerError, true, "question failed"
	switch stageErr.Code {
	case pipeline.CodeQuestionRequired:
		status, retryable, message = http.StatusBadRequest, false, "question is required"
	case pipeline.CodeDatasetNotLoaded:
		status, retryable, message = http.StatusServiceUnavailable, true, "dataset is not loaded yet"
	case pipeline.CodeExtractionParse:
		status, retryable, message = http.StatusBadGateway, true, "model output could not be parsed as a filter"
	case pipeline.CodeMalformedSQL:
		status, retryable, message = http.StatusBadGateway, true, "model produced invalid SQL"
	case pipeline.CodeQueryExecutionFailed:
		status, retryable, message = http.StatusUnprocessableEntity, false, "query execution failed"
	case pipeline.CodeModelCallFailed:
		status, retryable, message = http.StatusBadGateway, llm.IsTransient(stageErr.Err), "language model call failed"
	case pipeline.CodeCanceled:
		status, retryable, message = http.StatusGatewayTimeout, true, "question timed out or was canceled"
	}
	writeError(r.Context(), w, status, stageErr.Code, message, retryable, extra)
}
