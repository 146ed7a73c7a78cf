package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/nl2sql"
	"github.com/finqa/finqa/internal/query"
)

var ErrEmptyQuestion = errors.New("question is required")

// Stable failure codes, shared with the HTTP API.
const (
	CodeQuestionRequired     = "QUESTION_REQUIRED"
	CodeDatasetNotLoaded     = "DATASET_NOT_LOADED"
	CodeExtractionParse      = "EXTRACTION_PARSE_FAILED"
	CodeMalformedSQL         = "MALFORMED_SQL"
	CodeQueryExecutionFailed = "QUERY_EXECUTION_FAILED"
	CodeModelCallFailed      = "MODEL_CALL_FAILED"
	CodeCanceled             = "CANCELED"
	CodeInternal             = "INTERNAL"
)

// StageError is the only error Ask returns. Offending holds the model output or SQL that
// caused the failure, when there is one.
type StageError struct {
	Stage     State
	Code      string
	Offending string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func newStageError(stage State, err error) *StageError {
	stageErr := &StageError{Stage: stage, Err: err, Code: CodeInternal}

	var (
		parseErr     *nl2sql.ExtractionParseError
		malformedErr *nl2sql.MalformedSQLError
		execErr      *query.ExecutionError
		synthErr     *nl2sql.SynthesisError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		stageErr.Code = CodeCanceled
	case errors.Is(err, ErrEmptyQuestion):
		stageErr.Code = CodeQuestionRequired
	case errors.Is(err, dataset.ErrNotLoaded):
		stageErr.Code = CodeDatasetNotLoaded
	case errors.As(err, &parseErr):
		stageErr.Code = CodeExtractionParse
		stageErr.Offending = parseErr.Raw
	case errors.As(err, &malformedErr):
		stageErr.Code = CodeMalformedSQL
		stageErr.Offending = malformedErr.SQL
	case errors.As(err, &execErr):
		stageErr.Code = CodeQueryExecutionFailed
		stageErr.Offending = execErr.SQL
	case errors.As(err, &synthErr):
		stageErr.Code = CodeModelCallFailed
	case stage == StateExtracting || stage == StateGenerating:
		stageErr.Code = CodeModelCallFailed
	}
	return stageErr
}

// isValidationFailure reports failures worth another model attempt: the model answered, but
// the answer did not parse or validate.
func isValidationFailure(err error) bool {
	var (
		parseErr     *nl2sql.ExtractionParseError
		malformedErr *nl2sql.MalformedSQLError
	)
	return errors.As(err, &parseErr) || errors.As(err, &malformedErr)
}
