package nl2sql

import "fmt"

// ExtractionParseError reports model output that could not be read as a filter object.
type ExtractionParseError struct {
	Raw    string
	Reason string
}

func (e *ExtractionParseError) Error() string {
	return fmt.Sprintf("cannot parse filter from model output: %s", e.Reason)
}

// MalformedSQLError reports generated SQL that failed static validation.
type MalformedSQLError struct {
	SQL    string
	Reason string
}

func (e *MalformedSQLError) Error() string {
	return fmt.Sprintf("malformed sql: %s", e.Reason)
}

// SynthesisError reports a failed answer-synthesis model call.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return "answer synthesis failed: " + e.Err.Error()
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
