// Package llm is the boundary to text-completion providers.
//
// Every model interaction in the question pipeline goes through the single-method
// LanguageModel interface, so providers, retry policy and test doubles are swappable.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Task string

const (
	TaskExtractFilter   Task = "extract_filter"
	TaskGenerateSQL     Task = "generate_sql"
	TaskSynthesizeReply Task = "synthesize_answer"
)

type Request struct {
	Task   Task
	System string
	Prompt string
	// JSON asks the provider for a single JSON object when it supports a JSON mode.
	JSON bool
	// Schema is an optional JSON schema hint for the expected object.
	Schema map[string]any
}

type Response struct {
	Text     string
	Provider string
	Model    string
}

type LanguageModel interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// TransientError marks a failure worth retrying: rate limiting, server errors, network
// failures and attempt timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient model error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// CallError is returned once a model call has exhausted its attempts.
type CallError struct {
	Task     Task
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("model call %s failed after %d attempt(s): %v", e.Task, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func transientStatus(status int) bool {
	return status == 429 || status >= 500
}

// classifyTransport wraps network failures as transient. Cancellation by the caller is
// returned unchanged.
func classifyTransport(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}
	return err
}
