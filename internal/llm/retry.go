package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finqa/finqa/internal/observability"
)

// Transient failures are retried once at most.
const maxRetries = 1

type RetryConfig struct {
	// MaxRetries is the number of extra attempts after the first one, capped at 1.
	MaxRetries     int
	AttemptTimeout time.Duration
	Backoff        time.Duration
}

// Retrying bounds every call with a per-attempt timeout and retries transient failures
// at most MaxRetries times.
type Retrying struct {
	next   LanguageModel
	cfg    RetryConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func WithRetry(next LanguageModel, cfg RetryConfig, logger *slog.Logger) *Retrying {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetries > maxRetries {
		cfg.MaxRetries = maxRetries
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retrying{next: next, cfg: cfg, logger: logger, sleep: sleepContext}
}

func (r *Retrying) Complete(ctx context.Context, req Request) (Response, error) {
	maxAttempts := r.cfg.MaxRetries + 1
	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}

		resp, err := r.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		lastErr = err
		if !IsTransient(err) || attempt == maxAttempts {
			break
		}

		observability.LoggerFromContext(ctx, r.logger).WarnContext(ctx, "retrying model call",
			slog.String("task", string(req.Task)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if err := r.sleep(ctx, r.cfg.Backoff); err != nil {
			return Response{}, err
		}
	}
	return Response{}, &CallError{Task: req.Task, Attempts: attempt, Err: lastErr}
}

func (r *Retrying) attempt(ctx context.Context, req Request) (Response, error) {
	attemptCtx := ctx
	cancel := func() {}
	if r.cfg.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	}
	defer cancel()

	start := time.Now()
	resp, err := r.next.Complete(attemptCtx, req)
	elapsed := time.Since(start)

	status := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		status = "canceled"
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		status = "timeout"
		err = &TransientError{Err: fmt.Errorf("attempt timed out after %s: %w", r.cfg.AttemptTimeout, err)}
	case IsTransient(err):
		status = "transient_error"
	default:
		status = "error"
	}
	observability.ObserveModelCall(string(req.Task), status, elapsed)
	return resp, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
