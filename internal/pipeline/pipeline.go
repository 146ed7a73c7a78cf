// Package pipeline answers one question end to end: filter extraction, SQL generation,
// execution and answer synthesis, as a linear state machine over one dataset snapshot.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/llm"
	"github.com/finqa/finqa/internal/nl2sql"
	"github.com/finqa/finqa/internal/observability"
	"github.com/finqa/finqa/internal/query"
)

type State string

const (
	StateStart        State = "start"
	StateExtracting   State = "extracting"
	StateGenerating   State = "generating"
	StateExecuting    State = "executing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

const (
	outcomeAnswered = "answered"
	outcomeDegraded = "degraded"
	outcomeFailed   = "failed"
)

// A stage whose output fails to parse or validate is re-run at most once.
const maxValidationAttempts = 2

type Config struct {
	// ValidationAttempts bounds how often extraction and generation run when the model's
	// output fails to parse or validate. Values above 2 are lowered to 2.
	ValidationAttempts int
	RowLimit           int
	// FallbackRows bounds the rows shown to the synthesizer and in fallback answers.
	FallbackRows int
	Location     *time.Location
	Now          func() time.Time
}

type Request struct {
	Question string
	// AsOf anchors relative dates in the question. Zero means now in Config.Location.
	AsOf time.Time
}

// QueryContext is the per-request record of what the pipeline did.
type QueryContext struct {
	ID             string        `json:"request_id"`
	Question       string        `json:"question"`
	AsOf           time.Time     `json:"as_of"`
	DatasetVersion string        `json:"dataset_version,omitempty"`
	Filter         nl2sql.Filter `json:"filter"`
	SQL            string        `json:"sql,omitempty"`
	Result         query.Result  `json:"-"`
	Answer         string        `json:"answer,omitempty"`
	Degraded       bool          `json:"degraded"`
	State          State         `json:"state"`
	// Attempts counts extraction and generation runs, including retries.
	Attempts int   `json:"attempts"`
	Err      error `json:"-"`
}

type Pipeline struct {
	store       *dataset.Store
	extractor   *nl2sql.Extractor
	generator   *nl2sql.Generator
	engine      query.Engine
	synthesizer *nl2sql.Synthesizer
	cfg         Config
	logger      *slog.Logger
}

func New(store *dataset.Store, model llm.LanguageModel, engine query.Engine, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.ValidationAttempts < 1 {
		cfg.ValidationAttempts = 1
	}
	if cfg.ValidationAttempts > maxValidationAttempts {
		cfg.ValidationAttempts = maxValidationAttempts
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		store:       store,
		extractor:   nl2sql.NewExtractor(model),
		generator:   nl2sql.NewGenerator(model),
		engine:      engine,
		synthesizer: nl2sql.NewSynthesizer(model, cfg.FallbackRows),
		cfg:         cfg,
		logger:      logger,
	}
}

// Ask runs the pipeline for one question. The returned QueryContext is filled as far as the
// pipeline got; on failure the error is a *StageError and QueryContext.State is StateFailed.
func (p *Pipeline) Ask(ctx context.Context, req Request) (QueryContext, error) {
	qc := QueryContext{
		ID:       uuid.NewString(),
		Question: strings.TrimSpace(req.Question),
		AsOf:     req.AsOf,
		State:    StateStart,
	}
	if qc.AsOf.IsZero() {
		qc.AsOf = p.cfg.Now().In(p.cfg.Location)
	}
	logger := observability.LoggerFromContext(ctx, p.logger).With("request_id", qc.ID)

	if qc.Question == "" {
		return p.fail(logger, qc, StateStart, ErrEmptyQuestion)
	}
	snapshot, err := p.store.Current()
	if err != nil {
		return p.fail(logger, qc, StateStart, err)
	}
	qc.DatasetVersion = snapshot.Version()

	err = p.runStage(ctx, logger, &qc, StateExtracting, func() error {
		return p.withValidationRetry(ctx, logger, &qc, StateExtracting, func() error {
			filter, err := p.extractor.Extract(ctx, qc.Question, snapshot.Categories(), snapshot.Merchants())
			qc.Filter = filter
			return err
		})
	})
	if err != nil {
		return p.fail(logger, qc, StateExtracting, err)
	}

	err = p.runStage(ctx, logger, &qc, StateGenerating, func() error {
		return p.withValidationRetry(ctx, logger, &qc, StateGenerating, func() error {
			sql, err := p.generator.Generate(ctx, qc.Question, qc.Filter, qc.AsOf)
			qc.SQL = sql
			var malformed *nl2sql.MalformedSQLError
			if errors.As(err, &malformed) {
				qc.SQL = malformed.SQL
			}
			return err
		})
	})
	if err != nil {
		return p.fail(logger, qc, StateGenerating, err)
	}

	err = p.runStage(ctx, logger, &qc, StateExecuting, func() error {
		result, err := p.engine.Execute(ctx, query.Request{SQL: qc.SQL, Dataset: snapshot, RowLimit: p.cfg.RowLimit})
		qc.Result = result
		return err
	})
	if err != nil {
		return p.fail(logger, qc, StateExecuting, err)
	}

	err = p.runStage(ctx, logger, &qc, StateSynthesizing, func() error {
		answer, err := p.synthesizer.Synthesize(ctx, qc.Question, qc.Filter, qc.Result)
		qc.Answer = answer
		return err
	})
	if err != nil {
		var synthErr *nl2sql.SynthesisError
		if !errors.As(err, &synthErr) || ctx.Err() != nil {
			return p.fail(logger, qc, StateSynthesizing, err)
		}
		observability.IncrementStageFailure(string(StateSynthesizing), CodeModelCallFailed)
		logger.Warn("answer synthesis failed; returning raw results", "error", err)
		qc.Degraded = true
		qc.Answer = nl2sql.FallbackAnswer(qc.Result, qc.Filter, p.cfg.FallbackRows)
	}

	qc.State = StateDone
	outcome := outcomeAnswered
	if qc.Degraded {
		outcome = outcomeDegraded
	}
	observability.ObservePipelineOutcome(outcome)
	logger.Info("question answered",
		"outcome", outcome,
		"rows", len(qc.Result.Rows),
		"attempts", qc.Attempts,
		"filter", qc.Filter.Statement(),
	)
	return qc, nil
}

// runStage checks for cancellation, moves qc into stage and times fn.
func (p *Pipeline) runStage(ctx context.Context, logger *slog.Logger, qc *QueryContext, stage State, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	qc.State = stage
	logger.Debug("pipeline stage started", "stage", stage)
	started := time.Now()
	err := fn()
	observability.ObserveStage(string(stage), time.Since(started))
	return err
}

// withValidationRetry re-runs fn after parse and validation failures, up to
// Config.ValidationAttempts runs in total. Other failures return immediately.
func (p *Pipeline) withValidationRetry(ctx context.Context, logger *slog.Logger, qc *QueryContext, stage State, fn func() error) error {
	for attempt := 1; ; attempt++ {
		qc.Attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !isValidationFailure(err) || attempt >= p.cfg.ValidationAttempts || ctx.Err() != nil {
			return err
		}
		observability.IncrementValidationRetry(string(stage))
		logger.Warn("model output rejected; retrying", "stage", stage, "attempt", attempt, "error", err)
	}
}

func (p *Pipeline) fail(logger *slog.Logger, qc QueryContext, stage State, err error) (QueryContext, error) {
	stageErr := newStageError(stage, err)
	qc.State = StateFailed
	qc.Err = stageErr
	observability.IncrementStageFailure(string(stage), stageErr.Code)
	observability.ObservePipelineOutcome(outcomeFailed)
	logger.Warn("question failed", "stage", stage, "code", stageErr.Code, "error", err)
	return qc, stageErr
}
