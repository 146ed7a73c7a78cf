package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finqa_pipeline_requests_total",
			Help: "Total number of questions processed by outcome (answered, degraded, failed).",
		},
		[]string{"outcome"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finqa_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	pipelineStageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finqa_pipeline_stage_failures_total",
			Help: "Total number of stage failures by stage and error code.",
		},
		[]string{"stage", "code"},
	)
	pipelineValidationRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finqa_pipeline_validation_retries_total",
			Help: "Total number of stage re-runs after a validation-shaped failure.",
		},
		[]string{"stage"},
	)
	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finqa_model_calls_total",
			Help: "Total number of language model call attempts by task and status.",
		},
		[]string{"task", "status"},
	)
	modelCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finqa_model_call_duration_seconds",
			Help:    "Language model call attempt latency by task.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"task"},
	)
	datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "finqa_dataset_rows",
			Help: "Number of rows in the published dataset snapshot.",
		},
	)
	datasetLoadedTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "finqa_dataset_loaded_timestamp_seconds",
			Help: "Unix time at which the published dataset snapshot was built.",
		},
	)
	datasetRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finqa_dataset_refreshes_total",
			Help: "Total number of dataset refresh attempts by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		pipelineStageDurationSeconds,
		pipelineStageFailuresTotal,
		pipelineValidationRetriesTotal,
		modelCallsTotal,
		modelCallDurationSeconds,
		datasetRows,
		datasetLoadedTimestamp,
		datasetRefreshesTotal,
	)
}

func ObservePipelineOutcome(outcome string) {
	pipelineRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementStageFailure(stage, code string) {
	pipelineStageFailuresTotal.WithLabelValues(stage, code).Inc()
}

func IncrementValidationRetry(stage string) {
	pipelineValidationRetriesTotal.WithLabelValues(stage).Inc()
}

func ObserveModelCall(task, status string, elapsed time.Duration) {
	modelCallsTotal.WithLabelValues(task, status).Inc()
	modelCallDurationSeconds.WithLabelValues(task).Observe(elapsed.Seconds())
}

func SetDatasetMetrics(rows int, loadedAt time.Time) {
	if rows < 0 {
		rows = 0
	}
	datasetRows.Set(float64(rows))
	if !loadedAt.IsZero() {
		datasetLoadedTimestamp.Set(float64(loadedAt.Unix()))
	}
}

func IncrementDatasetRefresh(status string) {
	datasetRefreshesTotal.WithLabelValues(status).Inc()
}
