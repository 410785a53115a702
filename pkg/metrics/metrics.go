// Package metrics provides Prometheus instrumentation for the orchestration
// engine: model calls, tool executions, approval decisions, and output
// truncations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records orchestration metrics. A nil Recorder is valid and records
// nothing.
type Recorder struct {
	llmRequestsTotal *prometheus.CounterVec
	llmDuration      prometheus.Histogram
	toolsTotal       *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	approvalsTotal   *prometheus.CounterVec
	truncationsTotal prometheus.Counter
}

// NewRecorder creates a Recorder registered on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		llmRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zerog_llm_requests_total",
				Help: "Total number of model requests by status",
			},
			[]string{"status"},
		),
		llmDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zerog_llm_request_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		toolsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zerog_tool_executions_total",
				Help: "Total number of tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zerog_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		approvalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zerog_approvals_total",
				Help: "Total number of approval decisions",
			},
			[]string{"decision"},
		),
		truncationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "zerog_tool_output_truncations_total",
				Help: "Total number of tool outputs truncated to the history ceiling",
			},
		),
	}
}

// ObserveLLMCall records one model request.
func (r *Recorder) ObserveLLMCall(duration time.Duration, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.llmRequestsTotal.WithLabelValues(status).Inc()
	r.llmDuration.Observe(duration.Seconds())
}

// ObserveToolExecution records one tool execution.
func (r *Recorder) ObserveToolExecution(tool, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.toolsTotal.WithLabelValues(tool, status).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveApproval records one approval decision.
func (r *Recorder) ObserveApproval(approved bool) {
	if r == nil {
		return
	}
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	r.approvalsTotal.WithLabelValues(decision).Inc()
}

// ObserveTruncation records one tool output truncation.
func (r *Recorder) ObserveTruncation() {
	if r == nil {
		return
	}
	r.truncationsTotal.Inc()
}
