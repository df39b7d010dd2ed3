// Package metrics holds the Prometheus collectors for the annotation
// pipeline and the text-generation collaborator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups every metric the pipeline records. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	// llmCalls counts collaborator round-trips by provider and status
	// ("success" or an error class).
	llmCalls *prometheus.CounterVec

	// llmDuration measures collaborator round-trip latency.
	llmDuration *prometheus.HistogramVec

	// attempts counts annotation attempts by field and outcome
	// ("accepted", "rejected", "empty").
	attempts *prometheus.CounterVec

	// quotaBackoffs counts quota-exceeded backoff sleeps by field.
	quotaBackoffs *prometheus.CounterVec

	// fatal counts annotation aborts by field and reason.
	fatal *prometheus.CounterVec

	// files counts analyzed files by status ("ok", "failed").
	files *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		llmCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gentleman",
				Subsystem: "llm",
				Name:      "calls_total",
				Help:      "Total number of text-generation round-trips.",
			},
			[]string{"provider", "status"},
		),
		llmDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gentleman",
				Subsystem: "llm",
				Name:      "call_duration_seconds",
				Help:      "Duration of text-generation round-trips in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "status"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gentleman",
				Subsystem: "annotate",
				Name:      "attempts_total",
				Help:      "Annotation attempts by field and outcome.",
			},
			[]string{"field", "outcome"},
		),
		quotaBackoffs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gentleman",
				Subsystem: "annotate",
				Name:      "quota_backoffs_total",
				Help:      "Backoff sleeps caused by quota-exceeded answers.",
			},
			[]string{"field"},
		),
		fatal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gentleman",
				Subsystem: "annotate",
				Name:      "fatal_total",
				Help:      "Annotations aborted by field and reason.",
			},
			[]string{"field", "reason"},
		),
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gentleman",
				Subsystem: "pipeline",
				Name:      "files_total",
				Help:      "Analyzed files by status.",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.llmCalls, c.llmDuration, c.attempts, c.quotaBackoffs, c.fatal, c.files)
	}
	return c
}

// ObserveLLMCall records one collaborator round-trip.
func (c *Collectors) ObserveLLMCall(provider, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.llmCalls.WithLabelValues(provider, status).Inc()
	c.llmDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

// Attempt records the outcome of one annotation attempt.
func (c *Collectors) Attempt(field, outcome string) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(field, outcome).Inc()
}

// QuotaBackoff records one quota backoff sleep.
func (c *Collectors) QuotaBackoff(field string) {
	if c == nil {
		return
	}
	c.quotaBackoffs.WithLabelValues(field).Inc()
}

// Fatal records an aborted annotation.
func (c *Collectors) Fatal(field, reason string) {
	if c == nil {
		return
	}
	c.fatal.WithLabelValues(field, reason).Inc()
}

// File records a finished file.
func (c *Collectors) File(status string) {
	if c == nil {
		return
	}
	c.files.WithLabelValues(status).Inc()
}
