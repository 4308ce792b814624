package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the assistant engine.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunIterations  prometheus.Histogram
	TokensTotal    *prometheus.CounterVec
	ChangesApplied *prometheus.CounterVec
	Rollbacks      *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_runs_total",
				Help: "Total agent runs by terminal outcome",
			},
			[]string{"outcome"}, // completed, iteration_cap, model_error
		),

		RunIterations: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assistant_run_iterations",
				Help:    "Model round-trips used per agent run",
				Buckets: []float64{1, 2, 3, 5, 8, 12, 16, 20},
			},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_tokens_total",
				Help: "Token usage across agent runs",
			},
			[]string{"direction"}, // input, output
		),

		ChangesApplied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_changes_applied_total",
				Help: "Approved changes executed against managed sites",
			},
			[]string{"resource_type", "status"}, // status: completed, failed
		),

		Rollbacks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_rollbacks_total",
				Help: "Rollback attempts against action queue entries",
			},
			[]string{"status"}, // rolled_back, failed, ineligible
		),
	}
}
