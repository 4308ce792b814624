package assistant

import (
	"log/slog"

	"github.com/agencydesk/backend/internal/database"
	"github.com/agencydesk/backend/internal/llm"
)

// Per-token prices for cost estimation. Fixed rate table; updated manually
// when the provider reprices.
const (
	inputTokenRate  = 2.50 / 1_000_000
	outputTokenRate = 10.00 / 1_000_000
)

// UsageStore persists per-run usage rows.
type UsageStore interface {
	InsertAssistantUsage(row *database.AssistantUsageRow) error
}

// UsageTracker records token and cost accounting for each agent run. It is
// non-critical: write failures are logged and swallowed, never surfaced to
// the operator.
type UsageTracker struct {
	store   UsageStore
	metrics *Metrics // optional
}

// NewUsageTracker creates a tracker backed by the given store.
func NewUsageTracker(store UsageStore, metrics *Metrics) *UsageTracker {
	return &UsageTracker{store: store, metrics: metrics}
}

// EstimateCost converts token usage to an estimated dollar cost.
func EstimateCost(usage llm.Usage) float64 {
	return float64(usage.InputTokens)*inputTokenRate + float64(usage.OutputTokens)*outputTokenRate
}

// Record writes one usage row. Called exactly once per run regardless of
// outcome, including iteration-cap and model-error runs.
func (t *UsageTracker) Record(tenantID, websiteID string, usage llm.Usage, iterations int, outcome string) {
	if t.metrics != nil {
		t.metrics.RunsTotal.WithLabelValues(outcome).Inc()
		t.metrics.RunIterations.Observe(float64(iterations))
		t.metrics.TokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
		t.metrics.TokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
	}

	if t.store == nil {
		return
	}
	err := t.store.InsertAssistantUsage(&database.AssistantUsageRow{
		TenantID:      tenantID,
		WebsiteID:     websiteID,
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		EstimatedCost: EstimateCost(usage),
		Iterations:    iterations,
		Outcome:       outcome,
	})
	if err != nil {
		slog.Warn("failed to record assistant usage", "tenant_id", tenantID, "error", err)
	}
}
