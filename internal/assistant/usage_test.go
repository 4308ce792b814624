package assistant

import (
	"errors"
	"testing"

	"github.com/agencydesk/backend/internal/database"
	"github.com/agencydesk/backend/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsageStore struct {
	rows []*database.AssistantUsageRow
	err  error
}

func (f *fakeUsageStore) InsertAssistantUsage(row *database.AssistantUsageRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func TestEstimateCost(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost(llm.Usage{}))

	// 1M input at $2.50 plus 1M output at $10.00
	cost := EstimateCost(llm.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	assert.InDelta(t, 12.50, cost, 1e-9)
}

func TestUsageTracker_RecordWritesOneRow(t *testing.T) {
	store := &fakeUsageStore{}
	tracker := NewUsageTracker(store, nil)

	tracker.Record("tenant-1", "site-1", llm.Usage{InputTokens: 500, OutputTokens: 80}, 3, "completed")

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "tenant-1", row.TenantID)
	assert.Equal(t, "site-1", row.WebsiteID)
	assert.Equal(t, 500, row.InputTokens)
	assert.Equal(t, 80, row.OutputTokens)
	assert.Equal(t, 3, row.Iterations)
	assert.Equal(t, "completed", row.Outcome)
	assert.InDelta(t, EstimateCost(llm.Usage{InputTokens: 500, OutputTokens: 80}), row.EstimatedCost, 1e-9)
}

func TestUsageTracker_StoreFailureIsSwallowed(t *testing.T) {
	store := &fakeUsageStore{err: errors.New("db down")}
	tracker := NewUsageTracker(store, nil)

	assert.NotPanics(t, func() {
		tracker.Record("tenant-1", "site-1", llm.Usage{}, 1, "model_error")
	})
}
