package assistant

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/agencydesk/backend/internal/database"
	"github.com/agencydesk/backend/internal/events"
)

// errNotRollbackable is the per-id message for ineligible entries.
const errNotRollbackable = "Action not rollbackable"

// Rollback reverses applied entries by re-writing their before-state.
// Callers pass ids in original-application order; the pipeline processes
// them most-recent-first. Ineligible ids never abort the batch, and a failed
// reversal leaves the entry completed so it can be retried.
func (p *Pipeline) Rollback(ctx context.Context, tenantID string, actionIDs []string) []RollbackResult {
	results := make([]RollbackResult, 0, len(actionIDs))
	for i := len(actionIDs) - 1; i >= 0; i-- {
		results = append(results, p.rollbackOne(ctx, tenantID, actionIDs[i]))
	}
	return results
}

func (p *Pipeline) rollbackOne(ctx context.Context, tenantID, actionID string) RollbackResult {
	entry, err := p.store.Get(tenantID, actionID)
	if err != nil {
		return RollbackResult{ActionID: actionID, Error: err.Error()}
	}

	// Only completed entries with a captured before-state can be reversed.
	// This also rejects double-reversal: a rolled_back entry is no longer
	// completed.
	if entry == nil || entry.Status != database.ActionStatusCompleted || entry.BeforeState == nil {
		p.observeRollback(ctx, tenantID, actionID, "ineligible")
		return RollbackResult{ActionID: actionID, Error: errNotRollbackable}
	}

	var change ChangeItem
	if err := json.Unmarshal(entry.ActionPayload, &change); err != nil {
		return RollbackResult{ActionID: actionID, Error: "corrupt action payload: " + err.Error()}
	}

	if err := p.dispatchWrite(ctx, entry.ResourceType, entry.ResourceID, change.Field, *entry.BeforeState); err != nil {
		// The write failed; the entry stays completed and the attempt can
		// be retried without corrupting the audit trail.
		p.observeRollback(ctx, tenantID, actionID, "failed")
		return RollbackResult{ActionID: actionID, Error: err.Error()}
	}

	if _, err := p.store.UpdateStatus(tenantID, actionID, database.ActionStatusCompleted, map[string]interface{}{
		"status": database.ActionStatusRolledBack,
	}); err != nil {
		slog.Error("failed to mark action rolled back", "action_id", actionID, "error", err)
	}
	p.observeRollback(ctx, tenantID, actionID, "rolled_back")
	return RollbackResult{ActionID: actionID, Success: true}
}

func (p *Pipeline) observeRollback(ctx context.Context, tenantID, actionID, status string) {
	if p.metrics != nil {
		p.metrics.Rollbacks.WithLabelValues(status).Inc()
	}
	if p.bus != nil && status == "rolled_back" {
		_ = p.bus.Publish(ctx, &events.Event{
			Type:     events.EventActionRolledBack,
			Source:   "assistant",
			TenantID: tenantID,
			Payload:  map[string]interface{}{"action_id": actionID},
		})
	}
}
