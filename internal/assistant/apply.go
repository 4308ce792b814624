package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agencydesk/backend/internal/database"
	"github.com/agencydesk/backend/internal/events"
)

// Pipeline executes the approved subset of a proposal against the remote
// site and reverses applied entries later, journaling everything through the
// action queue.
type Pipeline struct {
	store    ActionStore
	provider ToolCapabilityProvider
	bus      events.EventBus // optional
	metrics  *Metrics        // optional
}

// NewPipeline wires the apply/rollback pipeline. bus and metrics may be nil.
func NewPipeline(store ActionStore, provider ToolCapabilityProvider, bus events.EventBus, metrics *Metrics) *Pipeline {
	return &Pipeline{store: store, provider: provider, bus: bus, metrics: metrics}
}

// Apply executes the operator-selected changes one at a time. Unselected
// proposal items are simply never passed in and leave no trace. A failure on
// one change never blocks the rest of the batch; partial application is
// visible and individually reversible through the action queue. Sequential
// application keeps the queue's append order deterministic, which rollback's
// reverse-order policy depends on.
func (p *Pipeline) Apply(ctx context.Context, tenantID, websiteID, initiatedBy string, changes []ChangeItem) []ApplyResult {
	results := make([]ApplyResult, 0, len(changes))

	for i, change := range changes {
		changeID := change.ID
		if changeID == "" {
			changeID = fmt.Sprintf("change-%d", i+1)
		}
		result := p.applyOne(ctx, tenantID, websiteID, initiatedBy, changeID, change)
		results = append(results, result)
	}
	return results
}

func (p *Pipeline) applyOne(ctx context.Context, tenantID, websiteID, initiatedBy, changeID string, change ChangeItem) ApplyResult {
	payload, err := json.Marshal(change)
	if err != nil {
		return ApplyResult{ChangeID: changeID, Error: fmt.Sprintf("encode change: %v", err)}
	}

	// Creation changes have no meaningful before-state; everything else
	// snapshots the proposal's observed value. The snapshot is not
	// re-fetched at apply time, so a drifted remote value is overwritten
	// (accepted last-writer-wins behavior).
	var beforeState *string
	actionType := "update_" + change.ResourceType
	if change.Field == FieldCreate {
		actionType = "create_" + change.ResourceType
	} else {
		v := change.CurrentValue
		beforeState = &v
	}

	// The entry must exist, and be in processing, before the remote write is
	// attempted: a crash mid-write still leaves a discoverable processing row.
	entry, err := p.store.Insert(&database.ActionQueueEntryRow{
		TenantID:      tenantID,
		WebsiteID:     websiteID,
		InitiatedBy:   initiatedBy,
		ActionType:    actionType,
		ActionPayload: payload,
		ResourceType:  change.ResourceType,
		ResourceID:    change.ResourceID,
		Status:        database.ActionStatusPending,
		BeforeState:   beforeState,
		StartedAt:     now(),
	})
	if err != nil {
		return ApplyResult{ChangeID: changeID, Error: fmt.Sprintf("record action: %v", err)}
	}

	if _, err := p.store.UpdateStatus(tenantID, entry.ID, database.ActionStatusPending, map[string]interface{}{
		"status": database.ActionStatusProcessing,
	}); err != nil {
		return ApplyResult{ChangeID: changeID, ActionID: entry.ID, Error: fmt.Sprintf("record action: %v", err)}
	}

	writeErr := p.dispatchWrite(ctx, change.ResourceType, change.ResourceID, change.Field, change.ProposedValue)
	if writeErr != nil {
		if _, err := p.store.UpdateStatus(tenantID, entry.ID, database.ActionStatusProcessing, map[string]interface{}{
			"status":        database.ActionStatusFailed,
			"error_message": writeErr.Error(),
			"completed_at":  now(),
		}); err != nil {
			slog.Error("failed to mark action failed", "action_id", entry.ID, "error", err)
		}
		p.observeApply(ctx, tenantID, change, entry.ID, database.ActionStatusFailed)
		return ApplyResult{ChangeID: changeID, ActionID: entry.ID, Error: writeErr.Error()}
	}

	if _, err := p.store.UpdateStatus(tenantID, entry.ID, database.ActionStatusProcessing, map[string]interface{}{
		"status":       database.ActionStatusCompleted,
		"after_state":  change.ProposedValue,
		"completed_at": now(),
	}); err != nil {
		slog.Error("failed to mark action completed", "action_id", entry.ID, "error", err)
	}
	p.observeApply(ctx, tenantID, change, entry.ID, database.ActionStatusCompleted)
	return ApplyResult{ChangeID: changeID, Success: true, ActionID: entry.ID}
}

// dispatchWrite routes one field-level write by resource type. The same
// routing serves apply (proposed value) and rollback (before-state).
func (p *Pipeline) dispatchWrite(ctx context.Context, resourceType, resourceID, field, value string) error {
	switch resourceType {
	case ResourcePage:
		return p.provider.UpdatePageField(ctx, resourceID, field, value)
	case ResourcePost:
		return p.provider.UpdatePostField(ctx, resourceID, field, value)
	case ResourceMedia:
		return p.provider.UpdateMediaField(ctx, resourceID, field, value)
	case ResourceMenuItem:
		if field == FieldCreate {
			return p.createMenuItem(ctx, value)
		}
		return p.provider.UpdateMenuItemField(ctx, resourceID, field, value)
	case ResourcePlugin:
		_, err := p.provider.TogglePlugin(ctx, resourceID, value == "true")
		return err
	default:
		return fmt.Errorf("unsupported resource type %q", resourceType)
	}
}

func (p *Pipeline) createMenuItem(ctx context.Context, proposed string) error {
	var item struct {
		Title    string `json:"title"`
		URL      string `json:"url"`
		ParentID string `json:"parent_id"`
	}
	if err := json.Unmarshal([]byte(proposed), &item); err != nil {
		return fmt.Errorf("invalid menu item payload: %w", err)
	}
	_, err := p.provider.CreateMenuItem(ctx, item.Title, item.URL, item.ParentID)
	return err
}

func (p *Pipeline) observeApply(ctx context.Context, tenantID string, change ChangeItem, actionID, status string) {
	if p.metrics != nil {
		p.metrics.ChangesApplied.WithLabelValues(change.ResourceType, status).Inc()
	}
	if p.bus != nil {
		eventType := events.EventChangeApplied
		if status == database.ActionStatusFailed {
			eventType = events.EventChangeFailed
		}
		_ = p.bus.Publish(ctx, &events.Event{
			Type:     eventType,
			Source:   "assistant",
			TenantID: tenantID,
			Payload: map[string]interface{}{
				"action_id":     actionID,
				"resource_type": change.ResourceType,
				"resource_id":   change.ResourceID,
				"field":         change.Field,
			},
		})
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
