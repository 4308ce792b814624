// Package database — AI assistant action queue and usage data models.
package database

import (
	"encoding/json"
	"fmt"

	postgrest "github.com/supabase-community/postgrest-go"
)

// Action queue lifecycle statuses. Transitions are monotonic:
// pending → processing → completed|failed, and completed → rolled_back.
// No entry ever leaves failed or rolled_back.
const (
	ActionStatusPending    = "pending"
	ActionStatusProcessing = "processing"
	ActionStatusCompleted  = "completed"
	ActionStatusFailed     = "failed"
	ActionStatusRolledBack = "rolled_back"
)

// ActionQueueEntryRow mirrors the wp_action_queue Supabase table. It is the
// durable audit record for every state-changing operation the assistant
// performs against a managed WordPress site, and the sole source for rollback.
type ActionQueueEntryRow struct {
	ID            string          `json:"id,omitempty"`
	TenantID      string          `json:"tenant_id"`
	WebsiteID     string          `json:"website_id"`
	InitiatedBy   string          `json:"initiated_by"`
	ActionType    string          `json:"action_type"`
	ActionPayload json.RawMessage `json:"action_payload,omitempty"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	Status        string          `json:"status"`
	BeforeState   *string         `json:"before_state"`
	AfterState    *string         `json:"after_state,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	StartedAt     string          `json:"started_at,omitempty"`
	CompletedAt   string          `json:"completed_at,omitempty"`
}

// AssistantUsageRow mirrors the assistant_usage Supabase table. One row is
// written per agent run regardless of outcome.
type AssistantUsageRow struct {
	ID            string  `json:"id,omitempty"`
	TenantID      string  `json:"tenant_id"`
	WebsiteID     string  `json:"website_id,omitempty"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
	Iterations    int     `json:"iterations"`
	Outcome       string  `json:"outcome"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// ============================================================================
// ACTION QUEUE OPERATIONS
// ============================================================================

// InsertActionQueueEntry inserts a new action queue entry and returns the
// stored row (with the generated id).
func (sc *SupabaseClient) InsertActionQueueEntry(entry *ActionQueueEntryRow) (*ActionQueueEntryRow, error) {
	var result []ActionQueueEntryRow
	_, err := sc.client.From("wp_action_queue").
		Insert(entry, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return nil, fmt.Errorf("insert wp_action_queue: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("insert wp_action_queue: no row returned")
	}
	return &result[0], nil
}

// GetActionQueueEntry retrieves a single entry by id, scoped to a tenant.
// Returns nil (not error) if no row exists.
func (sc *SupabaseClient) GetActionQueueEntry(tenantID, id string) (*ActionQueueEntryRow, error) {
	var results []ActionQueueEntryRow
	_, err := sc.client.From("wp_action_queue").
		Select("*", "", false).
		Eq("id", id).
		Eq("tenant_id", tenantID).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("query wp_action_queue: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// UpdateActionQueueEntryStatus transitions an entry from one status to
// another, setting the given fields. The fromStatus filter makes the update
// a compare-and-set: a row that already left fromStatus is not touched, which
// keeps the lifecycle monotonic even under concurrent callers.
func (sc *SupabaseClient) UpdateActionQueueEntryStatus(tenantID, id, fromStatus string, fields map[string]interface{}) (bool, error) {
	var result []ActionQueueEntryRow
	_, err := sc.client.From("wp_action_queue").
		Update(fields, "", "").
		Eq("id", id).
		Eq("tenant_id", tenantID).
		Eq("status", fromStatus).
		ExecuteTo(&result)
	if err != nil {
		return false, fmt.Errorf("update wp_action_queue: %w", err)
	}
	return len(result) > 0, nil
}

// ListActionQueueEntries retrieves the most recent entries for a tenant,
// newest first.
func (sc *SupabaseClient) ListActionQueueEntries(tenantID string, limit int) ([]ActionQueueEntryRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var results []ActionQueueEntryRow
	_, err := sc.client.From("wp_action_queue").
		Select("*", "", false).
		Eq("tenant_id", tenantID).
		Order("started_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("query wp_action_queue: %w", err)
	}
	return results, nil
}

// ============================================================================
// ASSISTANT USAGE OPERATIONS
// ============================================================================

// InsertAssistantUsage records token usage for one agent run.
func (sc *SupabaseClient) InsertAssistantUsage(row *AssistantUsageRow) error {
	_, _, err := sc.client.From("assistant_usage").
		Insert(row, false, "", "", "").
		Execute()
	return err
}
