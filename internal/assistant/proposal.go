package assistant

import "github.com/agencydesk/backend/internal/llm"

// Resource types the apply/rollback routing understands.
const (
	ResourcePage     = "page"
	ResourcePost     = "post"
	ResourceMedia    = "media"
	ResourceMenuItem = "menu_item"
	ResourcePlugin   = "plugin"
)

// FieldCreate is the pseudo-field used for resource creation changes. Such
// changes have no meaningful before-state and are therefore never eligible
// for rollback.
const FieldCreate = "_create"

// ChangeItem is one discrete field-level change in a proposal. CurrentValue
// is the value observed during the agent run; it becomes the audit entry's
// before-state at apply time without being re-fetched.
type ChangeItem struct {
	ID            string `json:"id,omitempty"`
	ResourceType  string `json:"resource_type"`
	ResourceID    string `json:"resource_id"`
	ResourceTitle string `json:"resource_title,omitempty"`
	Field         string `json:"field"`
	CurrentValue  string `json:"current_value"`
	ProposedValue string `json:"proposed_value"`
}

// Proposal is the structured output of one completed agent run: a
// human-readable description plus the batch of reviewable changes. Proposals
// are ephemeral — they live client-side until applied and are regenerated by
// re-running the command.
type Proposal struct {
	Description string       `json:"description"`
	Changes     []ChangeItem `json:"changes"`
	Usage       llm.Usage    `json:"usage"`
}

// ApplyResult reports the outcome of applying one selected change.
type ApplyResult struct {
	ChangeID string `json:"change_id"`
	Success  bool   `json:"success"`
	ActionID string `json:"action_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RollbackResult reports the outcome of rolling back one action queue entry.
type RollbackResult struct {
	ActionID string `json:"action_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// RunResult is the terminal outcome of one agent run.
type RunResult struct {
	Type       string    `json:"type"` // "message" or "error"
	Message    string    `json:"message"`
	Proposal   *Proposal `json:"proposal,omitempty"`
	Usage      llm.Usage `json:"usage"`
	Iterations int       `json:"iterations"`
}
