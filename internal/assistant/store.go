package assistant

import (
	"github.com/agencydesk/backend/internal/database"
)

// ActionStore is the durable action queue. The Supabase-backed
// implementation is the production store; tests substitute an in-memory one.
type ActionStore interface {
	// Insert persists a new entry and returns it with its generated id.
	Insert(entry *database.ActionQueueEntryRow) (*database.ActionQueueEntryRow, error)

	// Get returns an entry by id, or nil when it does not exist.
	Get(tenantID, id string) (*database.ActionQueueEntryRow, error)

	// UpdateStatus transitions an entry from fromStatus, applying fields.
	// Returns false when the entry was not in fromStatus — the lifecycle is
	// monotonic and the store refuses transitions out of terminal states.
	UpdateStatus(tenantID, id, fromStatus string, fields map[string]interface{}) (bool, error)

	// ListRecent returns the tenant's newest entries, descending.
	ListRecent(tenantID string, limit int) ([]database.ActionQueueEntryRow, error)
}

// SupabaseActionStore adapts database.SupabaseClient to the ActionStore
// interface.
type SupabaseActionStore struct {
	Client *database.SupabaseClient
}

func (s *SupabaseActionStore) Insert(entry *database.ActionQueueEntryRow) (*database.ActionQueueEntryRow, error) {
	return s.Client.InsertActionQueueEntry(entry)
}

func (s *SupabaseActionStore) Get(tenantID, id string) (*database.ActionQueueEntryRow, error) {
	return s.Client.GetActionQueueEntry(tenantID, id)
}

func (s *SupabaseActionStore) UpdateStatus(tenantID, id, fromStatus string, fields map[string]interface{}) (bool, error) {
	return s.Client.UpdateActionQueueEntryStatus(tenantID, id, fromStatus, fields)
}

func (s *SupabaseActionStore) ListRecent(tenantID string, limit int) ([]database.ActionQueueEntryRow, error) {
	return s.Client.ListActionQueueEntries(tenantID, limit)
}
