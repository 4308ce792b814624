package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agencydesk/backend/internal/database"
	"github.com/agencydesk/backend/internal/llm"
)

// ============================================================================
// SHARED TEST FAKES
// ============================================================================

// fakeSite records every call made against the site and lets tests fail
// specific operations.
type fakeSite struct {
	mu    sync.Mutex
	calls []string

	pages     []map[string]interface{}
	failWrite error
	failRead  error
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages: []map[string]interface{}{
			{"id": "12", "title": "Home", "content": "Welcome"},
		},
	}
}

func (f *fakeSite) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSite) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeSite) writeCalls() []string {
	var writes []string
	for _, c := range f.callLog() {
		switch {
		case len(c) >= 7 && c[:7] == "update_",
			len(c) >= 7 && c[:7] == "create_",
			len(c) >= 7 && c[:7] == "toggle_",
			len(c) >= 7 && c[:7] == "delete_":
			writes = append(writes, c)
		}
	}
	return writes
}

func (f *fakeSite) ListPages(ctx context.Context) ([]map[string]interface{}, error) {
	f.record("list_pages")
	return f.pages, f.failRead
}

func (f *fakeSite) GetPage(ctx context.Context, id string) (map[string]interface{}, error) {
	f.record("get_page:" + id)
	if f.failRead != nil {
		return nil, f.failRead
	}
	return map[string]interface{}{"id": id, "title": "Home"}, nil
}

func (f *fakeSite) ListPosts(ctx context.Context) ([]map[string]interface{}, error) {
	f.record("list_posts")
	return nil, f.failRead
}

func (f *fakeSite) GetPost(ctx context.Context, id string) (map[string]interface{}, error) {
	f.record("get_post:" + id)
	return map[string]interface{}{"id": id}, f.failRead
}

func (f *fakeSite) ListMedia(ctx context.Context) ([]map[string]interface{}, error) {
	f.record("list_media")
	return nil, f.failRead
}

func (f *fakeSite) GetMediaItem(ctx context.Context, id string) (map[string]interface{}, error) {
	f.record("get_media_item:" + id)
	return map[string]interface{}{"id": id}, f.failRead
}

func (f *fakeSite) ListPlugins(ctx context.Context) ([]map[string]interface{}, error) {
	f.record("list_plugins")
	return nil, f.failRead
}

func (f *fakeSite) ListUsers(ctx context.Context) ([]map[string]interface{}, error) {
	f.record("list_users")
	return nil, f.failRead
}

func (f *fakeSite) ListMenuItems(ctx context.Context) ([]map[string]interface{}, error) {
	f.record("list_menu_items")
	return nil, f.failRead
}

func (f *fakeSite) UpdatePageField(ctx context.Context, id, field, value string) error {
	f.record(fmt.Sprintf("update_page:%s:%s:%s", id, field, value))
	return f.failWrite
}

func (f *fakeSite) UpdatePostField(ctx context.Context, id, field, value string) error {
	f.record(fmt.Sprintf("update_post:%s:%s:%s", id, field, value))
	return f.failWrite
}

func (f *fakeSite) UpdateMediaField(ctx context.Context, id, field, value string) error {
	f.record(fmt.Sprintf("update_media:%s:%s:%s", id, field, value))
	return f.failWrite
}

func (f *fakeSite) UpdateMenuItemField(ctx context.Context, id, field, value string) error {
	f.record(fmt.Sprintf("update_menu_item:%s:%s:%s", id, field, value))
	return f.failWrite
}

func (f *fakeSite) CreateMenuItem(ctx context.Context, title, url, parentID string) (map[string]interface{}, error) {
	f.record(fmt.Sprintf("create_menu_item:%s:%s:%s", title, url, parentID))
	if f.failWrite != nil {
		return nil, f.failWrite
	}
	return map[string]interface{}{"id": "99", "title": title}, nil
}

func (f *fakeSite) TogglePlugin(ctx context.Context, plugin string, active bool) (map[string]interface{}, error) {
	f.record(fmt.Sprintf("toggle_plugin:%s:%t", plugin, active))
	if f.failWrite != nil {
		return nil, f.failWrite
	}
	return map[string]interface{}{"plugin": plugin, "active": active}, nil
}

func (f *fakeSite) ClearCache(ctx context.Context) error {
	f.record("clear_cache")
	return f.failWrite
}

func (f *fakeSite) UpdateCore(ctx context.Context) (map[string]interface{}, error) {
	f.record("update_core")
	return map[string]interface{}{"version": "6.6"}, f.failWrite
}

func (f *fakeSite) UpdatePlugin(ctx context.Context, plugin string) (map[string]interface{}, error) {
	f.record("update_plugin_pkg:" + plugin)
	return map[string]interface{}{"plugin": plugin}, f.failWrite
}

func (f *fakeSite) UpdateTheme(ctx context.Context, theme string) (map[string]interface{}, error) {
	f.record("update_theme_pkg:" + theme)
	return map[string]interface{}{"theme": theme}, f.failWrite
}

func (f *fakeSite) CreateUser(ctx context.Context, username, email, role string) (map[string]interface{}, error) {
	f.record(fmt.Sprintf("create_user:%s:%s:%s", username, email, role))
	return map[string]interface{}{"username": username}, f.failWrite
}

func (f *fakeSite) DeleteUser(ctx context.Context, id string) error {
	f.record("delete_user:" + id)
	return f.failWrite
}

func (f *fakeSite) SetMaintenanceMode(ctx context.Context, enabled bool) error {
	f.record(fmt.Sprintf("toggle_maintenance:%t", enabled))
	return f.failWrite
}

// fakeVision answers analyze_image calls with fixed text and usage.
type fakeVision struct {
	text  string
	usage llm.Usage
	err   error
}

func (f *fakeVision) DescribeImage(ctx context.Context, imageURL, prompt string) (string, llm.Usage, error) {
	return f.text, f.usage, f.err
}

// scriptedModel replays a fixed sequence of model responses.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	requests  []llm.ChatRequest
	err       error
}

func (m *scriptedModel) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

// fakeRecorder captures the single Record call a run is required to make.
type fakeRecorder struct {
	mu      sync.Mutex
	calls   int
	usage   llm.Usage
	iters   int
	outcome string
}

func (r *fakeRecorder) Record(tenantID, websiteID string, usage llm.Usage, iterations int, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.usage = usage
	r.iters = iterations
	r.outcome = outcome
}

// memStore is an in-memory ActionStore that enforces the same
// compare-and-swap transition rule as the Supabase-backed store. It records
// every transition for assertions.
type memStore struct {
	mu          sync.Mutex
	next        int
	entries     map[string]*database.ActionQueueEntryRow
	inserted    []string
	transitions []string // "<id>:<from>-><to>"

	failInsert error
	failUpdate error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*database.ActionQueueEntryRow)}
}

func (s *memStore) Insert(entry *database.ActionQueueEntryRow) (*database.ActionQueueEntryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return nil, s.failInsert
	}
	s.next++
	stored := *entry
	stored.ID = fmt.Sprintf("act-%d", s.next)
	s.entries[stored.ID] = &stored
	s.inserted = append(s.inserted, stored.ID)
	return &stored, nil
}

func (s *memStore) Get(tenantID, id string) (*database.ActionQueueEntryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.TenantID != tenantID {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (s *memStore) UpdateStatus(tenantID, id, fromStatus string, fields map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return false, s.failUpdate
	}
	entry, ok := s.entries[id]
	if !ok || entry.TenantID != tenantID || entry.Status != fromStatus {
		return false, nil
	}
	for k, v := range fields {
		switch k {
		case "status":
			entry.Status = v.(string)
		case "error_message":
			entry.ErrorMessage = v.(string)
		case "after_state":
			after := v.(string)
			entry.AfterState = &after
		case "completed_at":
			entry.CompletedAt = v.(string)
		}
	}
	s.transitions = append(s.transitions, fmt.Sprintf("%s:%s->%s", id, fromStatus, entry.Status))
	return true, nil
}

func (s *memStore) ListRecent(tenantID string, limit int) ([]database.ActionQueueEntryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.ActionQueueEntryRow
	for i := len(s.inserted) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.entries[s.inserted[i]]
		if entry.TenantID == tenantID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *memStore) entry(id string) *database.ActionQueueEntryRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id]
}

// mustRegistry builds the static catalog or stops the test.
func mustRegistry(t interface{ Fatalf(string, ...interface{}) }) *Registry {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

// mustExecutor wires an executor over the fakes or stops the test.
func mustExecutor(t interface{ Fatalf(string, ...interface{}) }, registry *Registry, site *fakeSite, vision VisionModel) *Executor {
	executor, err := NewExecutor(registry, site, vision)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return executor
}
