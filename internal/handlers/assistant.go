package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/agencydesk/backend/internal/assistant"
	"github.com/agencydesk/backend/internal/database"
	"github.com/agencydesk/backend/internal/events"
	"github.com/agencydesk/backend/internal/llm"
	"github.com/agencydesk/backend/internal/multitenancy"
	"github.com/agencydesk/backend/internal/wordpress"
)

// =============================================================================
// Assistant Handlers — natural-language site management
// =============================================================================

// ProviderFactory builds a site-management client for a specific website.
// Indirection exists so tests can substitute a fake site.
type ProviderFactory func(site *database.Website) assistant.ToolCapabilityProvider

// DefaultProviderFactory connects to the website's WordPress REST API using
// its stored application password.
func DefaultProviderFactory(site *database.Website) assistant.ToolCapabilityProvider {
	return wordpress.NewClient(site.URL, site.WPUsername, site.WPAppPass)
}

// AssistantHandler serves the command/apply/rollback/history endpoints.
type AssistantHandler struct {
	db           *database.SupabaseClient
	model        assistant.ModelClient
	vision       assistant.VisionModel
	registry     *assistant.Registry
	metrics      *assistant.Metrics
	bus          events.EventBus
	usage        *assistant.UsageTracker
	providerFor  ProviderFactory
	historyLimit int
}

// NewAssistantHandler wires the assistant engine behind HTTP.
func NewAssistantHandler(
	db *database.SupabaseClient,
	model *llm.Client,
	registry *assistant.Registry,
	metrics *assistant.Metrics,
	bus events.EventBus,
	historyLimit int,
) *AssistantHandler {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &AssistantHandler{
		db:           db,
		model:        model,
		vision:       model,
		registry:     registry,
		metrics:      metrics,
		bus:          bus,
		usage:        assistant.NewUsageTracker(db, metrics),
		providerFor:  DefaultProviderFactory,
		historyLimit: historyLimit,
	}
}

// loadWebsite resolves a tenant-scoped website or writes the error response.
func (h *AssistantHandler) loadWebsite(w http.ResponseWriter, r *http.Request, websiteID string) (string, *database.Website, bool) {
	tenantID, err := multitenancy.GetTenantID(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", nil, false
	}
	if websiteID == "" {
		http.Error(w, "website_id is required", http.StatusBadRequest)
		return "", nil, false
	}

	site, err := h.db.GetWebsite(r.Context(), tenantID, websiteID)
	if err != nil {
		slog.Error("website lookup failed", "tenant_id", tenantID, "website_id", websiteID, "error", err)
		http.Error(w, "Website lookup failed", http.StatusInternalServerError)
		return "", nil, false
	}
	if site == nil {
		http.Error(w, "Website not found", http.StatusNotFound)
		return "", nil, false
	}
	return tenantID, site, true
}

// HandleCommand runs the planning loop for a natural-language command.
// POST /api/v1/assistant/command
func (h *AssistantHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WebsiteID string `json:"website_id"`
		Command   string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	tenantID, site, ok := h.loadWebsite(w, r, req.WebsiteID)
	if !ok {
		return
	}

	executor, err := assistant.NewExecutor(h.registry, h.providerFor(site), h.vision)
	if err != nil {
		slog.Error("executor init failed", "error", err)
		http.Error(w, "Assistant unavailable", http.StatusInternalServerError)
		return
	}

	agent := assistant.NewAgent(h.model, h.registry, executor, h.usage)
	result, err := agent.Run(r.Context(), tenantID, req.WebsiteID, req.Command)
	if err != nil {
		slog.Error("assistant run failed", "tenant_id", tenantID, "website_id", req.WebsiteID, "error", err)
		http.Error(w, "Assistant run failed", http.StatusBadGateway)
		return
	}

	if h.bus != nil {
		_ = h.bus.Publish(r.Context(), &events.Event{
			Type:     events.EventRunCompleted,
			Source:   "assistant",
			TenantID: tenantID,
			Payload: map[string]interface{}{
				"website_id":   req.WebsiteID,
				"outcome":      result.Type,
				"has_proposal": result.Proposal != nil,
				"iterations":   result.Iterations,
			},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleApply executes approved changes against the website.
// POST /api/v1/assistant/command/apply
func (h *AssistantHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WebsiteID string                 `json:"website_id"`
		Changes   []assistant.ChangeItem `json:"changes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Changes) == 0 {
		http.Error(w, "changes is required", http.StatusBadRequest)
		return
	}

	tenantID, site, ok := h.loadWebsite(w, r, req.WebsiteID)
	if !ok {
		return
	}

	pipeline := assistant.NewPipeline(
		&assistant.SupabaseActionStore{Client: h.db},
		h.providerFor(site),
		h.bus,
		h.metrics,
	)

	initiatedBy := multitenancy.GetOperatorID(r.Context())
	results := pipeline.Apply(r.Context(), tenantID, req.WebsiteID, initiatedBy, req.Changes)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results": results,
	})
}

// HandleRollback restores previously applied changes, newest first.
// POST /api/v1/assistant/command/rollback
func (h *AssistantHandler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WebsiteID string   `json:"website_id"`
		ActionIDs []string `json:"action_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.ActionIDs) == 0 {
		http.Error(w, "action_ids is required", http.StatusBadRequest)
		return
	}

	tenantID, site, ok := h.loadWebsite(w, r, req.WebsiteID)
	if !ok {
		return
	}

	pipeline := assistant.NewPipeline(
		&assistant.SupabaseActionStore{Client: h.db},
		h.providerFor(site),
		h.bus,
		h.metrics,
	)

	results := pipeline.Rollback(r.Context(), tenantID, req.ActionIDs)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results": results,
	})
}

// HandleHistory lists the tenant's recent action queue entries, newest first.
// GET /api/v1/assistant/command/history
func (h *AssistantHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, err := multitenancy.GetTenantID(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= h.historyLimit {
			limit = n
		}
	}

	entries, err := h.db.ListActionQueueEntries(tenantID, limit)
	if err != nil {
		slog.Error("history lookup failed", "tenant_id", tenantID, "error", err)
		http.Error(w, "History lookup failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []database.ActionQueueEntryRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"actions": entries,
	})
}
