package assistant

import "github.com/agencydesk/backend/internal/llm"

// defaultTools is the static tool catalog presented to the model. The hard
// boundary between proposal-gated and direct-execute tiers is the engine's
// core safety property; it is enforced by the executor, not model policy.
func defaultTools() []ToolDefinition {
	idParam := func(name, desc string) SchemaField {
		return SchemaField{Name: name, Type: "string", Required: true, Description: desc}
	}
	fieldParams := func(idName, kind string) []SchemaField {
		return []SchemaField{
			idParam(idName, "ID of the "+kind),
			{Name: "field", Type: "string", Required: true, Description: "Field to change, e.g. title, content, alt_text"},
			{Name: "value", Type: "string", Required: true, Description: "New value for the field"},
		}
	}

	return []ToolDefinition{
		// --- Reads ---
		{Name: ToolListPages, Tier: TierRead,
			Description: "List the site's pages with id, title, status and content summary."},
		{Name: ToolGetPage, Tier: TierRead,
			Description: "Fetch a single page with full fields.",
			Params:      []SchemaField{idParam("page_id", "ID of the page")}},
		{Name: ToolListPosts, Tier: TierRead,
			Description: "List the site's posts with id, title, status and content summary."},
		{Name: ToolGetPost, Tier: TierRead,
			Description: "Fetch a single post with full fields.",
			Params:      []SchemaField{idParam("post_id", "ID of the post")}},
		{Name: ToolListMedia, Tier: TierRead,
			Description: "List media library items with id, url, title and alt text."},
		{Name: ToolGetMediaItem, Tier: TierRead,
			Description: "Fetch a single media item with full fields including source url and alt text.",
			Params:      []SchemaField{idParam("media_id", "ID of the media item")}},
		{Name: ToolListPlugins, Tier: TierRead,
			Description: "List installed plugins with slug, name, status and version."},
		{Name: ToolListUsers, Tier: TierRead,
			Description: "List site users with id, username, email and roles."},
		{Name: ToolListMenuItems, Tier: TierRead,
			Description: "List navigation menu items with id, title, url and parent."},
		{Name: ToolAnalyzeImage, Tier: TierRead,
			Description: "Analyze an image URL and return descriptive text, e.g. for writing alt text.",
			Params: []SchemaField{
				idParam("image_url", "Publicly reachable URL of the image"),
				{Name: "prompt", Type: "string", Description: "Optional analysis instruction"},
			}},

		// --- Proposal meta-tool ---
		{Name: ToolProposeChanges, Tier: TierProposalGated,
			Description: "Propose a batch of field-level changes for operator review. Nothing is written until the operator approves. Always include current_value exactly as observed.",
			Params: []SchemaField{
				{Name: "description", Type: "string", Required: true, Description: "Human-readable summary of the proposed batch"},
				{Name: "changes", Type: "array", Required: true, Description: "Array of {resource_type, resource_id, resource_title, field, current_value, proposed_value}"},
			}},

		// --- Proposal-gated writes (acknowledged, never executed in-run) ---
		{Name: ToolUpdatePageField, Tier: TierProposalGated,
			Description: "Stage an update to one field of a page.", Params: fieldParams("page_id", "page")},
		{Name: ToolUpdatePostField, Tier: TierProposalGated,
			Description: "Stage an update to one field of a post.", Params: fieldParams("post_id", "post")},
		{Name: ToolUpdateMediaField, Tier: TierProposalGated,
			Description: "Stage an update to one field of a media item, e.g. alt_text.", Params: fieldParams("media_id", "media item")},
		{Name: ToolUpdateMenuItemField, Tier: TierProposalGated,
			Description: "Stage an update to one field of a menu item.", Params: fieldParams("menu_item_id", "menu item")},
		{Name: ToolTogglePlugin, Tier: TierProposalGated,
			Description: "Stage activating or deactivating a plugin.",
			Params: []SchemaField{
				idParam("plugin", "Plugin slug"),
				{Name: "active", Type: "boolean", Required: true},
			}},
		{Name: ToolCreateMenuItem, Tier: TierProposalGated,
			Description: "Stage creating a new navigation menu item.",
			Params: []SchemaField{
				{Name: "title", Type: "string", Required: true},
				{Name: "url", Type: "string", Required: true},
				{Name: "parent_id", Type: "string"},
			}},

		// --- Direct-execute writes (operational, run immediately) ---
		{Name: ToolClearCache, Tier: TierDirectExecute,
			Description: "Clear the site's page and object caches."},
		{Name: ToolUpdateCore, Tier: TierDirectExecute,
			Description: "Update WordPress core to the latest release."},
		{Name: ToolUpdatePlugin, Tier: TierDirectExecute,
			Description: "Update one plugin to its latest version.",
			Params:      []SchemaField{idParam("plugin", "Plugin slug")}},
		{Name: ToolUpdateTheme, Tier: TierDirectExecute,
			Description: "Update one theme to its latest version.",
			Params:      []SchemaField{idParam("theme", "Theme slug")}},
		{Name: ToolCreateUser, Tier: TierDirectExecute,
			Description: "Create a site user. Explain the intent before calling.",
			Params: []SchemaField{
				{Name: "username", Type: "string", Required: true},
				{Name: "email", Type: "string", Required: true},
				{Name: "role", Type: "string", Required: true,
					Enum: []string{"subscriber", "contributor", "author", "editor", "administrator"}},
			}},
		{Name: ToolDeleteUser, Tier: TierDirectExecute,
			Description: "Delete a site user. Explain the intent before calling.",
			Params:      []SchemaField{idParam("user_id", "ID of the user")}},
		{Name: ToolToggleMaintenanceMode, Tier: TierDirectExecute,
			Description: "Enable or disable maintenance mode.",
			Params: []SchemaField{
				{Name: "enabled", Type: "boolean", Required: true},
			}},
	}
}

// ModelSchemas converts the catalog to the provider wire format.
func (r *Registry) ModelSchemas() []llm.ToolSchema {
	defs := r.List()
	out := make([]llm.ToolSchema, 0, len(defs))
	for _, def := range defs {
		props := map[string]interface{}{}
		var required []string
		for _, p := range def.Params {
			prop := map[string]interface{}{"type": p.Type}
			if p.Type == "array" {
				prop["items"] = map[string]interface{}{"type": "object"}
			}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			props[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		params := map[string]interface{}{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			params["required"] = required
		}
		out = append(out, llm.ToolSchema{
			Name:        string(def.Name),
			Description: def.Description,
			Parameters:  params,
		})
	}
	return out
}
