package assistant

import (
	"encoding/json"
	"fmt"
)

// RiskTier classifies what a tool is allowed to do during an agent run.
type RiskTier string

const (
	// TierRead tools call through to the site and return data.
	TierRead RiskTier = "read"
	// TierProposalGated tools are never executed during a run; their inputs
	// feed the proposal the operator reviews.
	TierProposalGated RiskTier = "proposal_gated"
	// TierDirectExecute tools run immediately. Reserved for operational,
	// low-risk-to-reverse actions.
	TierDirectExecute RiskTier = "direct_execute"
)

// ToolName is a typed tool identifier. Dispatch is a total match over these
// constants — the registry refuses to start if a tool lacks a dispatch arm.
type ToolName string

const (
	ToolListPages     ToolName = "list_pages"
	ToolGetPage       ToolName = "get_page"
	ToolListPosts     ToolName = "list_posts"
	ToolGetPost       ToolName = "get_post"
	ToolListMedia     ToolName = "list_media"
	ToolGetMediaItem  ToolName = "get_media_item"
	ToolListPlugins   ToolName = "list_plugins"
	ToolListUsers     ToolName = "list_users"
	ToolListMenuItems ToolName = "list_menu_items"
	ToolAnalyzeImage  ToolName = "analyze_image"

	ToolProposeChanges ToolName = "propose_changes"

	ToolUpdatePageField     ToolName = "update_page_field"
	ToolUpdatePostField     ToolName = "update_post_field"
	ToolUpdateMediaField    ToolName = "update_media_field"
	ToolUpdateMenuItemField ToolName = "update_menu_item_field"
	ToolTogglePlugin        ToolName = "toggle_plugin"
	ToolCreateMenuItem      ToolName = "create_menu_item"

	ToolClearCache            ToolName = "clear_cache"
	ToolUpdateCore            ToolName = "update_core"
	ToolUpdatePlugin          ToolName = "update_plugin"
	ToolUpdateTheme           ToolName = "update_theme"
	ToolCreateUser            ToolName = "create_user"
	ToolDeleteUser            ToolName = "delete_user"
	ToolToggleMaintenanceMode ToolName = "toggle_maintenance_mode"
)

// SchemaField is one typed input parameter of a tool.
type SchemaField struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, boolean, integer
	Required    bool     `json:"required"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolDefinition is a registered tool: name, input schema, risk tier.
// Definitions are immutable and loaded once at process start.
type ToolDefinition struct {
	Name        ToolName
	Description string
	Tier        RiskTier
	Params      []SchemaField
}

// Registry is the static catalog of tools available to the agent.
type Registry struct {
	tools map[ToolName]ToolDefinition
	order []ToolName
}

var schemaFieldTypes = map[string]bool{
	"string":  true,
	"boolean": true,
	"integer": true,
	"array":   true,
}

// NewRegistry builds the static catalog. A malformed definition is a
// configuration error: callers are expected to treat it as fatal at startup.
func NewRegistry() (*Registry, error) {
	r := &Registry{tools: make(map[ToolName]ToolDefinition)}
	for _, def := range defaultTools() {
		if err := validateDefinition(def); err != nil {
			return nil, fmt.Errorf("tool %q: %w", def.Name, err)
		}
		if _, dup := r.tools[def.Name]; dup {
			return nil, fmt.Errorf("tool %q: duplicate definition", def.Name)
		}
		r.tools[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

func validateDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("empty name")
	}
	switch def.Tier {
	case TierRead, TierProposalGated, TierDirectExecute:
	default:
		return fmt.Errorf("invalid risk tier %q", def.Tier)
	}
	for _, p := range def.Params {
		if p.Name == "" {
			return fmt.Errorf("parameter with empty name")
		}
		if !schemaFieldTypes[p.Type] {
			return fmt.Errorf("parameter %q: invalid type %q", p.Name, p.Type)
		}
	}
	return nil
}

// List returns all tool definitions in registration order. Pure, no side
// effects.
func (r *Registry) List() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Get retrieves a tool definition by name.
func (r *Registry) Get(name ToolName) (ToolDefinition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// ValidateArgs checks raw tool-call arguments against the tool's input
// schema and returns the decoded argument map.
func (r *Registry) ValidateArgs(name ToolName, raw json.RawMessage) (map[string]interface{}, error) {
	def, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	args := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
		}
	}

	for _, p := range def.Params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func checkType(p SchemaField, v interface{}) error {
	switch p.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string", p.Name)
		}
		if len(p.Enum) > 0 {
			for _, e := range p.Enum {
				if s == e {
					return nil
				}
			}
			return fmt.Errorf("parameter %q must be one of %v", p.Name, p.Enum)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", p.Name)
		}
	case "integer":
		// JSON numbers decode as float64
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("parameter %q must be an integer", p.Name)
		}
	case "array":
		if _, ok := v.([]interface{}); !ok {
			return fmt.Errorf("parameter %q must be an array", p.Name)
		}
	}
	return nil
}
