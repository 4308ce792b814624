package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agencydesk/backend/internal/llm"
)

// maxToolResultBytes caps what a read tool may echo back into the model
// context. Oversized results are truncated, not rejected.
const maxToolResultBytes = 16 * 1024

// ToolCapabilityProvider is the site-scoped capability abstraction over the
// remote WordPress installation. Calls are idempotent by caller intent only;
// the executor never assumes a retry is side-effect-free.
type ToolCapabilityProvider interface {
	ListPages(ctx context.Context) ([]map[string]interface{}, error)
	GetPage(ctx context.Context, id string) (map[string]interface{}, error)
	ListPosts(ctx context.Context) ([]map[string]interface{}, error)
	GetPost(ctx context.Context, id string) (map[string]interface{}, error)
	ListMedia(ctx context.Context) ([]map[string]interface{}, error)
	GetMediaItem(ctx context.Context, id string) (map[string]interface{}, error)
	ListPlugins(ctx context.Context) ([]map[string]interface{}, error)
	ListUsers(ctx context.Context) ([]map[string]interface{}, error)
	ListMenuItems(ctx context.Context) ([]map[string]interface{}, error)

	UpdatePageField(ctx context.Context, id, field, value string) error
	UpdatePostField(ctx context.Context, id, field, value string) error
	UpdateMediaField(ctx context.Context, id, field, value string) error
	UpdateMenuItemField(ctx context.Context, id, field, value string) error
	CreateMenuItem(ctx context.Context, title, url, parentID string) (map[string]interface{}, error)
	TogglePlugin(ctx context.Context, plugin string, active bool) (map[string]interface{}, error)

	ClearCache(ctx context.Context) error
	UpdateCore(ctx context.Context) (map[string]interface{}, error)
	UpdatePlugin(ctx context.Context, plugin string) (map[string]interface{}, error)
	UpdateTheme(ctx context.Context, theme string) (map[string]interface{}, error)
	CreateUser(ctx context.Context, username, email, role string) (map[string]interface{}, error)
	DeleteUser(ctx context.Context, id string) error
	SetMaintenanceMode(ctx context.Context, enabled bool) error
}

// VisionModel is the separate model capability used by analyze_image. It is
// read-equivalent: no effect on the remote site.
type VisionModel interface {
	DescribeImage(ctx context.Context, imageURL, prompt string) (string, llm.Usage, error)
}

// execFunc is one dispatch arm: validated args in, structured result out.
type execFunc func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error)

// dispatchTable maps every read and direct-execute tool to its provider
// call. Proposal-gated tools are deliberately absent: they are acknowledged,
// never dispatched, during a run.
var dispatchTable = map[ToolName]execFunc{
	ToolListPages: func(ctx context.Context, p ToolCapabilityProvider, _ map[string]interface{}) (interface{}, error) {
		return p.ListPages(ctx)
	},
	ToolGetPage: func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error) {
		return p.GetPage(ctx, stringArg(args, "page_id"))
	},
	ToolListPosts: func(ctx context.Context, p ToolCapabilityProvider, _ map[string]interface{}) (interface{}, error) {
		return p.ListPosts(ctx)
	},
	ToolGetPost: func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error) {
		return p.GetPost(ctx, stringArg(args, "post_id"))
	},
	ToolListMedia: func(ctx context.Context, p ToolCapabilityProvider, _ map[string]interface{}) (interface{}, error) {
		return p.ListMedia(ctx)
	},
	ToolGetMediaItem: func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error) {
		return p.GetMediaItem(ctx, stringArg(args, "media_id"))
	},
	ToolListPlugins: func(ctx context.Context, p ToolCapabilityProvider, _ map[string]interface{}) (interface{}, error) {
		return p.ListPlugins(ctx)
	},
	ToolListUsers: func(ctx context.Context, p ToolCapabilityProvider, _ map[string]interface{}) (interface{}, error) {
		return p.ListUsers(ctx)
	},
	ToolListMenuItems: func(ctx context.Context, p ToolCapabilityProvider, _ map[string]interface{}) (interface{}, error) {
		return p.ListMenuItems(ctx)
	},

	ToolClearCache: func(ctx context.Context, p ToolCapabilityProvider, _ map[string]interface{}) (interface{}, error) {
		if err := p.ClearCache(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{"cleared": true}, nil
	},
	ToolUpdateCore: func(ctx context.Context, p ToolCapabilityProvider, _ map[string]interface{}) (interface{}, error) {
		return p.UpdateCore(ctx)
	},
	ToolUpdatePlugin: func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error) {
		return p.UpdatePlugin(ctx, stringArg(args, "plugin"))
	},
	ToolUpdateTheme: func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error) {
		return p.UpdateTheme(ctx, stringArg(args, "theme"))
	},
	ToolCreateUser: func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error) {
		return p.CreateUser(ctx, stringArg(args, "username"), stringArg(args, "email"), stringArg(args, "role"))
	},
	ToolDeleteUser: func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error) {
		if err := p.DeleteUser(ctx, stringArg(args, "user_id")); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": true}, nil
	},
	ToolToggleMaintenanceMode: func(ctx context.Context, p ToolCapabilityProvider, args map[string]interface{}) (interface{}, error) {
		enabled := boolArg(args, "enabled")
		if err := p.SetMaintenanceMode(ctx, enabled); err != nil {
			return nil, err
		}
		return map[string]interface{}{"maintenance_mode": enabled}, nil
	},
}

// Executor is the single dispatch point enforcing each tool's declared risk
// tier. Model tool-use decisions are not a trusted boundary; the tier check
// here is.
type Executor struct {
	registry *Registry
	provider ToolCapabilityProvider
	vision   VisionModel
}

// NewExecutor wires the dispatch layer. It fails if any read or
// direct-execute tool in the registry lacks a dispatch arm, so an
// unroutable tool is a startup error rather than a runtime surprise.
func NewExecutor(registry *Registry, provider ToolCapabilityProvider, vision VisionModel) (*Executor, error) {
	for _, def := range registry.List() {
		if def.Tier == TierProposalGated || def.Name == ToolAnalyzeImage {
			continue
		}
		if _, ok := dispatchTable[def.Name]; !ok {
			return nil, fmt.Errorf("tool %q has no dispatch arm", def.Name)
		}
	}
	return &Executor{registry: registry, provider: provider, vision: vision}, nil
}

// Execute runs one validated tool call according to its tier. The returned
// usage is nonzero only for tools backed by a model capability.
func (e *Executor) Execute(ctx context.Context, name ToolName, args map[string]interface{}) (interface{}, llm.Usage, error) {
	def, ok := e.registry.Get(name)
	if !ok {
		return nil, llm.Usage{}, fmt.Errorf("unknown tool %q", name)
	}

	// Proposal-gated tools are acknowledged so the model can assemble a
	// coherent proposal, but no site call ever happens here.
	if def.Tier == TierProposalGated {
		ack := map[string]interface{}{"noted": true}
		for k, v := range args {
			ack[k] = v
		}
		return ack, llm.Usage{}, nil
	}

	if name == ToolAnalyzeImage {
		text, usage, err := e.vision.DescribeImage(ctx, stringArg(args, "image_url"), stringArg(args, "prompt"))
		if err != nil {
			return nil, usage, err
		}
		return map[string]interface{}{"analysis": text}, usage, nil
	}

	fn := dispatchTable[name]
	result, err := fn(ctx, e.provider, args)
	if err != nil {
		return nil, llm.Usage{}, err
	}
	if def.Tier == TierRead {
		return capResult(result), llm.Usage{}, nil
	}
	return result, llm.Usage{}, nil
}

// capResult truncates oversized read results so they fit the model context.
func capResult(result interface{}) interface{} {
	data, err := json.Marshal(result)
	if err != nil || len(data) <= maxToolResultBytes {
		return result
	}
	return map[string]interface{}{
		"truncated": true,
		"preview":   string(data[:maxToolResultBytes]),
	}
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}
