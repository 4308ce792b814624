// Package assistant implements the agentic change-management engine for
// managed WordPress sites: a bounded model/tool loop that turns an operator
// command into a reviewable proposal, an apply step that executes approved
// changes against the site while journaling them to the action queue, and a
// rollback step that restores before-state from that queue.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agencydesk/backend/internal/llm"
)

// MaxIterations bounds model round-trips for one run.
const MaxIterations = 20

// systemPolicy is the fixed instruction seeded into every run.
const systemPolicy = `You are the site assistant for a managed WordPress site.
Work in this order:
1. Use read tools first to inspect the current state. Never guess IDs or current values.
2. Content-altering changes (page/post/media/menu fields, plugin toggles, new menu items) must be staged through propose_changes so the operator can review them. Staged write tools only record intent; nothing is written during this conversation.
3. Operational tools (cache, core/plugin/theme updates, user management, maintenance mode) execute immediately. Explain what you are about to do before calling them.
When proposing changes, copy current_value exactly from what you read. Finish with a short summary for the operator.`

// ModelClient is the chat-completion capability injected into the loop.
type ModelClient interface {
	Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// RunRecorder receives per-run usage accounting. Implementations must treat
// failures as non-critical.
type RunRecorder interface {
	Record(tenantID, websiteID string, usage llm.Usage, iterations int, outcome string)
}

// Agent drives one bounded conversation per operator command.
type Agent struct {
	model         ModelClient
	registry      *Registry
	executor      *Executor
	recorder      RunRecorder
	maxIterations int
}

// NewAgent constructs the loop with explicit collaborators. recorder may be
// nil when usage accounting is not wanted (tests).
func NewAgent(model ModelClient, registry *Registry, executor *Executor, recorder RunRecorder) *Agent {
	return &Agent{
		model:         model,
		registry:      registry,
		executor:      executor,
		recorder:      recorder,
		maxIterations: MaxIterations,
	}
}

// Run converts one free-text operator command into a final message, a
// proposal, or an error result. Model transport failures abort the run and
// propagate; everything else resolves into a structured RunResult. Usage is
// recorded in all cases, including the iteration-cap outcome.
func (a *Agent) Run(ctx context.Context, tenantID, websiteID, command string) (*RunResult, error) {
	transcript := []llm.Message{
		{Role: "system", Content: systemPolicy},
		{Role: "user", Content: command},
	}
	schemas := a.registry.ModelSchemas()

	var usage llm.Usage
	var lastProposal *Proposal
	iterations := 0

	record := func(outcome string) {
		if a.recorder != nil {
			a.recorder.Record(tenantID, websiteID, usage, iterations, outcome)
		}
	}

	for iterations < a.maxIterations {
		iterations++

		resp, err := a.model.Complete(ctx, llm.ChatRequest{Messages: transcript, Tools: schemas})
		if err != nil {
			record("model_error")
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		usage.Add(resp.Usage)

		if !resp.HasToolCalls() {
			if lastProposal != nil {
				lastProposal.Usage = usage
			}
			record("completed")
			return &RunResult{
				Type:       "message",
				Message:    resp.Content,
				Proposal:   lastProposal,
				Usage:      usage,
				Iterations: iterations,
			}, nil
		}

		transcript = append(transcript, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results, proposal, toolUsage := a.dispatchCalls(ctx, resp.ToolCalls)
		usage.Add(toolUsage)
		if proposal != nil {
			lastProposal = proposal
		}
		transcript = append(transcript, results...)
	}

	record("iteration_cap")
	return &RunResult{
		Type:       "error",
		Message:    "The command did not complete within the allowed number of steps. Narrow it into a smaller, more specific request and try again.",
		Usage:      usage,
		Iterations: iterations,
	}, nil
}

// dispatchCalls executes all tool calls from a single model turn
// concurrently. Results are appended in call order, but the model correlates
// them by tool-call ID, so ordering carries no meaning.
func (a *Agent) dispatchCalls(ctx context.Context, calls []llm.ToolCall) ([]llm.Message, *Proposal, llm.Usage) {
	results := make([]llm.Message, len(calls))
	proposals := make([]*Proposal, len(calls))
	usages := make([]llm.Usage, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			content, proposal, u := a.runToolCall(ctx, call)
			results[i] = llm.Message{Role: "tool", ToolCallID: call.ID, Content: content}
			proposals[i] = proposal
			usages[i] = u
		}(i, call)
	}
	wg.Wait()

	// Later propose_changes calls within the turn overwrite earlier ones.
	var last *Proposal
	var total llm.Usage
	for i := range calls {
		if proposals[i] != nil {
			last = proposals[i]
		}
		total.Add(usages[i])
	}
	return results, last, total
}

// runToolCall validates and executes one call. Any failure becomes an error
// payload the model can react to; it never aborts the run.
func (a *Agent) runToolCall(ctx context.Context, call llm.ToolCall) (string, *Proposal, llm.Usage) {
	name := ToolName(call.Name)

	args, err := a.registry.ValidateArgs(name, call.Arguments)
	if err != nil {
		return errorPayload(err), nil, llm.Usage{}
	}

	result, usage, err := a.executor.Execute(ctx, name, args)
	if err != nil {
		slog.Warn("tool call failed", "tool", call.Name, "error", err)
		return errorPayload(err), nil, usage
	}

	var proposal *Proposal
	if name == ToolProposeChanges {
		proposal, err = parseProposal(args)
		if err != nil {
			return errorPayload(err), nil, usage
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errorPayload(err), proposal, usage
	}
	return string(payload), proposal, usage
}

func errorPayload(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}

// parseProposal decodes the propose_changes arguments into the run's
// proposal.
func parseProposal(args map[string]interface{}) (*Proposal, error) {
	raw, err := json.Marshal(args["changes"])
	if err != nil {
		return nil, fmt.Errorf("invalid changes payload: %w", err)
	}
	var changes []ChangeItem
	if err := json.Unmarshal(raw, &changes); err != nil {
		return nil, fmt.Errorf("invalid changes payload: %w", err)
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("proposal must contain at least one change")
	}
	desc, _ := args["description"].(string)
	return &Proposal{Description: desc, Changes: changes}, nil
}
