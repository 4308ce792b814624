package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/agencydesk/backend/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// AGENT LOOP TESTS
// ============================================================================

func newTestAgent(t *testing.T, model ModelClient, site *fakeSite, recorder RunRecorder) *Agent {
	registry := mustRegistry(t)
	executor := mustExecutor(t, registry, site, &fakeVision{text: "ok"})
	return NewAgent(model, registry, executor, recorder)
}

func textResponse(content string, usage llm.Usage) *llm.ChatResponse {
	return &llm.ChatResponse{Content: content, Usage: usage}
}

func toolResponse(usage llm.Usage, calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{ToolCalls: calls, Usage: usage}
}

func TestAgentRun_DirectAnswerWithoutTools(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{
		textResponse("Your site has 14 pages.", llm.Usage{InputTokens: 120, OutputTokens: 15}),
	}}
	recorder := &fakeRecorder{}
	agent := newTestAgent(t, model, newFakeSite(), recorder)

	result, err := agent.Run(context.Background(), "tenant-1", "site-1", "How many pages do I have?")
	require.NoError(t, err)

	assert.Equal(t, "message", result.Type)
	assert.Equal(t, "Your site has 14 pages.", result.Message)
	assert.Nil(t, result.Proposal)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, llm.Usage{InputTokens: 120, OutputTokens: 15}, result.Usage)

	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, "completed", recorder.outcome)
}

func TestAgentRun_SeedsPolicyAndCommand(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{textResponse("done", llm.Usage{})}}
	agent := newTestAgent(t, model, newFakeSite(), nil)

	_, err := agent.Run(context.Background(), "t", "w", "list my plugins")
	require.NoError(t, err)

	require.Len(t, model.requests, 1)
	msgs := model.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "list my plugins", msgs[1].Content)
	assert.Len(t, model.requests[0].Tools, 23)
}

func TestAgentRun_ToolResultsCorrelatedByCallID(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{
		toolResponse(llm.Usage{InputTokens: 200, OutputTokens: 30},
			llm.ToolCall{ID: "call_a", Name: "list_pages", Arguments: json.RawMessage(`{}`)},
			llm.ToolCall{ID: "call_b", Name: "get_page", Arguments: json.RawMessage(`{"page_id":"12"}`)},
		),
		textResponse("Found it.", llm.Usage{InputTokens: 250, OutputTokens: 10}),
	}}
	site := newFakeSite()
	agent := newTestAgent(t, model, site, nil)

	result, err := agent.Run(context.Background(), "t", "w", "inspect the homepage")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)

	// Second request carries the assistant turn plus one tool message per call
	require.Len(t, model.requests, 2)
	msgs := model.requests[1].Messages
	require.Len(t, msgs, 5) // system, user, assistant, tool, tool
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "tool", msgs[3].Role)
	assert.Equal(t, "call_a", msgs[3].ToolCallID)
	assert.Equal(t, "tool", msgs[4].Role)
	assert.Equal(t, "call_b", msgs[4].ToolCallID)

	// Usage accumulated across both turns
	assert.Equal(t, llm.Usage{InputTokens: 450, OutputTokens: 40}, result.Usage)
}

func TestAgentRun_ProposalCapturedAndReturned(t *testing.T) {
	proposalArgs := `{
		"description": "Rename the homepage",
		"changes": [
			{"resource_type": "page", "resource_id": "12", "field": "title",
			 "current_value": "Home", "proposed_value": "Welcome"}
		]
	}`
	model := &scriptedModel{responses: []*llm.ChatResponse{
		toolResponse(llm.Usage{InputTokens: 100},
			llm.ToolCall{ID: "c1", Name: "propose_changes", Arguments: json.RawMessage(proposalArgs)}),
		textResponse("I staged one change for your review.", llm.Usage{OutputTokens: 20}),
	}}
	site := newFakeSite()
	recorder := &fakeRecorder{}
	agent := newTestAgent(t, model, site, recorder)

	result, err := agent.Run(context.Background(), "t", "w", "rename the homepage to Welcome")
	require.NoError(t, err)

	require.NotNil(t, result.Proposal)
	assert.Equal(t, "Rename the homepage", result.Proposal.Description)
	require.Len(t, result.Proposal.Changes, 1)
	change := result.Proposal.Changes[0]
	assert.Equal(t, ResourcePage, change.ResourceType)
	assert.Equal(t, "12", change.ResourceID)
	assert.Equal(t, "Home", change.CurrentValue)
	assert.Equal(t, "Welcome", change.ProposedValue)

	// The proposal carries the run's total usage
	assert.Equal(t, result.Usage, result.Proposal.Usage)

	// Planning never wrote to the site
	assert.Empty(t, site.callLog())
}

func TestAgentRun_LaterProposalReplacesEarlier(t *testing.T) {
	first := `{"description":"v1","changes":[{"resource_type":"page","resource_id":"1","field":"title","current_value":"A","proposed_value":"B"}]}`
	second := `{"description":"v2","changes":[{"resource_type":"post","resource_id":"7","field":"status","current_value":"publish","proposed_value":"draft"}]}`
	model := &scriptedModel{responses: []*llm.ChatResponse{
		toolResponse(llm.Usage{}, llm.ToolCall{ID: "c1", Name: "propose_changes", Arguments: json.RawMessage(first)}),
		toolResponse(llm.Usage{}, llm.ToolCall{ID: "c2", Name: "propose_changes", Arguments: json.RawMessage(second)}),
		textResponse("Revised the plan.", llm.Usage{}),
	}}
	agent := newTestAgent(t, model, newFakeSite(), nil)

	result, err := agent.Run(context.Background(), "t", "w", "unpublish the post instead")
	require.NoError(t, err)

	require.NotNil(t, result.Proposal)
	assert.Equal(t, "v2", result.Proposal.Description)
	require.Len(t, result.Proposal.Changes, 1)
	assert.Equal(t, ResourcePost, result.Proposal.Changes[0].ResourceType)
}

func TestAgentRun_ToolFailureFedBackNotFatal(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{
		toolResponse(llm.Usage{}, llm.ToolCall{ID: "c1", Name: "list_plugins", Arguments: json.RawMessage(`{}`)}),
		textResponse("I could not reach the site.", llm.Usage{}),
	}}
	site := newFakeSite()
	site.failRead = errors.New("timeout contacting site")
	agent := newTestAgent(t, model, site, nil)

	result, err := agent.Run(context.Background(), "t", "w", "list plugins")
	require.NoError(t, err)
	assert.Equal(t, "message", result.Type)

	// The error surfaced to the model as a structured payload
	msgs := model.requests[1].Messages
	toolMsg := msgs[len(msgs)-1]
	assert.Equal(t, "tool", toolMsg.Role)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(toolMsg.Content), &payload))
	assert.Contains(t, payload["error"], "timeout contacting site")
}

func TestAgentRun_InvalidArgumentsFedBack(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{
		toolResponse(llm.Usage{}, llm.ToolCall{ID: "c1", Name: "get_page", Arguments: json.RawMessage(`{}`)}),
		textResponse("Let me try again.", llm.Usage{}),
	}}
	site := newFakeSite()
	agent := newTestAgent(t, model, site, nil)

	result, err := agent.Run(context.Background(), "t", "w", "open the page")
	require.NoError(t, err)
	assert.Equal(t, "message", result.Type)
	assert.Empty(t, site.callLog(), "invalid call must not reach the site")

	toolMsg := model.requests[1].Messages[3]
	assert.Contains(t, toolMsg.Content, "page_id")
}

func TestAgentRun_ModelErrorAbortsAndRecords(t *testing.T) {
	model := &scriptedModel{err: errors.New("upstream 500")}
	recorder := &fakeRecorder{}
	agent := newTestAgent(t, model, newFakeSite(), recorder)

	result, err := agent.Run(context.Background(), "t", "w", "anything")
	require.Error(t, err)
	assert.Nil(t, result)

	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, "model_error", recorder.outcome)
	assert.Equal(t, 1, recorder.iters)
}

func TestAgentRun_IterationCapReturnsGuidance(t *testing.T) {
	// The model asks for another read on every turn and never concludes.
	var responses []*llm.ChatResponse
	for i := 0; i < MaxIterations+5; i++ {
		responses = append(responses, toolResponse(llm.Usage{InputTokens: 10},
			llm.ToolCall{ID: "c", Name: "list_pages", Arguments: json.RawMessage(`{}`)}))
	}
	model := &scriptedModel{responses: responses}
	recorder := &fakeRecorder{}
	agent := newTestAgent(t, model, newFakeSite(), recorder)

	result, err := agent.Run(context.Background(), "t", "w", "audit everything")
	require.NoError(t, err)

	assert.Equal(t, "error", result.Type)
	assert.Contains(t, result.Message, "smaller")
	assert.Equal(t, MaxIterations, result.Iterations)
	assert.Equal(t, llm.Usage{InputTokens: 10 * MaxIterations}, result.Usage)

	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, "iteration_cap", recorder.outcome)
	assert.Equal(t, MaxIterations, recorder.iters)
}

func TestParseProposal_RejectsEmptyChanges(t *testing.T) {
	_, err := parseProposal(map[string]interface{}{
		"description": "empty",
		"changes":     []interface{}{},
	})
	require.Error(t, err)
}
