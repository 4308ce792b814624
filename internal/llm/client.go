// Package llm provides the chat-completion client used by the assistant
// engine. It speaks the OpenAI-compatible wire protocol so the endpoint can
// be pointed at any compatible provider.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const (
	defaultEndpoint  = "https://api.openai.com/v1/chat/completions"
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 4096
)

// Client is an OpenAI-compatible chat completion client.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

// NewClient constructs a client from explicit settings. Empty values fall
// back to defaults; the API key falls back to OPENAI_API_KEY.
func NewClient(endpoint, model, apiKey string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		endpoint:  endpoint,
		model:     model,
		apiKey:    apiKey,
		maxTokens: defaultMaxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// ============================================================================
// WIRE TYPES (OpenAI chat completions)
// ============================================================================

type wireMessage struct {
	Role       string         `json:"role"`
	Content    interface{}    `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string     `json:"type"`
	Function ToolSchema `json:"function"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ============================================================================
// COMPLETION
// ============================================================================

// Complete sends the transcript plus tool schemas to the model and returns
// either final text or structured tool-call requests.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload := chatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  toWireMessages(req.Messages),
	}
	for _, t := range req.Tools {
		payload.Tools = append(payload.Tools, wireTool{Type: "function", Function: t})
	}

	decoded, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	msg := decoded.Choices[0].Message
	resp := &ChatResponse{
		Content: contentString(msg.Content),
		Usage: Usage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return resp, nil
}

// DescribeImage asks the model's vision capability for descriptive text about
// an image URL. It is a read-only capability with no effect on any site.
func (c *Client) DescribeImage(ctx context.Context, imageURL, prompt string) (string, Usage, error) {
	if prompt == "" {
		prompt = "Describe this image concisely for use as alt text."
	}
	payload := chatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []wireMessage{
			{
				Role: "user",
				Content: []map[string]interface{}{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": imageURL}},
				},
			},
		},
	}

	decoded, err := c.post(ctx, payload)
	if err != nil {
		return "", Usage{}, err
	}
	if len(decoded.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("model returned no choices")
	}
	usage := Usage{
		InputTokens:  decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
	}
	return contentString(decoded.Choices[0].Message.Content), usage, nil
}

func (c *Client) post(ctx context.Context, payload chatCompletionRequest) (*chatCompletionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("model provider: %s", resp.Status)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return &decoded, nil
}

func toWireMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func contentString(v interface{}) string {
	s, _ := v.(string)
	return s
}
