package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"rev/internal/agent/ports"
	"rev/internal/jsonx"
)

// chatClient speaks the OpenAI-compatible chat completions protocol. It is
// the only transport in the binary; everything inside internal/ consumes
// ports.LLMClient.
type chatClient struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

func newChatClient(baseURL, apiKey, model string) *chatClient {
	return &chatClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                `json:"name"`
		Description string                `json:"description"`
		Parameters  ports.ParameterSchema `json:"parameters"`
	} `json:"function"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage ports.TokenUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat implements ports.LLMClient.
func (c *chatClient) Chat(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	body := map[string]any{
		"model":    c.model,
		"messages": toWireMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		body["tools"] = toWireTools(req.Tools)
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		body["stop"] = req.StopSequences
	}

	encoded, err := jsonx.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	var decoded wireResponse
	if err := jsonx.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode chat response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		msg := httpResp.Status
		if decoded.Error != nil && decoded.Error.Message != "" {
			msg = decoded.Error.Message
		}
		return nil, fmt.Errorf("chat completions: %s", msg)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("chat completions returned no choices")
	}

	choice := decoded.Choices[0]
	out := &ports.ChatResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage:      decoded.Usage,
	}
	for _, call := range choice.Message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			// Malformed arguments still surface the call; the dispatcher
			// rejects them with a structured error the agent can read.
			_ = jsonx.Unmarshal([]byte(call.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, ports.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

// Model implements ports.LLMClient.
func (c *chatClient) Model() string {
	return c.model
}

func toWireMessages(messages []ports.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		wm := wireMessage{Role: msg.Role, Content: msg.Content}
		for _, call := range msg.ToolCalls {
			args, err := jsonx.Marshal(call.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: wireFunction{Name: call.Name, Arguments: string(args)},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []ports.ToolDefinition) []wireToolDef {
	out := make([]wireToolDef, 0, len(tools))
	for _, tool := range tools {
		var def wireToolDef
		def.Type = "function"
		def.Function.Name = tool.Name
		def.Function.Description = tool.Description
		def.Function.Parameters = tool.Parameters
		out = append(out, def)
	}
	return out
}
