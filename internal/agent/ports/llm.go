package ports

import "context"

// LLMClient represents any LLM provider. The orchestrator core never talks to
// a transport directly; it consumes this contract only.
type LLMClient interface {
	// Chat sends messages (plus optional tool schemas) and returns a reply.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Model returns the model identifier.
	Model() string
}

// ChatRequest contains all parameters for one LLM exchange.
type ChatRequest struct {
	Messages      []Message        `json:"messages"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Temperature   float64          `json:"temperature,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	StopSequences []string         `json:"stop,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

// ChatResponse is the LLM's reply. Tool calls may arrive structured or
// embedded in the content string; callers tolerate both.
type ChatResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
	Usage      TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption for budget accounting.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message represents a conversation message.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}
