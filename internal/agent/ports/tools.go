package ports

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ToolExecutor executes a single tool call.
type ToolExecutor interface {
	// Execute runs the tool with given arguments.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)

	// Definition returns the tool's schema for the LLM.
	Definition() ToolDefinition

	// Metadata returns tool metadata.
	Metadata() ToolMetadata
}

// ToolRegistry manages available tools.
type ToolRegistry interface {
	// Register adds a tool to the registry.
	Register(tool ToolExecutor) error

	// Get retrieves a tool by name.
	Get(name string) (ToolExecutor, error)

	// List returns all available tool definitions.
	List() []ToolDefinition

	// IsWriting reports whether the named tool mutates the workspace.
	IsWriting(name string) bool
}

// ToolCall represents a request to execute a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	TaskID    string         `json:"task_id,omitempty"`
}

// ToolResult is the execution result. Error is carried in-band: tool failures
// never unwind through the orchestrator loop.
type ToolResult struct {
	CallID      string         `json:"call_id"`
	Content     string         `json:"content"`
	Error       error          `json:"error,omitempty"`
	ErrorType   string         `json:"error_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Truncated   bool           `json:"truncated,omitempty"`
	ArtifactRef string         `json:"artifact_ref,omitempty"`
}

// MarshalJSON customizes ToolResult JSON encoding to support the error interface.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	type Alias struct {
		CallID      string         `json:"call_id"`
		Content     string         `json:"content"`
		Error       any            `json:"error,omitempty"`
		ErrorType   string         `json:"error_type,omitempty"`
		Metadata    map[string]any `json:"metadata,omitempty"`
		Truncated   bool           `json:"truncated,omitempty"`
		ArtifactRef string         `json:"artifact_ref,omitempty"`
	}

	alias := Alias{
		CallID:      r.CallID,
		Content:     r.Content,
		ErrorType:   r.ErrorType,
		Metadata:    r.Metadata,
		Truncated:   r.Truncated,
		ArtifactRef: r.ArtifactRef,
	}
	if r.Error != nil {
		alias.Error = r.Error.Error()
	}
	return json.Marshal(alias)
}

// UnmarshalJSON accepts both string and object error representations.
func (r *ToolResult) UnmarshalJSON(data []byte) error {
	type Alias struct {
		CallID      string          `json:"call_id"`
		Content     string          `json:"content"`
		Error       json.RawMessage `json:"error"`
		ErrorType   string          `json:"error_type"`
		Metadata    map[string]any  `json:"metadata,omitempty"`
		Truncated   bool            `json:"truncated,omitempty"`
		ArtifactRef string          `json:"artifact_ref,omitempty"`
	}

	var aux Alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.CallID = aux.CallID
	r.Content = aux.Content
	r.ErrorType = aux.ErrorType
	r.Metadata = aux.Metadata
	r.Truncated = aux.Truncated
	r.ArtifactRef = aux.ArtifactRef
	r.Error = nil

	raw := strings.TrimSpace(string(aux.Error))
	if raw == "" || raw == "null" {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Error, &errStr); err == nil {
		if errStr != "" {
			r.Error = errors.New(errStr)
		}
		return nil
	}

	var errObj map[string]any
	if err := json.Unmarshal(aux.Error, &errObj); err == nil {
		if msg, ok := errObj["message"].(string); ok && msg != "" {
			r.Error = errors.New(msg)
			return nil
		}
		if msg, ok := errObj["error"].(string); ok && msg != "" {
			r.Error = errors.New(msg)
			return nil
		}
	}

	r.Error = errors.New(raw)
	return nil
}

// ToolDefinition describes a tool for the LLM.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ToolMetadata contains tool information. Writing tools are the ones whose
// presence in a task's events satisfies the mutating-task invariant.
type ToolMetadata struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
	Writing  bool     `json:"writing"`
}

// ParameterSchema defines tool parameters (JSON Schema format).
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}
