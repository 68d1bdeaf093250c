package builtin

import (
	"context"
	"os"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
)

type fileRead struct {
	cfg FileToolConfig
}

// NewFileRead reads a file inside the workspace.
func NewFileRead(cfg FileToolConfig) ports.ToolExecutor {
	return &fileRead{cfg: cfg}
}

func (t *fileRead) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	resolved, fail := resolvePath(t.cfg, call, "file_read", "path", "read")
	if fail != nil {
		return fail, nil
	}

	content, err := os.ReadFile(resolved.Abs)
	if err != nil {
		return failResult(call, toolerr.Classify(err, "file_read", err.Error())), nil
	}
	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  string(content),
		Metadata: pathMetadata(resolved),
	}, nil
}

func (t *fileRead) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "file_read",
		Description: "Read file contents",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "File path, relative to the workspace"},
			},
			Required: []string{"path"},
		},
	}
}

func (t *fileRead) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "file_read", Version: "1.0.0", Category: "file_operations"}
}
