package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
)

type fileWrite struct {
	cfg FileToolConfig
}

// NewFileWrite writes (or overwrites) a file, creating parent directories.
func NewFileWrite(cfg FileToolConfig) ports.ToolExecutor {
	return &fileWrite{cfg: cfg}
}

func (t *fileWrite) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	resolved, fail := resolvePath(t.cfg, call, "file_write", "path", "write")
	if fail != nil {
		return fail, nil
	}
	content, ok := call.Arguments["content"].(string)
	if !ok {
		return failResult(call, toolerr.New(toolerr.ValidationError, "file_write", `missing "content"`)), nil
	}

	_, statErr := os.Stat(resolved.Abs)
	created := os.IsNotExist(statErr)

	if err := os.MkdirAll(filepath.Dir(resolved.Abs), 0o755); err != nil {
		return failResult(call, toolerr.Classify(err, "file_write", err.Error())), nil
	}
	if err := os.WriteFile(resolved.Abs, []byte(content), 0o644); err != nil {
		return failResult(call, toolerr.Classify(err, "file_write", err.Error())), nil
	}

	meta := pathMetadata(resolved)
	meta["bytes_written"] = len(content)
	meta["created"] = created
	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  fmt.Sprintf("wrote %d bytes to %s", len(content), resolved.Rel),
		Metadata: meta,
	}, nil
}

func (t *fileWrite) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "file_write",
		Description: "Write content to a file, creating it and any parent directories as needed",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":    {Type: "string", Description: "File path, relative to the workspace"},
				"content": {Type: "string", Description: "Full file content"},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *fileWrite) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "file_write", Version: "1.0.0", Category: "file_operations", Writing: true}
}
