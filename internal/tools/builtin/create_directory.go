package builtin

import (
	"context"
	"fmt"
	"os"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
)

type createDirectory struct {
	cfg FileToolConfig
}

// NewCreateDirectory creates a directory tree. Recreating an existing
// directory succeeds with skipped=true instead of failing.
func NewCreateDirectory(cfg FileToolConfig) ports.ToolExecutor {
	return &createDirectory{cfg: cfg}
}

func (t *createDirectory) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	resolved, fail := resolvePath(t.cfg, call, "create_directory", "path", "write")
	if fail != nil {
		return fail, nil
	}

	meta := pathMetadata(resolved)
	meta["dir_path"] = resolved.Rel

	if info, err := os.Stat(resolved.Abs); err == nil && info.IsDir() {
		meta["skipped"] = true
		return &ports.ToolResult{
			CallID:   call.ID,
			Content:  fmt.Sprintf("directory %s already exists", resolved.Rel),
			Metadata: meta,
		}, nil
	}

	if err := os.MkdirAll(resolved.Abs, 0o755); err != nil {
		return failResult(call, toolerr.Classify(err, "create_directory", err.Error())), nil
	}
	meta["skipped"] = false
	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  fmt.Sprintf("created directory %s", resolved.Rel),
		Metadata: meta,
	}, nil
}

func (t *createDirectory) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "create_directory",
		Description: "Create a directory and any missing parents",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Directory path, relative to the workspace"},
			},
			Required: []string{"path"},
		},
	}
}

func (t *createDirectory) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "create_directory", Version: "1.0.0", Category: "file_operations", Writing: true}
}
