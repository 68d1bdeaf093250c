package builtin

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
)

type listDir struct {
	cfg FileToolConfig
}

// NewListDir lists a directory inside the workspace.
func NewListDir(cfg FileToolConfig) ports.ToolExecutor {
	return &listDir{cfg: cfg}
}

func (t *listDir) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if _, ok := call.Arguments["path"]; !ok {
		call.Arguments = map[string]any{"path": "."}
	}
	resolved, fail := resolvePath(t.cfg, call, "list_dir", "path", "read")
	if fail != nil {
		return fail, nil
	}

	entries, err := os.ReadDir(resolved.Abs)
	if err != nil {
		return failResult(call, toolerr.Classify(err, "list_dir", err.Error())), nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	meta := pathMetadata(resolved)
	meta["dir_path"] = resolved.Rel
	meta["entry_count"] = len(names)
	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  fmt.Sprintf("%s:\n%s", resolved.Rel, strings.Join(names, "\n")),
		Metadata: meta,
	}, nil
}

func (t *listDir) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_dir",
		Description: "List directory entries; directories carry a trailing slash",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Directory path, defaults to the workspace root"},
			},
		},
	}
}

func (t *listDir) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "list_dir", Version: "1.0.0", Category: "file_operations"}
}
