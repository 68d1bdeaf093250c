package builtin

import (
	"context"
	"fmt"
	"os"

	"rev/internal/agent/ports"
	"rev/internal/diff"
	"rev/internal/toolerr"
)

type applyPatch struct {
	cfg FileToolConfig
}

// NewApplyPatch applies a patch to a file. applied_hunks=0 means nothing
// landed; the verifier treats that as a no-op.
func NewApplyPatch(cfg FileToolConfig) ports.ToolExecutor {
	return &applyPatch{cfg: cfg}
}

func (t *applyPatch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	resolved, fail := resolvePath(t.cfg, call, "apply_patch", "path", "write")
	if fail != nil {
		return fail, nil
	}
	patchText, ok := call.Arguments["patch"].(string)
	if !ok || patchText == "" {
		return failResult(call, toolerr.New(toolerr.ValidationError, "apply_patch", `missing "patch"`)), nil
	}

	raw, err := os.ReadFile(resolved.Abs)
	if err != nil {
		return failResult(call, toolerr.Classify(err, "apply_patch", err.Error())), nil
	}

	patched, applied, err := diff.ApplyPatch(string(raw), patchText)
	if err != nil {
		return failResult(call, toolerr.New(toolerr.SyntaxError, "apply_patch", err.Error())), nil
	}

	meta := pathMetadata(resolved)
	meta["applied_hunks"] = applied
	if applied == 0 {
		return &ports.ToolResult{
			CallID:   call.ID,
			Content:  fmt.Sprintf("no hunks applied to %s; the file likely diverged from the patch context", resolved.Rel),
			Metadata: meta,
		}, nil
	}

	if err := os.WriteFile(resolved.Abs, []byte(patched), 0o644); err != nil {
		return failResult(call, toolerr.Classify(err, "apply_patch", err.Error())), nil
	}
	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  fmt.Sprintf("applied %d hunk(s) to %s", applied, resolved.Rel),
		Metadata: meta,
	}, nil
}

func (t *applyPatch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "apply_patch",
		Description: "Apply a patch to an existing file",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":  {Type: "string", Description: "File path, relative to the workspace"},
				"patch": {Type: "string", Description: "Patch text"},
			},
			Required: []string{"path", "patch"},
		},
	}
}

func (t *applyPatch) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "apply_patch", Version: "1.0.0", Category: "file_operations", Writing: true}
}
