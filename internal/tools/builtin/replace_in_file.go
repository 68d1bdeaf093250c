package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"rev/internal/agent/ports"
	"rev/internal/diff"
	"rev/internal/toolerr"
)

type replaceInFile struct {
	cfg FileToolConfig
	gen *diff.Generator
}

// NewReplaceInFile performs exact-string replacement in a file. A replacement
// count of zero is reported as success with replaced=0 so the verifier can
// flag the no-op.
func NewReplaceInFile(cfg FileToolConfig) ports.ToolExecutor {
	return &replaceInFile{cfg: cfg, gen: diff.NewGenerator(false)}
}

func (t *replaceInFile) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	resolved, fail := resolvePath(t.cfg, call, "replace_in_file", "path", "write")
	if fail != nil {
		return fail, nil
	}
	find, ok := call.Arguments["find"].(string)
	if !ok || find == "" {
		return failResult(call, toolerr.New(toolerr.ValidationError, "replace_in_file", `missing "find"`)), nil
	}
	replace, ok := call.Arguments["replace"].(string)
	if !ok {
		return failResult(call, toolerr.New(toolerr.ValidationError, "replace_in_file", `missing "replace"`)), nil
	}

	raw, err := os.ReadFile(resolved.Abs)
	if err != nil {
		return failResult(call, toolerr.Classify(err, "replace_in_file", err.Error())), nil
	}
	before := string(raw)

	replaced := strings.Count(before, find)
	meta := pathMetadata(resolved)
	meta["replaced"] = replaced
	if replaced == 0 {
		return &ports.ToolResult{
			CallID:   call.ID,
			Content:  fmt.Sprintf("no occurrences of the target string in %s", resolved.Rel),
			Metadata: meta,
		}, nil
	}

	after := strings.ReplaceAll(before, find, replace)
	if err := os.WriteFile(resolved.Abs, []byte(after), 0o644); err != nil {
		return failResult(call, toolerr.Classify(err, "replace_in_file", err.Error())), nil
	}

	result := t.gen.GenerateUnified(before, after, resolved.Rel)
	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  fmt.Sprintf("replaced %d occurrence(s) in %s (%s)", replaced, resolved.Rel, result.FormatSummary()),
		Metadata: meta,
	}, nil
}

func (t *replaceInFile) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "replace_in_file",
		Description: "Replace every occurrence of an exact string in a file",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":    {Type: "string", Description: "File path, relative to the workspace"},
				"find":    {Type: "string", Description: "Exact string to find"},
				"replace": {Type: "string", Description: "Replacement string"},
			},
			Required: []string{"path", "find", "replace"},
		},
	}
}

func (t *replaceInFile) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "replace_in_file", Version: "1.0.0", Category: "file_operations", Writing: true}
}
