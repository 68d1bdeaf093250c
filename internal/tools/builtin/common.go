// Package builtin provides the reference tool set: file operations, text
// search, command execution, and the Python module splitter. Every tool that
// takes a path resolves it through the workspace resolver before touching the
// filesystem.
package builtin

import (
	"errors"
	"fmt"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
	"rev/internal/workspace"
)

// FileToolConfig carries the shared dependencies for builtin tools.
type FileToolConfig struct {
	Resolver *workspace.Resolver
}

// RegisterAll registers the full builtin tool set on a registry.
func RegisterAll(registry ports.ToolRegistry, cfg FileToolConfig) error {
	tools := []ports.ToolExecutor{
		NewFileRead(cfg),
		NewFileWrite(cfg),
		NewReplaceInFile(cfg),
		NewApplyPatch(cfg),
		NewCreateDirectory(cfg),
		NewListDir(cfg),
		NewSearchText(cfg),
		NewRunCmd(cfg),
		NewSplitModuleClasses(cfg),
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// resolvePath canonicalizes the named string argument. Containment failures
// come back as PERMISSION_DENIED so the recovery logic routes them to the
// user instead of retrying.
func resolvePath(cfg FileToolConfig, call ports.ToolCall, tool, key string, purpose workspace.Purpose) (*workspace.ResolvedPath, *ports.ToolResult) {
	raw, ok := call.Arguments[key].(string)
	if !ok || raw == "" {
		return nil, failResult(call, toolerr.New(toolerr.ValidationError, tool, fmt.Sprintf("missing %q", key)))
	}
	resolved, err := cfg.Resolver.Resolve(raw, purpose)
	if err != nil {
		var perr *workspace.PathError
		if errors.As(err, &perr) {
			return nil, failResult(call, toolerr.New(toolerr.PermissionDenied, tool, perr.Error()))
		}
		return nil, failResult(call, toolerr.Classify(err, tool, err.Error()))
	}
	return resolved, nil
}

func failResult(call ports.ToolCall, terr *toolerr.Error) *ports.ToolResult {
	return &ports.ToolResult{
		CallID:    call.ID,
		Error:     terr,
		ErrorType: string(terr.Kind),
	}
}

func stringArg(call ports.ToolCall, key string) string {
	s, _ := call.Arguments[key].(string)
	return s
}

// pathMetadata is attached to every path-taking tool result so the verifier
// never has to re-resolve raw arguments.
func pathMetadata(resolved *workspace.ResolvedPath) map[string]any {
	return map[string]any{
		"path_abs": resolved.Abs,
		"path_rel": resolved.Rel,
	}
}
