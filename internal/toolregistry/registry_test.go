package toolregistry

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
)

type fakeTool struct {
	name    string
	writing bool
	execute func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error)
	params  ports.ParameterSchema
}

func (f *fakeTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if f.execute != nil {
		return f.execute(ctx, call)
	}
	return &ports.ToolResult{CallID: call.ID, Content: "ok"}, nil
}

func (f *fakeTool) Definition() ports.ToolDefinition {
	params := f.params
	if params.Type == "" {
		params = ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "target path"},
			},
			Required: []string{"path"},
		}
	}
	return ports.ToolDefinition{Name: f.name, Description: "fake", Parameters: params}
}

func (f *fakeTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: f.name, Version: "1.0.0", Category: "test", Writing: f.writing}
}

func newTestRegistry(t *testing.T, tools ...ports.ToolExecutor) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, tool := range tools {
		require.NoError(t, r.Register(tool))
	}
	return r
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := newTestRegistry(t, &fakeTool{name: "file_read"})
	err := r.Register(&fakeTool{name: "file_read"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestIsWritingClassification(t *testing.T) {
	r := newTestRegistry(t,
		&fakeTool{name: "file_read"},
		&fakeTool{name: "file_write", writing: true},
	)
	assert.False(t, r.IsWriting("file_read"))
	assert.True(t, r.IsWriting("file_write"))
	assert.False(t, r.IsWriting("never_registered"))
}

func TestNormalizeArgsUnwrapAndAliases(t *testing.T) {
	args := map[string]any{
		"arguments": map[string]any{
			"file-path": "lib/x.py",
			"contents":  "print(1)",
			"mode":      "w",
		},
	}
	got := NormalizeArgs(args, "file_write")
	assert.Equal(t, "lib/x.py", got["path"])
	assert.Equal(t, "print(1)", got["content"])
	assert.Equal(t, "w", got["mode"])
	assert.NotContains(t, got, "file_path")
	assert.NotContains(t, got, "contents")
}

func TestNormalizeArgsReplaceToolAliases(t *testing.T) {
	got := NormalizeArgs(map[string]any{
		"old_string": "a",
		"new_string": "b",
		"file":       "lib/x.py",
	}, "replace_in_file")
	assert.Equal(t, "a", got["find"])
	assert.Equal(t, "b", got["replace"])
	assert.Equal(t, "lib/x.py", got["path"])
}

func TestNormalizeArgsDoesNotClobberCanonicalKey(t *testing.T) {
	got := NormalizeArgs(map[string]any{
		"path": "canonical.py",
		"file": "alias.py",
	}, "file_read")
	assert.Equal(t, "canonical.py", got["path"])
	assert.NotContains(t, got, "file")
}

// Invariant 6: NormalizeArgs is idempotent and preserves non-alias keys.
func TestNormalizeArgsIdempotent(t *testing.T) {
	inputs := []map[string]any{
		{"file-path": "a.py", "contents": "x", "custom_key": 7},
		{"old_string": "a", "new_string": "b"},
		{"path": "a.py", "recursive": true},
	}
	for _, args := range inputs {
		once := NormalizeArgs(args, "replace_in_file")
		twice := NormalizeArgs(once, "replace_in_file")
		assert.Equal(t, once, twice)
	}

	got := NormalizeArgs(map[string]any{"custom_key": 7, "path": "a"}, "file_read")
	assert.Equal(t, 7, got["custom_key"])
}

func TestDispatcherValidationError(t *testing.T) {
	r := newTestRegistry(t, &fakeTool{name: "file_read"})
	d := NewDispatcher(DispatcherConfig{Registry: r})

	// Missing required "path".
	res := d.ExecuteCall(context.Background(), ports.ToolCall{ID: "c1", Name: "file_read", Arguments: map[string]any{}})
	require.Error(t, res.Error)
	assert.Equal(t, string(toolerr.ValidationError), res.ErrorType)
}

func TestDispatcherUnknownTool(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Registry: newTestRegistry(t)})
	out := d.Execute(context.Background(), "nope", nil, "t1")
	assert.Contains(t, out, "NOT_FOUND")
	assert.Contains(t, out, "tool not found")
}

func TestDispatcherClassifiesHandlerErrors(t *testing.T) {
	boom := &fakeTool{
		name: "file_read",
		execute: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
			return nil, fmt.Errorf("open %v: no such file or directory", call.Arguments["path"])
		},
	}
	d := NewDispatcher(DispatcherConfig{Registry: newTestRegistry(t, boom)})

	res := d.ExecuteCall(context.Background(), ports.ToolCall{
		ID: "c1", Name: "file_read", Arguments: map[string]any{"path": "gone.py"}, TaskID: "t1",
	})
	require.Error(t, res.Error)
	assert.Equal(t, string(toolerr.NotFound), res.ErrorType)
	assert.Equal(t, true, res.Metadata["recoverable"])
}

func TestDispatcherTruncatesAndSpills(t *testing.T) {
	big := strings.Repeat("x", 5000)
	tool := &fakeTool{
		name: "file_read",
		execute: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
			return &ports.ToolResult{CallID: call.ID, Content: big}, nil
		},
	}
	artifacts := t.TempDir()
	d := NewDispatcher(DispatcherConfig{
		Registry:      newTestRegistry(t, tool),
		TruncateLimit: 1024,
		ArtifactDir:   artifacts,
	})

	res := d.ExecuteCall(context.Background(), ports.ToolCall{
		ID: "c1", Name: "file_read", Arguments: map[string]any{"path": "big.txt"}, TaskID: "task-9",
	})
	require.NoError(t, res.Error)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Content, "output truncated")
	assert.NotEmpty(t, res.ArtifactRef)
	assert.Equal(t, filepath.Join(artifacts, "task-9"), filepath.Dir(res.ArtifactRef))
}

func TestDispatcherRecordsLastCallPerTask(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Registry: newTestRegistry(t, &fakeTool{name: "file_read"})})

	d.ExecuteCall(context.Background(), ports.ToolCall{
		ID: "c1", Name: "file_read", Arguments: map[string]any{"path": "a.py"}, TaskID: "t1",
	})
	d.ExecuteCall(context.Background(), ports.ToolCall{
		ID: "c2", Name: "file_read", Arguments: map[string]any{"path": "b.py"}, TaskID: "t2",
	})

	last := d.LastCallFor("t1")
	require.NotNil(t, last)
	assert.Equal(t, "a.py", last.Args["path"])
	assert.Nil(t, d.LastCallFor("t3"))
}
