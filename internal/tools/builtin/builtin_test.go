package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
	"rev/internal/workspace"
)

func newTestConfig(t *testing.T) (FileToolConfig, string) {
	t.Helper()
	dir := t.TempDir()
	resolver, err := workspace.NewResolver(dir)
	require.NoError(t, err)
	return FileToolConfig{Resolver: resolver}, dir
}

func call(args map[string]any) ports.ToolCall {
	return ports.ToolCall{ID: "c1", Arguments: args}
}

func writeFixture(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileReadAndWriteRoundtrip(t *testing.T) {
	cfg, dir := newTestConfig(t)
	ctx := context.Background()

	res, err := NewFileWrite(cfg).Execute(ctx, call(map[string]any{
		"path": "lib/app.py", "content": "print(1)\n",
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, true, res.Metadata["created"])
	assert.Equal(t, "lib/app.py", res.Metadata["path_rel"])

	res, err = NewFileRead(cfg).Execute(ctx, call(map[string]any{"path": "lib/app.py"}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, "print(1)\n", res.Content)
	assert.Equal(t, filepath.Join(dir, "lib", "app.py"), res.Metadata["path_abs"])
}

func TestPathEscapeIsPermissionDenied(t *testing.T) {
	cfg, _ := newTestConfig(t)
	ctx := context.Background()

	for _, tool := range []ports.ToolExecutor{
		NewFileRead(cfg), NewFileWrite(cfg), NewCreateDirectory(cfg),
	} {
		res, err := tool.Execute(ctx, call(map[string]any{
			"path": "../../etc/passwd", "content": "x",
		}))
		require.NoError(t, err)
		require.Error(t, res.Error)
		assert.Equal(t, string(toolerr.PermissionDenied), res.ErrorType)
		assert.Contains(t, res.Error.Error(), "outside allowed workspace roots")
	}
}

func TestReplaceInFileCountsOccurrences(t *testing.T) {
	cfg, dir := newTestConfig(t)
	writeFixture(t, dir, "a.py", "x = 1\ny = 1\n")

	res, err := NewReplaceInFile(cfg).Execute(context.Background(), call(map[string]any{
		"path": "a.py", "find": "= 1", "replace": "= 2",
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 2, res.Metadata["replaced"])

	content, _ := os.ReadFile(filepath.Join(dir, "a.py"))
	assert.Equal(t, "x = 2\ny = 2\n", string(content))
}

func TestReplaceInFileNoOpReportsZero(t *testing.T) {
	cfg, dir := newTestConfig(t)
	writeFixture(t, dir, "a.py", "x = 1\n")

	res, err := NewReplaceInFile(cfg).Execute(context.Background(), call(map[string]any{
		"path": "a.py", "find": "not present", "replace": "y",
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 0, res.Metadata["replaced"])
	assert.Contains(t, res.Content, "no occurrences")
}

func TestApplyPatchReportsHunks(t *testing.T) {
	cfg, dir := newTestConfig(t)
	before := "line one\nline two\nline three\n"
	after := "line one\nline 2\nline three\n"
	writeFixture(t, dir, "a.txt", before)

	dmp := diffmatchpatch.New()
	patchText := dmp.PatchToText(dmp.PatchMake(before, after))

	res, err := NewApplyPatch(cfg).Execute(context.Background(), call(map[string]any{
		"path": "a.txt", "patch": patchText,
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 1, res.Metadata["applied_hunks"])

	content, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	assert.Equal(t, after, string(content))
}

func TestApplyPatchNoOpOnDivergedFile(t *testing.T) {
	cfg, dir := newTestConfig(t)
	writeFixture(t, dir, "a.txt", "completely different content entirely\n")

	dmp := diffmatchpatch.New()
	patchText := dmp.PatchToText(dmp.PatchMake("alpha beta gamma delta\n", "alpha beta GAMMA delta\n"))

	res, err := NewApplyPatch(cfg).Execute(context.Background(), call(map[string]any{
		"path": "a.txt", "patch": patchText,
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 0, res.Metadata["applied_hunks"])
}

func TestCreateDirectoryIsIdempotent(t *testing.T) {
	cfg, _ := newTestConfig(t)
	ctx := context.Background()
	tool := NewCreateDirectory(cfg)

	res, err := tool.Execute(ctx, call(map[string]any{"path": "lib/app"}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, false, res.Metadata["skipped"])
	assert.Equal(t, "lib/app", res.Metadata["dir_path"])

	res, err = tool.Execute(ctx, call(map[string]any{"path": "lib/app"}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, true, res.Metadata["skipped"])
}

func TestListDirMarksDirectories(t *testing.T) {
	cfg, dir := newTestConfig(t)
	writeFixture(t, dir, "lib/app.py", "")
	writeFixture(t, dir, "readme.md", "")

	res, err := NewListDir(cfg).Execute(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Contains(t, res.Content, "lib/")
	assert.Contains(t, res.Content, "readme.md")
	assert.Equal(t, 2, res.Metadata["entry_count"])
}

func TestSearchTextCountsMatches(t *testing.T) {
	cfg, dir := newTestConfig(t)
	writeFixture(t, dir, "a.py", "def handler():\n    pass\n")
	writeFixture(t, dir, "sub/b.py", "def other_handler():\n    pass\n")
	writeFixture(t, dir, ".git/config", "handler\n")

	res, err := NewSearchText(cfg).Execute(context.Background(), call(map[string]any{
		"pattern": `def \w*handler`,
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 2, res.Metadata["matches"])
	assert.Contains(t, res.Content, "a.py:1")
	assert.NotContains(t, res.Content, ".git")

	res, err = NewSearchText(cfg).Execute(context.Background(), call(map[string]any{
		"pattern": "nothing_matches_this",
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 0, res.Metadata["matches"])
}

func TestRunCmdReportsExitCode(t *testing.T) {
	cfg, _ := newTestConfig(t)
	ctx := context.Background()
	tool := NewRunCmd(cfg)

	res, err := tool.Execute(ctx, call(map[string]any{"command": "echo hello"}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 0, res.Metadata["rc"])
	assert.Contains(t, res.Metadata["stdout"], "hello")

	res, err = tool.Execute(ctx, call(map[string]any{"command": "exit 4"}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 4, res.Metadata["rc"])
}

func TestRunCmdBlocksDangerousCommands(t *testing.T) {
	cfg, _ := newTestConfig(t)

	res, err := NewRunCmd(cfg).Execute(context.Background(), call(map[string]any{
		"command": "sudo rm -rf /",
	}))
	require.NoError(t, err)
	require.Error(t, res.Error)
	assert.Equal(t, string(toolerr.PermissionDenied), res.ErrorType)
	assert.Equal(t, true, res.Metadata["blocked"])
}

func TestRunCmdTimeout(t *testing.T) {
	cfg, _ := newTestConfig(t)

	res, err := NewRunCmd(cfg).Execute(context.Background(), call(map[string]any{
		"command": "sleep 5", "timeout_seconds": 0.2,
	}))
	require.NoError(t, err)
	require.Error(t, res.Error)
	assert.Equal(t, string(toolerr.Timeout), res.ErrorType)
	assert.Equal(t, true, res.Metadata["timeout"])
	assert.Equal(t, -1, res.Metadata["rc"])
}

const fixtureModule = `import os
from dataclasses import dataclass


VERSION = "1.0"


@dataclass
class OrderBook:
    depth: int = 10

    def best_bid(self):
        return None


class TradeEngine:
    def __init__(self):
        self.book = OrderBook()

    def run(self):
        pass


def helper():
    return VERSION
`

func TestSplitModuleClasses(t *testing.T) {
	cfg, dir := newTestConfig(t)
	writeFixture(t, dir, "lib/app.py", fixtureModule)

	res, err := NewSplitModuleClasses(cfg).Execute(context.Background(), call(map[string]any{
		"path": "lib/app.py",
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 2, res.Metadata["classes_split"])
	assert.Equal(t, "lib/app", res.Metadata["package_dir"])
	assert.Equal(t, "lib/app/__init__.py", res.Metadata["package_init"])

	// The flat module is gone; the package replaces it.
	_, statErr := os.Stat(filepath.Join(dir, "lib", "app.py"))
	assert.True(t, os.IsNotExist(statErr))

	orderBook, err := os.ReadFile(filepath.Join(dir, "lib", "app", "order_book.py"))
	require.NoError(t, err)
	assert.Contains(t, string(orderBook), "@dataclass\nclass OrderBook:")
	assert.Contains(t, string(orderBook), "from dataclasses import dataclass")

	engine, err := os.ReadFile(filepath.Join(dir, "lib", "app", "trade_engine.py"))
	require.NoError(t, err)
	assert.Contains(t, string(engine), "class TradeEngine:")

	init, err := os.ReadFile(filepath.Join(dir, "lib", "app", "__init__.py"))
	require.NoError(t, err)
	assert.Contains(t, string(init), "from .order_book import OrderBook")
	assert.Contains(t, string(init), "from .trade_engine import TradeEngine")
	assert.Contains(t, string(init), `"OrderBook",`)
	assert.Contains(t, string(init), `"TradeEngine",`)
	// Module-level code survives in the package init.
	assert.Contains(t, string(init), `VERSION = "1.0"`)
	assert.Contains(t, string(init), "def helper():")
}

func TestSplitModuleClassesNoClassesIsNoOp(t *testing.T) {
	cfg, dir := newTestConfig(t)
	writeFixture(t, dir, "lib/util.py", "def helper():\n    return 1\n")

	res, err := NewSplitModuleClasses(cfg).Execute(context.Background(), call(map[string]any{
		"path": "lib/util.py",
	}))
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, 0, res.Metadata["classes_split"])

	// Untouched.
	_, statErr := os.Stat(filepath.Join(dir, "lib", "util.py"))
	assert.NoError(t, statErr)
}

func TestCamelToSnake(t *testing.T) {
	cases := map[string]string{
		"OrderBook":   "order_book",
		"TradeEngine": "trade_engine",
		"HTTPServer":  "http_server",
		"Simple":      "simple",
		"parseJSON":   "parse_json",
	}
	for in, want := range cases {
		assert.Equal(t, want, camelToSnake(in), in)
	}
}

func TestRegisterAll(t *testing.T) {
	cfg, _ := newTestConfig(t)
	registry := &capturingRegistry{}
	require.NoError(t, RegisterAll(registry, cfg))
	assert.GreaterOrEqual(t, len(registry.registered), 9)
}

type capturingRegistry struct {
	registered []string
}

func (r *capturingRegistry) Register(tool ports.ToolExecutor) error {
	r.registered = append(r.registered, tool.Metadata().Name)
	return nil
}

func (r *capturingRegistry) Get(name string) (ports.ToolExecutor, error) { return nil, nil }
func (r *capturingRegistry) List() []ports.ToolDefinition               { return nil }
func (r *capturingRegistry) IsWriting(name string) bool                 { return false }
