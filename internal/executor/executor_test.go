package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rev/internal/agent/ports"
	"rev/internal/task"
	"rev/internal/testutil"
	"rev/internal/tools/builtin"
	"rev/internal/toolregistry"
	"rev/internal/workspace"
)

func newTestExecutor(t *testing.T, llm ports.LLMClient) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	resolver, err := workspace.NewResolver(dir)
	require.NoError(t, err)

	registry := toolregistry.NewRegistry()
	require.NoError(t, builtin.RegisterAll(registry, builtin.FileToolConfig{Resolver: resolver}))
	dispatcher := toolregistry.NewDispatcher(toolregistry.DispatcherConfig{Registry: registry})

	return New(Config{
		LLM:        llm,
		Dispatcher: dispatcher,
		Registry:   registry,
		Resolver:   resolver,
	}), dir
}

func planWith(t *task.Task) *task.Plan {
	plan := task.NewPlan("test request")
	plan.Add(t)
	return plan
}

func TestDispatchRunsToolLoopAndCompletes(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		ports.ChatResponse{ToolCalls: []ports.ToolCall{
			{ID: "c1", Name: "file_write", Arguments: map[string]any{
				"path": "lib/app.py", "content": "x = 1\n",
			}},
		}},
		testutil.Text("Wrote lib/app.py with the new constant."),
	)
	ex, dir := newTestExecutor(t, llm)

	tk := task.New(task.ActionEdit, "Create lib/app.py with x = 1")
	out := ex.Dispatch(context.Background(), planWith(tk), tk)

	assert.Equal(t, task.StatusCompleted, out.Status)
	require.Len(t, tk.Events, 1)
	assert.Equal(t, "file_write", tk.Events[0].Tool)
	assert.Equal(t, "lib/app.py", tk.Result["path_rel"])

	content, err := os.ReadFile(filepath.Join(dir, "lib", "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(content))
}

func TestDispatchSentinels(t *testing.T) {
	cases := []struct {
		reply      string
		wantStatus task.Status
		wantFatal  bool
		wantReplan bool
	}{
		{"[RECOVERY_REQUESTED] cannot find the module", task.StatusFailed, false, true},
		{"[FINAL_FAILURE] workspace is corrupt", task.StatusFailed, true, false},
		{"[USER_REJECTED] declined the change", task.StatusStopped, false, false},
	}
	for _, tc := range cases {
		llm := testutil.NewScriptedLLM(testutil.Text(tc.reply))
		ex, _ := newTestExecutor(t, llm)

		tk := task.New(task.ActionEdit, "Edit lib/app.py")
		out := ex.Dispatch(context.Background(), planWith(tk), tk)

		assert.Equal(t, tc.wantStatus, out.Status, tc.reply)
		assert.Equal(t, tc.wantFatal, out.Fatal, tc.reply)
		assert.Equal(t, tc.wantReplan, out.ReplanRequested, tc.reply)
		assert.Equal(t, tc.wantStatus, tk.Status, tc.reply)
	}
}

func TestDispatchRecoversEmbeddedToolCall(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		testutil.Text(`I will now write the file: file_write({"path": "note.txt", "content": "hi"})`),
		testutil.Text("Done."),
	)
	ex, dir := newTestExecutor(t, llm)

	tk := task.New(task.ActionEdit, "Write note.txt")
	out := ex.Dispatch(context.Background(), planWith(tk), tk)

	assert.Equal(t, task.StatusCompleted, out.Status)
	require.Len(t, tk.Events, 1)
	content, err := os.ReadFile(filepath.Join(dir, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))
}

func TestDispatchCreateDirectoryFastPath(t *testing.T) {
	llm := testutil.NewScriptedLLM() // must never be called
	ex, dir := newTestExecutor(t, llm)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib", "app"), 0o755))

	tk := task.New(task.ActionCreateDirectory, "Create directory lib/app")
	out := ex.Dispatch(context.Background(), planWith(tk), tk)

	assert.Equal(t, task.StatusCompleted, out.Status)
	assert.Equal(t, true, tk.Result["skipped"])
	assert.Zero(t, llm.Calls())
}

func TestDispatchCoercesCreateDirectoryWithPyFile(t *testing.T) {
	llm := testutil.NewScriptedLLM(testutil.Text("Created the file."))
	ex, _ := newTestExecutor(t, llm)

	tk := task.New(task.ActionCreateDirectory, "Create lib/util.py with helpers")
	ex.Dispatch(context.Background(), planWith(tk), tk)
	assert.Equal(t, task.ActionAdd, tk.Action)
}

func TestDispatchRefusesToolOutsideProfile(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		ports.ChatResponse{ToolCalls: []ports.ToolCall{
			{ID: "c1", Name: "file_write", Arguments: map[string]any{
				"path": "hack.txt", "content": "x",
			}},
		}},
		testutil.Text("Summary of findings."),
	)
	ex, dir := newTestExecutor(t, llm)

	tk := task.New(task.ActionRead, "Read lib/app.py")
	out := ex.Dispatch(context.Background(), planWith(tk), tk)

	assert.Equal(t, task.StatusCompleted, out.Status)
	assert.Empty(t, tk.Events)
	_, statErr := os.Stat(filepath.Join(dir, "hack.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDispatchNormalizesTypoActions(t *testing.T) {
	llm := testutil.NewScriptedLLM(testutil.Text("Done."))
	ex, _ := newTestExecutor(t, llm)

	tk := task.New("edti", "Fix lib/app.py")
	ex.Dispatch(context.Background(), planWith(tk), tk)
	assert.Equal(t, task.ActionEdit, tk.Action)
}

func TestRecoverToolCallShapes(t *testing.T) {
	call, ok := recoverToolCall(`{"name": "file_read", "arguments": {"path": "a.py"}}`)
	require.True(t, ok)
	assert.Equal(t, "file_read", call.Name)
	assert.Equal(t, "a.py", call.Arguments["path"])

	call, ok = recoverToolCall(`Let me check: list_dir({"path": "lib"})`)
	require.True(t, ok)
	assert.Equal(t, "list_dir", call.Name)

	_, ok = recoverToolCall("Just a plain sentence about code.")
	assert.False(t, ok)
}
