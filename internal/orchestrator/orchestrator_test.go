package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rev/internal/agent/ports"
	"rev/internal/logging"
	"rev/internal/memory"
	"rev/internal/router"
	"rev/internal/task"
	"rev/internal/testutil"
	"rev/internal/toolerr"
	"rev/internal/tools/builtin"
	"rev/internal/toolregistry"
	"rev/internal/workspace"
)

func newTestOrchestrator(t *testing.T, llm ports.LLMClient, mutate func(*Config)) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	resolver, err := workspace.NewResolver(dir)
	require.NoError(t, err)

	registry := toolregistry.NewRegistry()
	require.NoError(t, builtin.RegisterAll(registry, builtin.FileToolConfig{Resolver: resolver}))
	dispatcher := toolregistry.NewDispatcher(toolregistry.DispatcherConfig{Registry: registry})

	cfg := Config{
		LLM:        llm,
		Registry:   registry,
		Dispatcher: dispatcher,
		Resolver:   resolver,
		Logger:     logging.Nop(),
		Mode:       router.Config{Validation: router.ValidationNone},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), dir
}

func toolCall(name string, args map[string]any) ports.ChatResponse {
	return ports.ChatResponse{ToolCalls: []ports.ToolCall{{ID: "c1", Name: name, Arguments: args}}}
}

func seedFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRepeatedActionTripsCircuit(t *testing.T) {
	// The executor keeps requesting recovery; the planner keeps proposing the
	// same edit. The third identical proposal must trip before dispatch.
	llm := testutil.NewScriptedLLM(
		testutil.Text("[EDIT] fix bug in src/app.py"),
		testutil.Text("[RECOVERY_REQUESTED] replace_in_file keeps failing on src/app.py"),
		testutil.Text("[EDIT] fix bug in src/app.py"),
		testutil.Text("[RECOVERY_REQUESTED] replace_in_file keeps failing on src/app.py"),
		testutil.Text("[EDIT] fix bug in src/app.py"),
	)
	o, dir := newTestOrchestrator(t, llm, nil)
	seedFile(t, dir, "src/app.py", "value = 1\n")

	res := o.Run(context.Background(), "fix the bug in src/app.py")

	assert.False(t, res.Success)
	assert.True(t, res.NoRetry)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors, msgRepeatAction)
	assert.Equal(t, 5, llm.Calls())
}

func TestInterruptBeforeRunMakesNoChatCalls(t *testing.T) {
	llm := testutil.NewScriptedLLM()
	o, _ := newTestOrchestrator(t, llm, nil)
	o.Interrupt()

	res := o.Run(context.Background(), "do anything")

	assert.False(t, res.Success)
	assert.True(t, res.Interrupted)
	assert.Zero(t, llm.Calls())
}

func TestGreenAndUnchangedShortCircuits(t *testing.T) {
	llm := testutil.NewScriptedLLM()
	o, dir := newTestOrchestrator(t, llm, nil)
	seedFile(t, dir, "src/app.py", "value = 1\n")

	o.state.LastGreenHash = o.codeHash()
	o.history = []workRecord{
		{Iteration: 1, Action: task.ActionEdit, Status: task.StatusCompleted, Tools: []string{"file_write"}},
		{Iteration: 2, Action: task.ActionRead, Status: task.StatusCompleted, Tools: []string{"file_read"}},
	}

	res := o.Run(context.Background(), "make the tests pass")

	assert.True(t, res.Success)
	assert.Zero(t, llm.Calls())
}

func TestTestRunSkippedWhenCodeUnchanged(t *testing.T) {
	llm := testutil.NewScriptedLLM()
	o, dir := newTestOrchestrator(t, llm, nil)
	seedFile(t, dir, "src/app.py", "value = 1\n")
	o.state.LastGreenHash = o.codeHash()

	plan := task.NewPlan("req")
	res := &Result{Request: "req", Plan: plan}
	tk := task.New(task.ActionTest, "Run pytest -q")

	verdict := o.step(context.Background(), plan, tk, res, 1, true)

	assert.Equal(t, loopContinue, verdict)
	assert.Equal(t, task.StatusCompleted, tk.Status)
	assert.Equal(t, true, tk.Result["skipped"])
	assert.True(t, o.testsBlocked)
	assert.Zero(t, llm.Calls())
}

func TestReadOnlyModeCoercesMutatingTask(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		toolCall("file_read", map[string]any{"path": "src/app.py"}),
		testutil.Text("The error handling already covers the failure path."),
	)
	o, dir := newTestOrchestrator(t, llm, func(cfg *Config) { cfg.ReadOnly = true })
	seedFile(t, dir, "src/app.py", "value = 1\n")

	plan := task.NewPlan("req")
	res := &Result{Request: "req", Plan: plan}
	tk := task.New(task.ActionEdit, "Update src/app.py error handling")

	verdict := o.step(context.Background(), plan, tk, res, 1, true)

	assert.Equal(t, loopContinue, verdict)
	assert.Equal(t, task.ActionReview, tk.Action)
	assert.Contains(t, tk.Description, "read-only mode")
	assert.Equal(t, task.StatusCompleted, tk.Status)

	content, err := os.ReadFile(filepath.Join(dir, "src", "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "value = 1\n", string(content))
}

func TestInconclusiveEditInjectsTargetedTest(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		toolCall("file_write", map[string]any{"path": "src/util.ts", "content": "export const parse = 1;\n"}),
		testutil.Text("Updated the helper."),
	)
	o, dir := newTestOrchestrator(t, llm, func(cfg *Config) {
		cfg.Mode = router.Config{Validation: router.ValidationTargeted}
	})
	seedFile(t, dir, "src/util.ts", "const parse = 1;\n")

	plan := task.NewPlan("req")
	res := &Result{Request: "req", Plan: plan}
	tk := task.New(task.ActionEdit, "Update src/util.ts to export the parse helper")

	verdict := o.step(context.Background(), plan, tk, res, 1, true)

	assert.Equal(t, loopContinue, verdict)
	require.Len(t, o.pendingTasks, 1)
	assert.Equal(t, task.ActionTest, o.pendingTasks[0].Action)
	assert.Contains(t, o.pendingTasks[0].Description, "npm test")
}

func TestKnownFailureRecordedOnce(t *testing.T) {
	o, dir := newTestOrchestrator(t, testutil.NewScriptedLLM(), func(cfg *Config) {})
	store := memory.NewStore(dir)
	o.memory = store

	o.maybeRecordFailure("file_write: path /etc/passwd is outside allowed workspace roots")
	o.maybeRecordFailure("file_read: path /etc/shadow is outside allowed workspace roots")

	rendered, err := store.Render()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(rendered, "Workspace path outside allowed roots"))
}

func TestPreflightFailureTripsCircuit(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		testutil.Text("[READ] inspect missing/file.py"),
		testutil.Text("[READ] inspect missing/file.py"),
		testutil.Text("[READ] inspect missing/file.py"),
	)
	o, _ := newTestOrchestrator(t, llm, nil)

	res := o.Run(context.Background(), "read a file that is not there")

	assert.False(t, res.Success)
	assert.True(t, res.NoRetry)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], msgRepeatPreflight)
	assert.Equal(t, 3, llm.Calls())
}

func TestUngroundedCompletionClaimIsChallengedThenTripped(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		testutil.Text("GOAL_ACHIEVED"),
		toolCall("list_dir", map[string]any{"path": "."}),
		testutil.Text("The workspace only contains the seeded file."),
		testutil.Text("GOAL_ACHIEVED"),
	)
	o, dir := newTestOrchestrator(t, llm, nil)
	seedFile(t, dir, "src/app.py", "value = 1\n")

	res := o.Run(context.Background(), "refactor the app module")

	assert.False(t, res.Success)
	assert.True(t, res.NoRetry)
	assert.Contains(t, res.Errors, msgPlannerExhausted)
	assert.Equal(t, 4, llm.Calls())
}

func TestGroundedCompletionSucceeds(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		testutil.Text("[EDIT] Update src/app.py to return the parsed value"),
		toolCall("file_write", map[string]any{"path": "src/app.py", "content": "def parse():\n    return 2\n"}),
		testutil.Text("Updated the return value."),
		testutil.Text("[READ] Inspect src/app.py"),
		toolCall("file_read", map[string]any{"path": "src/app.py"}),
		testutil.Text("The function returns the parsed value."),
		testutil.Text("GOAL_ACHIEVED"),
	)
	o, dir := newTestOrchestrator(t, llm, nil)
	seedFile(t, dir, "src/app.py", "def parse():\n    return 1\n")

	res := o.Run(context.Background(), "make parse return the parsed value")

	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 7, llm.Calls())

	content, err := os.ReadFile(filepath.Join(dir, "src", "app.py"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "return 2")
}

// stubRunner satisfies verifier.CommandRunner with a canned exit code.
type stubRunner struct {
	rc int
}

func (r *stubRunner) Run(context.Context, string, string) (int, string, string, error) {
	return r.rc, "", "", nil
}

func TestTDDRequiredTestOverridesOtherProposals(t *testing.T) {
	// A source change landed after a red test, so the planner's edit proposal
	// must be replaced by the confirming test run.
	llm := testutil.NewScriptedLLM(
		testutil.Text("[EDIT] Update src/app.py to return the parsed value"),
		testutil.Text("Ran the suite; everything passed."),
	)
	o, dir := newTestOrchestrator(t, llm, func(cfg *Config) {
		cfg.TDDEnabled = true
		cfg.MaxIterations = 1
		cfg.Runner = &stubRunner{}
	})
	seedFile(t, dir, "src/app.py", "value = 1\n")
	o.state.TDDRequireTest = true

	o.Run(context.Background(), "make parse return the parsed value")

	assert.Equal(t, 2, llm.Calls())
	require.Len(t, o.history, 1)
	assert.Equal(t, task.ActionTest, o.history[0].Action)
	assert.False(t, o.state.TDDRequireTest)
	assert.NotEmpty(t, o.state.LastGreenHash)
}

func TestTDDRequiredTestBlocksCompletionClaim(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		testutil.Text("GOAL_ACHIEVED"),
		testutil.Text("Ran the suite; everything passed."),
	)
	o, dir := newTestOrchestrator(t, llm, func(cfg *Config) {
		cfg.TDDEnabled = true
		cfg.MaxIterations = 1
		cfg.Runner = &stubRunner{}
	})
	seedFile(t, dir, "src/app.py", "value = 1\n")
	o.state.TDDRequireTest = true

	res := o.Run(context.Background(), "make parse return the parsed value")

	assert.False(t, res.Success)
	assert.Equal(t, 2, llm.Calls())
	require.Len(t, o.history, 1)
	assert.Equal(t, task.ActionTest, o.history[0].Action)
	assert.False(t, o.state.TDDRequireTest)
}

func TestRecoveryBudgetExhaustionStopsLoop(t *testing.T) {
	// Completing a mutating task without any writing tool fails verification
	// with an UNKNOWN classification, whose budget is two attempts.
	llm := testutil.NewScriptedLLM(
		testutil.Text("[EDIT] Update src/app.py formatting"),
		testutil.Text("Done."),
		testutil.Text("[EDIT] Update src/app.py comments"),
		testutil.Text("Done."),
	)
	o, dir := newTestOrchestrator(t, llm, nil)
	seedFile(t, dir, "src/app.py", "value = 1\n")

	res := o.Run(context.Background(), "tidy up src/app.py")

	assert.False(t, res.Success)
	assert.True(t, res.NoRetry)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "recovery budget exhausted for UNKNOWN")
	assert.Equal(t, 4, llm.Calls())
}

func TestSessionCheckpointWrittenEachIteration(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		testutil.Text("[READ] inspect missing/file.py"),
		testutil.Text("[READ] inspect missing/file.py"),
		testutil.Text("[READ] inspect missing/file.py"),
	)
	o, dir := newTestOrchestrator(t, llm, nil)

	o.Run(context.Background(), "read a file that is not there")

	snap, err := loadSession(dir)
	require.NoError(t, err)
	assert.Equal(t, "read a file that is not there", snap.Request)
	assert.NotZero(t, snap.Iteration)
}

func TestRestoreSessionLoadsHistoryAndFlags(t *testing.T) {
	o, dir := newTestOrchestrator(t, testutil.NewScriptedLLM(), nil)
	require.NoError(t, saveSession(dir, sessionSnapshot{
		Request:   "resume me",
		Iteration: 4,
		History:   []string{"[edit] changed src/app.py -> COMPLETED: ok"},
		AgentState: map[string]any{
			"tdd_require_test": true,
			"last_green_hash":  "abc",
			"tests_blocked":    true,
		},
	}))

	o.restoreSession("resume me")

	assert.Equal(t, []string{"[edit] changed src/app.py -> COMPLETED: ok"}, o.restoredHistory)
	assert.True(t, o.state.TDDRequireTest)
	assert.Equal(t, "abc", o.state.LastGreenHash)
	assert.True(t, o.testsBlocked)
}

func TestRestoreSessionIgnoresOtherRequest(t *testing.T) {
	o, dir := newTestOrchestrator(t, testutil.NewScriptedLLM(), nil)
	require.NoError(t, saveSession(dir, sessionSnapshot{
		Request: "something else",
		History: []string{"[read] looked around -> COMPLETED: ok"},
	}))

	o.restoreSession("resume me")

	assert.Empty(t, o.restoredHistory)
}

func TestBudgetTokenCap(t *testing.T) {
	// Caps trip strictly over the limit, same as the step cap.
	b := NewBudget(Caps{Tokens: 10, Steps: 100, Wallclock: time.Hour})
	b.AddUsage(ports.TokenUsage{TotalTokens: 10})
	_, exceeded := b.Exceeded()
	assert.False(t, exceeded)

	b.AddUsage(ports.TokenUsage{TotalTokens: 1})
	reason, exceeded := b.Exceeded()
	require.True(t, exceeded)
	assert.Contains(t, reason, "token cap")
}

func TestBudgetStepCap(t *testing.T) {
	b := NewBudget(Caps{Tokens: 1000, Steps: 2, Wallclock: time.Hour})
	b.Step()
	b.Step()
	_, exceeded := b.Exceeded()
	assert.False(t, exceeded)

	b.Step()
	reason, exceeded := b.Exceeded()
	require.True(t, exceeded)
	assert.Contains(t, reason, "step cap")
}

func TestBudgetEstimatesTokensWithoutUsage(t *testing.T) {
	b := NewBudget(Caps{})
	b.AddText("the quick brown fox jumps over the lazy dog")
	assert.Greater(t, b.TokensUsed(), 0)
}

func TestRecoveryBudgetsConsume(t *testing.T) {
	budgets := recoveryBudgets{}
	assert.Equal(t, 0, budgets.consume(toolerr.PermissionDenied))
	assert.Equal(t, -1, budgets.consume(toolerr.PermissionDenied))

	assert.Equal(t, 2, budgets.consume(toolerr.NotFound))
	assert.Equal(t, 1, budgets.consume(toolerr.NotFound))
	assert.Equal(t, 0, budgets.consume(toolerr.NotFound))
}

func TestActionSignatureNormalizesWhitespace(t *testing.T) {
	a := task.New(task.ActionEdit, "Fix   the\tBug in src/app.py")
	b := task.New(task.ActionEdit, "fix the bug in src/app.py")
	assert.Equal(t, actionSignature(a), actionSignature(b))
}

func TestFailureSignatureUsesFirstLine(t *testing.T) {
	tk := task.New(task.ActionEdit, "Edit src/app.py")
	a := failureSignature(tk, "Target missing\ndetail one")
	b := failureSignature(tk, "target missing\ndetail two")
	assert.Equal(t, a, b)
}

func TestGroundedRequiresActionAndResearch(t *testing.T) {
	assert.False(t, grounded(nil))

	onlyAction := []workRecord{{Action: task.ActionEdit, Status: task.StatusCompleted}}
	assert.False(t, grounded(onlyAction))

	both := append(onlyAction, workRecord{Action: task.ActionRead, Status: task.StatusCompleted})
	assert.True(t, grounded(both))

	toolEvidence := []workRecord{
		{Action: task.ActionEdit, Status: task.StatusCompleted, Tools: []string{"file_write", "file_read"}},
	}
	assert.True(t, grounded(toolEvidence))
}

func TestAnchoringScorePenalizesMissingFiles(t *testing.T) {
	tun := DefaultAnchoring()
	healthy := []workRecord{
		{Action: task.ActionEdit, Status: task.StatusCompleted, Tools: []string{"file_write"}},
		{Action: task.ActionRead, Status: task.StatusCompleted, Tools: []string{"file_read"}},
	}
	shaky := []workRecord{
		{Action: task.ActionEdit, Status: task.StatusCompleted, Tools: []string{"file_write"}, Message: "target does not exist"},
		{Action: task.ActionRead, Status: task.StatusCompleted, Tools: []string{"file_read"}, Message: "symbol unresolved"},
	}

	assert.Greater(t, anchoringScore(healthy, tun), anchoringScore(shaky, tun))
	assert.Equal(t, 2, mismatchRisk(shaky))
	assert.Equal(t, 0, mismatchRisk(healthy))
}

func TestCodeHashTracksContent(t *testing.T) {
	o, dir := newTestOrchestrator(t, testutil.NewScriptedLLM(), nil)
	seedFile(t, dir, "src/app.py", "value = 1\n")

	first := o.codeHash()
	assert.Equal(t, first, o.codeHash())

	seedFile(t, dir, "src/app.py", "value = 2\n")
	assert.NotEqual(t, first, o.codeHash())

	// Session files never perturb the hash.
	second := o.codeHash()
	seedFile(t, dir, ".rev/sessions/session.yaml", "request: x\n")
	assert.Equal(t, second, o.codeHash())
}

func TestTestCommandForExtensions(t *testing.T) {
	assert.Equal(t, "npm test", testCommandFor("src/app.test.ts"))
	assert.Equal(t, "go test ./...", testCommandFor("internal/app/app.go"))
	assert.Equal(t, "cargo test", testCommandFor("src/lib.rs"))
	assert.Equal(t, "pytest -q", testCommandFor("lib/app.py"))
	assert.Equal(t, "pytest -q", testCommandFor(""))
}
