package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rev/internal/agent/ports"
	"rev/internal/task"
	"rev/internal/testutil"
	"rev/internal/toolregistry"
)

type planTool struct {
	name    string
	writing bool
	content string
}

func (p *planTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	return &ports.ToolResult{CallID: call.ID, Content: p.content}, nil
}

func (p *planTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: p.name, Description: "test tool", Parameters: ports.ParameterSchema{Type: "object"}}
}

func (p *planTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: p.name, Version: "1.0.0", Category: "test", Writing: p.writing}
}

func TestPlanBatchParsesTasks(t *testing.T) {
	llm := testutil.NewScriptedLLM(testutil.Text(`[
		{"action": "read", "description": "Read lib/app.py to understand the current layout"},
		{"action": "refactor", "description": "Split lib/app.py into one file per class"},
		{"action": "test", "description": "Run pytest to confirm the refactor"}
	]`))
	p := New(Config{LLM: llm})

	plan, err := p.PlanBatch(context.Background(), "split the classes out of lib/app.py", "lib/app.py")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(plan.Tasks), 3)
	assert.Equal(t, task.ActionRead, plan.Tasks[0].Action)
	assert.Equal(t, task.ActionRefactor, plan.Tasks[1].Action)
	assert.Equal(t, task.ActionTest, plan.Tasks[2].Action)
}

func TestPlanBatchRetriesOnParseFailure(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		testutil.Text("Sure! Here is my thinking about the plan..."),
		testutil.Text(`[{"action": "edit", "description": "Fix the import in lib/app.py"}]`),
	)
	p := New(Config{LLM: llm})

	plan, err := p.PlanBatch(context.Background(), "fix import", "")
	require.NoError(t, err)
	assert.Equal(t, 2, llm.Calls())
	require.NotEmpty(t, plan.Tasks)
	assert.Equal(t, task.ActionEdit, plan.Tasks[0].Action)
}

func TestPlanBatchRepairsMalformedJSON(t *testing.T) {
	llm := testutil.NewScriptedLLM(testutil.Text("```json\n" +
		`[{"action": "edit", "description": "Fix lib/app.py",},]` + "\n```"))
	p := New(Config{LLM: llm})

	plan, err := p.PlanBatch(context.Background(), "fix", "")
	require.NoError(t, err)
	assert.Equal(t, 1, llm.Calls())
	require.NotEmpty(t, plan.Tasks)
}

func TestPlanBatchAbortsAfterRetryCap(t *testing.T) {
	llm := testutil.NewScriptedLLM(
		testutil.Text("nope"), testutil.Text("still nope"), testutil.Text("not json either"),
	)
	p := New(Config{LLM: llm, MaxParseRetries: 2})

	_, err := p.PlanBatch(context.Background(), "fix", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parseable plan")
}

func TestPlanBatchRunsReadOnlyToolLoop(t *testing.T) {
	registry := toolregistry.NewRegistry()
	require.NoError(t, registry.Register(&planTool{name: "list_dir", content: "lib/\nreadme.md"}))
	require.NoError(t, registry.Register(&planTool{name: "file_write", writing: true}))
	dispatcher := toolregistry.NewDispatcher(toolregistry.DispatcherConfig{Registry: registry})

	llm := testutil.NewScriptedLLM(
		ports.ChatResponse{ToolCalls: []ports.ToolCall{
			{ID: "c1", Name: "list_dir", Arguments: map[string]any{}},
		}},
		testutil.Text(`[{"action": "read", "description": "Read lib/app.py"}]`),
	)
	p := New(Config{LLM: llm, Registry: registry, Dispatcher: dispatcher})

	plan, err := p.PlanBatch(context.Background(), "inspect", "")
	require.NoError(t, err)
	require.NotEmpty(t, plan.Tasks)

	// Writing tools are never advertised during planning.
	for _, req := range llm.Requests {
		for _, def := range req.Tools {
			assert.NotEqual(t, "file_write", def.Name)
		}
	}
}

func TestEnsureCoverageAddsTestAndDocTasks(t *testing.T) {
	planned := ensureCoverage([]plannedTask{
		{Action: "edit", Description: "Change the retry logic"},
	})
	actions := map[string]bool{}
	for _, pt := range planned {
		actions[pt.Action] = true
	}
	assert.True(t, actions["test"])
	assert.True(t, actions["doc"])

	// Read-only plans are left alone.
	planned = ensureCoverage([]plannedTask{{Action: "read", Description: "Read the docs"}})
	assert.Len(t, planned, 1)
}

func TestCapTasksMergesAndTrims(t *testing.T) {
	planned := []plannedTask{
		{Action: "edit", Description: "Fix lib/a.py"},
		{Action: "run", Description: "Run ruff on lib/"},
		{Action: "run", Description: "Run mypy type-check"},
		{Action: "test", Description: "Run pytest for module a"},
		{Action: "test", Description: "Run pytest with coverage"},
		{Action: "doc", Description: "Write a changelog entry"},
		{Action: "review", Description: "Look over the final state"},
	}
	capped := capTasks(planned, 4)
	assert.LessOrEqual(t, len(capped), 4)

	lint, tests := 0, 0
	for _, pt := range capped {
		if matchesAny(pt.Description, lintKeywords) {
			lint++
		}
		if matchesAny(pt.Description, testKeywords) {
			tests++
		}
	}
	assert.Equal(t, 1, lint)
	assert.Equal(t, 1, tests)
}

func TestExtractValidationSteps(t *testing.T) {
	desc, steps := extractValidationSteps(task.ActionEdit,
		"Update the parser in lib/parse.py. Validation: pytest -q tests/test_parse.py")
	assert.NotContains(t, desc, "Validation:")
	require.Len(t, steps, 1)
	assert.Equal(t, "pytest -q tests/test_parse.py", steps[0])

	// Test tasks keep their description untouched.
	desc, steps = extractValidationSteps(task.ActionTest, "Run tests. Validation: pytest -q")
	assert.Contains(t, desc, "Validation:")
	assert.Empty(t, steps)
}

func TestCoerceActionable(t *testing.T) {
	action, desc := coerceActionable(task.ActionReview, "Review the analysts module structure")
	assert.Equal(t, task.ActionReview, action)
	assert.Contains(t, desc, "using list_dir on")

	action, desc = coerceActionable(task.ActionEdit, "Make the error message friendlier")
	assert.Equal(t, task.ActionReview, action)
	assert.Contains(t, desc, "search_text")

	action, desc = coerceActionable(task.ActionEdit, "Fix the typo in lib/app.py")
	assert.Equal(t, task.ActionEdit, action)
	assert.Equal(t, "Fix the typo in lib/app.py", desc)
}

func TestNextActionParsesTaggedLine(t *testing.T) {
	llm := testutil.NewScriptedLLM(testutil.Text("[EDIT] Fix the off-by-one in lib/book.py"))
	p := New(Config{LLM: llm})

	next, done, err := p.NextAction(context.Background(), ContinuousRequest{Request: "fix bug"})
	require.NoError(t, err)
	assert.False(t, done)
	require.NotNil(t, next)
	assert.Equal(t, task.ActionEdit, next.Action)
	assert.Contains(t, next.Description, "lib/book.py")
}

func TestNextActionGoalAchieved(t *testing.T) {
	for _, reply := range []string{"GOAL_ACHIEVED", "goal achieved.", "Goal Achieved!"} {
		llm := testutil.NewScriptedLLM(testutil.Text(reply))
		p := New(Config{LLM: llm})

		next, done, err := p.NextAction(context.Background(), ContinuousRequest{Request: "r"})
		require.NoError(t, err, reply)
		assert.True(t, done, reply)
		assert.Nil(t, next, reply)
	}
}

func TestNextActionNormalizesTypos(t *testing.T) {
	llm := testutil.NewScriptedLLM(testutil.Text("[EDTI] Fix lib/app.py"))
	p := New(Config{LLM: llm})

	next, done, err := p.NextAction(context.Background(), ContinuousRequest{Request: "r"})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, task.ActionEdit, next.Action)
}

func TestChatNotCalledWhenCancelled(t *testing.T) {
	llm := testutil.NewScriptedLLM(testutil.Text("[EDIT] should never be seen"))
	p := New(Config{LLM: llm})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.NextAction(ctx, ContinuousRequest{Request: "r"})
	require.Error(t, err)
	assert.Zero(t, llm.Calls())
}
