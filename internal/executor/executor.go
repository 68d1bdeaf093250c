// Package executor dispatches one task to the sub-agent responsible for its
// action kind and records tool evidence back onto the task.
package executor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"rev/internal/agent/ports"
	"rev/internal/logging"
	"rev/internal/task"
	"rev/internal/toolregistry"
	"rev/internal/workspace"
)

const maxAgentIterations = 10

// agentProfile maps an action family to its tool surface.
type agentProfile struct {
	name   string
	tools  []string
	prompt string
}

var (
	readProfile = agentProfile{
		name:  "read-agent",
		tools: []string{"file_read", "list_dir", "search_text"},
		prompt: "You inspect code. Use the provided read-only tools to complete the task, " +
			"then reply with a short summary of what you found.",
	}
	editProfile = agentProfile{
		name:  "edit-agent",
		tools: []string{"file_read", "list_dir", "search_text", "file_write", "replace_in_file", "apply_patch", "create_directory"},
		prompt: "You make precise code changes. Read before you write. " +
			"Reply with a short summary once the change is applied.",
	}
	refactorProfile = agentProfile{
		name:  "refactor-agent",
		tools: []string{"file_read", "list_dir", "search_text", "file_write", "replace_in_file", "apply_patch", "create_directory", "split_module_classes"},
		prompt: "You restructure code. For splitting a Python module into per-class files, " +
			"use split_module_classes; never hand-write the package piecemeal. " +
			"Reply with a short summary when done.",
	}
	testProfile = agentProfile{
		name:  "test-runner",
		tools: []string{"run_cmd", "file_read", "list_dir"},
		prompt: "You run commands and report results. Run the requested command with run_cmd " +
			"and reply with a short summary of the outcome.",
	}
)

func profileFor(action task.Action) agentProfile {
	switch {
	case action.IsReadOnly():
		return readProfile
	case action == task.ActionRefactor:
		return refactorProfile
	case action.IsMutating():
		return editProfile
	case action.IsExecution():
		return testProfile
	}
	return readProfile
}

// Outcome summarizes a dispatch for the loop.
type Outcome struct {
	Status          task.Status
	Summary         string
	Fatal           bool
	ReplanRequested bool
}

// Config wires an Executor.
type Config struct {
	LLM        ports.LLMClient
	Dispatcher *toolregistry.Dispatcher
	Registry   ports.ToolRegistry
	Resolver   *workspace.Resolver
	Logger     logging.Logger
}

// Executor runs tasks through action-specific sub-agents.
type Executor struct {
	llm        ports.LLMClient
	dispatcher *toolregistry.Dispatcher
	registry   ports.ToolRegistry
	resolver   *workspace.Resolver
	logger     logging.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	return &Executor{
		llm:        cfg.LLM,
		dispatcher: cfg.Dispatcher,
		registry:   cfg.Registry,
		resolver:   cfg.Resolver,
		logger:     logging.OrNop(cfg.Logger),
	}
}

// Dispatch executes one task end to end: status transitions, the agent tool
// loop, and evidence recording. The plan owns status bookkeeping.
func (e *Executor) Dispatch(ctx context.Context, plan *task.Plan, t *task.Task) Outcome {
	t.Action = task.NormalizeAction(string(t.Action))

	// A "create directory" that names a .py file is really a file creation.
	if t.Action == task.ActionCreateDirectory && strings.Contains(t.Description, ".py") {
		t.Action = task.ActionAdd
	}

	if err := plan.MarkTaskInProgress(t); err != nil {
		return e.fail(plan, t, fmt.Sprintf("cannot start task: %v", err), true)
	}

	if t.Action == task.ActionCreateDirectory {
		if outcome, handled := e.createDirectoryFastPath(plan, t); handled {
			return outcome
		}
	}

	summary, err := e.runAgent(ctx, t)
	if err != nil {
		return e.fail(plan, t, err.Error(), false)
	}

	switch ports.SentinelOf(summary) {
	case ports.SentinelRecoveryRequested:
		out := e.fail(plan, t, strings.TrimSpace(summary), false)
		out.ReplanRequested = true
		return out
	case ports.SentinelFinalFailure:
		return e.fail(plan, t, strings.TrimSpace(summary), true)
	case ports.SentinelUserRejected:
		if err := t.SetStatus(task.StatusStopped, "user rejected"); err != nil {
			e.logger.Warn("stop transition: %v", err)
		}
		return Outcome{Status: task.StatusStopped, Summary: strings.TrimSpace(summary)}
	}

	if err := plan.MarkTaskCompleted(t); err != nil {
		return e.fail(plan, t, fmt.Sprintf("cannot complete task: %v", err), true)
	}
	return Outcome{Status: task.StatusCompleted, Summary: summary}
}

// createDirectoryFastPath completes the task immediately when the target
// directory already exists.
func (e *Executor) createDirectoryFastPath(plan *task.Plan, t *task.Task) (Outcome, bool) {
	tokens := pathTokens(t.Description)
	if len(tokens) == 0 || e.resolver == nil {
		return Outcome{}, false
	}
	resolved, err := e.resolver.Resolve(tokens[0], workspace.PurposeWrite)
	if err != nil {
		return Outcome{}, false
	}
	info, statErr := os.Stat(resolved.Abs)
	if statErr != nil || !info.IsDir() {
		return Outcome{}, false
	}

	t.Result = map[string]any{"skipped": true, "dir_path": resolved.Rel}
	t.AppendEvent(task.ToolEvent{
		Tool:    "create_directory",
		Args:    map[string]any{"path": resolved.Rel},
		Summary: "directory already exists",
	})
	if err := plan.MarkTaskCompleted(t); err != nil {
		return e.fail(plan, t, err.Error(), true), true
	}
	return Outcome{Status: task.StatusCompleted, Summary: "directory already exists, skipped"}, true
}

// runAgent is the bounded tool loop for one sub-agent invocation.
func (e *Executor) runAgent(ctx context.Context, t *task.Task) (string, error) {
	profile := profileFor(t.Action)
	tools := e.toolDefs(profile)

	messages := []ports.Message{
		{Role: "system", Content: profile.prompt},
		{Role: "user", Content: fmt.Sprintf("Task (%s): %s", t.Action, t.Description)},
	}

	for i := 0; i < maxAgentIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := e.llm.Chat(ctx, ports.ChatRequest{Messages: messages, Tools: tools})
		if err != nil {
			return "", fmt.Errorf("%s chat: %w", profile.name, err)
		}

		calls := resp.ToolCalls
		if len(calls) == 0 {
			// The model may have described a tool call in prose instead of
			// emitting it structured; recover it rather than spiraling.
			if recovered, ok := recoverToolCall(resp.Content); ok && allowedTool(profile, recovered.Name) {
				e.logger.Debug("%s: recovered embedded tool call %s", profile.name, recovered.Name)
				calls = []ports.ToolCall{recovered}
			} else {
				return resp.Content, nil
			}
		}

		messages = append(messages, ports.Message{Role: "assistant", Content: resp.Content, ToolCalls: calls})
		for _, call := range calls {
			if !allowedTool(profile, call.Name) {
				messages = append(messages, ports.Message{
					Role:    "tool",
					Content: fmt.Sprintf(`{"error":"tool %s is not available to %s"}`, call.Name, profile.name),
				})
				continue
			}
			call.TaskID = t.ID
			result := e.dispatcher.ExecuteCall(ctx, call)
			t.AppendEvent(task.ToolEvent{
				Tool:        call.Name,
				Args:        call.Arguments,
				Result:      result.Content,
				ArtifactRef: result.ArtifactRef,
			})
			mergeResultPayload(t, result)
			messages = append(messages, ports.Message{
				Role:    "tool",
				Content: fmt.Sprintf("%s -> %s", call.Name, result.Content),
			})
			if result.Error != nil {
				messages = append(messages, ports.Message{
					Role:    "tool",
					Content: fmt.Sprintf(`{"error":%q,"error_type":%q}`, result.Error.Error(), result.ErrorType),
				})
			}
		}
	}
	return "", fmt.Errorf("%s exceeded %d iterations without finishing", profile.name, maxAgentIterations)
}

// mergeResultPayload folds tool metadata into the task result so the verifier
// sees keys like package_dir, rc, and replaced without digging through events.
func mergeResultPayload(t *task.Task, result *ports.ToolResult) {
	if len(result.Metadata) == 0 {
		return
	}
	if t.Result == nil {
		t.Result = make(map[string]any, len(result.Metadata))
	}
	for key, value := range result.Metadata {
		t.Result[key] = value
	}
}

func (e *Executor) fail(plan *task.Plan, t *task.Task, reason string, fatal bool) Outcome {
	if err := plan.MarkTaskFailed(t, reason); err != nil {
		e.logger.Warn("fail transition: %v", err)
	}
	return Outcome{Status: task.StatusFailed, Summary: reason, Fatal: fatal}
}

func (e *Executor) toolDefs(profile agentProfile) []ports.ToolDefinition {
	if e.registry == nil {
		return nil
	}
	var defs []ports.ToolDefinition
	for _, def := range e.registry.List() {
		if allowedTool(profile, def.Name) {
			defs = append(defs, def)
		}
	}
	return defs
}

func allowedTool(profile agentProfile, name string) bool {
	for _, tool := range profile.tools {
		if tool == name {
			return true
		}
	}
	return false
}
