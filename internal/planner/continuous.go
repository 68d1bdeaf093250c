package planner

import (
	"context"
	"fmt"
	"strings"

	"rev/internal/agent/ports"
	"rev/internal/task"
)

// ContinuousRequest carries everything the next-action planner sees.
type ContinuousRequest struct {
	Request       string
	History       []string
	AgentRequests []string

	// TDDRequireTest forces the next action to be a test run.
	TDDRequireTest bool
	// TestsBlocked means tests were skipped because nothing changed.
	TestsBlocked bool
}

// historyWindow bounds how much work history the prompt carries.
const historyWindow = 12

// The action vocabulary is advertised READ-first; models follow the listed
// order often enough that it biases early iterations toward inspection.
const continuousSystemPrompt = `You are the next-action planner for an autonomous coding agent.
Reply with exactly ONE line: [ACTION_TYPE] description
ACTION_TYPE is one of: READ, ANALYZE, REVIEW, RESEARCH, INVESTIGATE, EDIT, ADD, CREATE, CREATE_DIRECTORY, REFACTOR, DELETE, RENAME, FIX, TEST, TOOL, RUN, DOC.
When the request is fully satisfied, reply with exactly: GOAL_ACHIEVED

Hard rules:
- Never propose creating a directory that already exists.
- Never hand-edit an __init__.py before the module split tool has run.
- Never edit a path that was renamed to *.py.bak; use the real module.
- Never expand "from pkg import *" into per-module imports.`

// NextAction asks for the single next step. done=true means GOAL_ACHIEVED.
func (p *Planner) NextAction(ctx context.Context, req ContinuousRequest) (*task.Task, bool, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", req.Request)

	if history := tail(req.History, historyWindow); len(history) > 0 {
		b.WriteString("\nRecent work history:\n")
		for _, line := range history {
			b.WriteString("- " + line + "\n")
		}
	}
	for _, agentReq := range req.AgentRequests {
		fmt.Fprintf(&b, "\nWARNING: %s\n", agentReq)
	}
	if req.TDDRequireTest {
		b.WriteString("\nA source change landed after a red test. The next action MUST be [TEST].\n")
	}
	if req.TestsBlocked {
		b.WriteString("\nTests were skipped: no source file changed since the last run. Do not propose another test run until code changes.\n")
	}

	resp, err := p.llm.Chat(ctx, ports.ChatRequest{Messages: []ports.Message{
		{Role: "system", Content: p.withSummary(continuousSystemPrompt)},
		{Role: "user", Content: b.String()},
	}})
	if err != nil {
		return nil, false, fmt.Errorf("next-action chat: %w", err)
	}

	action, description, done := parseNextAction(resp.Content)
	if done {
		return nil, true, nil
	}
	if description == "" {
		return nil, false, fmt.Errorf("planner returned an empty action")
	}

	description, steps := extractValidationSteps(action, description)
	action, description = coerceActionable(action, description)
	t := task.New(action, description)
	t.ValidationSteps = steps
	return t, false, nil
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
