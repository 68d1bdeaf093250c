// Package planner turns a request into tasks. Batch mode asks the LLM for a
// whole JSON plan up front; continuous mode asks for one next action per loop
// iteration.
package planner

import (
	"context"
	"fmt"
	"strings"

	"rev/internal/agent/ports"
	"rev/internal/logging"
	"rev/internal/task"
	"rev/internal/toolregistry"
)

const (
	defaultMaxToolIterations = 6
	defaultMaxParseRetries   = 2
	defaultMaxTasks          = 12
	breakdownSubtaskCap      = 15
)

// Config wires a Planner.
type Config struct {
	LLM        ports.LLMClient
	Dispatcher *toolregistry.Dispatcher
	Registry   ports.ToolRegistry
	Logger     logging.Logger

	// ProjectSummary is injected into prompts when non-empty.
	ProjectSummary string

	MaxToolIterations int
	MaxParseRetries   int
	MaxTasks          int
}

// Planner produces plans and next actions via the Chat collaborator.
type Planner struct {
	llm        ports.LLMClient
	dispatcher *toolregistry.Dispatcher
	registry   ports.ToolRegistry
	logger     logging.Logger
	summary    string

	maxToolIterations int
	maxParseRetries   int
	maxTasks          int
}

// New creates a Planner.
func New(cfg Config) *Planner {
	p := &Planner{
		llm:               cfg.LLM,
		dispatcher:        cfg.Dispatcher,
		registry:          cfg.Registry,
		logger:            logging.OrNop(cfg.Logger),
		summary:           cfg.ProjectSummary,
		maxToolIterations: cfg.MaxToolIterations,
		maxParseRetries:   cfg.MaxParseRetries,
		maxTasks:          cfg.MaxTasks,
	}
	if p.maxToolIterations <= 0 {
		p.maxToolIterations = defaultMaxToolIterations
	}
	if p.maxParseRetries <= 0 {
		p.maxParseRetries = defaultMaxParseRetries
	}
	if p.maxTasks <= 0 {
		p.maxTasks = defaultMaxTasks
	}
	return p
}

const batchSystemPrompt = `You are a planning assistant for an autonomous coding agent.
Produce a JSON array of tasks: [{"action": "...", "description": "...", "complexity": "low|medium|high", "validation_steps": ["..."]}].
Actions: read, analyze, review, research, investigate, edit, add, create, create_directory, refactor, delete, rename, fix, test, tool, run, general, doc.
Reply with the JSON array only. You may call the provided read-only tools first to inspect the repository.`

const strictRetryPrompt = `Your previous reply was not a parseable JSON array. Reply with ONLY a JSON array of task objects, no prose, no code fences.`

// PlanBatch asks for a full plan, running a bounded read-only tool loop
// first, then post-processes the parsed tasks.
func (p *Planner) PlanBatch(ctx context.Context, request, repoContext string) (*task.Plan, error) {
	messages := []ports.Message{
		{Role: "system", Content: p.withSummary(batchSystemPrompt)},
		{Role: "user", Content: fmt.Sprintf("Request: %s\n\nRepository context:\n%s", request, repoContext)},
	}

	content, err := p.converse(ctx, messages)
	if err != nil {
		return nil, err
	}

	planned, err := parseTaskArray(content)
	for retry := 0; err != nil && retry < p.maxParseRetries; retry++ {
		p.logger.Warn("plan parse failed (attempt %d): %v", retry+1, err)
		messages = append(messages,
			ports.Message{Role: "assistant", Content: content},
			ports.Message{Role: "user", Content: strictRetryPrompt},
		)
		if content, err = p.converse(ctx, messages); err != nil {
			return nil, err
		}
		planned, err = parseTaskArray(content)
	}
	if err != nil {
		return nil, fmt.Errorf("planner could not produce a parseable plan: %w", err)
	}

	planned, err = p.breakDown(ctx, request, planned)
	if err != nil {
		return nil, err
	}
	planned = ensureCoverage(planned)
	planned = capTasks(planned, p.maxTasks)

	plan := task.NewPlan(request)
	for _, pt := range planned {
		action := task.NormalizeAction(pt.Action)
		description, steps := extractValidationSteps(action, pt.Description)
		action, description = coerceActionable(action, description)
		t := task.New(action, description)
		t.ValidationSteps = append(pt.ValidationSteps, steps...)
		plan.Add(t)
	}
	return plan, nil
}

// converse runs the bounded read-only tool loop until the LLM replies with
// content instead of tool calls.
func (p *Planner) converse(ctx context.Context, messages []ports.Message) (string, error) {
	tools := p.readOnlyTools()
	for i := 0; i < p.maxToolIterations; i++ {
		resp, err := p.llm.Chat(ctx, ports.ChatRequest{Messages: messages, Tools: tools})
		if err != nil {
			return "", fmt.Errorf("planner chat: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, ports.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			output := p.executeReadOnly(ctx, call)
			messages = append(messages, ports.Message{
				Role:    "tool",
				Content: fmt.Sprintf("%s -> %s", call.Name, output),
			})
		}
	}
	// Out of tool budget: ask for the final answer without tools.
	resp, err := p.llm.Chat(ctx, ports.ChatRequest{Messages: append(messages, ports.Message{
		Role: "user", Content: "Tool budget exhausted. Reply with the final JSON plan now.",
	})})
	if err != nil {
		return "", fmt.Errorf("planner chat: %w", err)
	}
	return resp.Content, nil
}

func (p *Planner) executeReadOnly(ctx context.Context, call ports.ToolCall) string {
	if p.registry != nil && p.registry.IsWriting(call.Name) {
		return fmt.Sprintf(`{"error":"tool %s is not available during planning"}`, call.Name)
	}
	if p.dispatcher == nil {
		return `{"error":"no tools available during planning"}`
	}
	return p.dispatcher.Execute(ctx, call.Name, call.Arguments, "planning")
}

func (p *Planner) readOnlyTools() []ports.ToolDefinition {
	if p.registry == nil {
		return nil
	}
	var defs []ports.ToolDefinition
	for _, def := range p.registry.List() {
		if !p.registry.IsWriting(def.Name) {
			defs = append(defs, def)
		}
	}
	return defs
}

const breakdownPrompt = `Decompose this coding task into 5-15 atomic subtasks.
Reply with ONLY a JSON array: [{"action": "...", "description": "..."}].
Task: %s`

// breakDown expands high-complexity tasks (and short plans of broad tasks)
// into atomic subtasks with a second chat call.
func (p *Planner) breakDown(ctx context.Context, request string, planned []plannedTask) ([]plannedTask, error) {
	broadPlan := len(planned) <= 2 && allBroad(planned)

	var out []plannedTask
	for _, pt := range planned {
		if !strings.EqualFold(pt.Complexity, "high") && !broadPlan {
			out = append(out, pt)
			continue
		}
		resp, err := p.llm.Chat(ctx, ports.ChatRequest{Messages: []ports.Message{
			{Role: "system", Content: "You decompose coding tasks into atomic subtasks."},
			{Role: "user", Content: fmt.Sprintf(breakdownPrompt, pt.Description)},
		}})
		if err != nil {
			return nil, fmt.Errorf("breakdown chat: %w", err)
		}
		subtasks, parseErr := parseTaskArray(resp.Content)
		if parseErr != nil || len(subtasks) == 0 {
			p.logger.Warn("breakdown unusable, keeping original task: %v", parseErr)
			out = append(out, pt)
			continue
		}
		if len(subtasks) > breakdownSubtaskCap {
			subtasks = subtasks[:breakdownSubtaskCap]
		}
		out = append(out, subtasks...)
	}
	return out, nil
}

func allBroad(planned []plannedTask) bool {
	for _, pt := range planned {
		if len(pt.Description) < 60 && !strings.Contains(pt.Description, " and ") {
			return false
		}
	}
	return len(planned) > 0
}

func (p *Planner) withSummary(prompt string) string {
	if p.summary == "" {
		return prompt
	}
	return prompt + "\n\nProject knowledge from previous runs:\n" + p.summary
}
