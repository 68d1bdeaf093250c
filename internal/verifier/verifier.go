// Package verifier decides whether a completed task actually did what it
// claims. It inspects tool evidence, checks the filesystem, and runs
// validation commands; it never trusts the agent's own summary.
package verifier

import (
	"context"
	"fmt"
	"strings"

	"rev/internal/agent/ports"
	"rev/internal/logging"
	"rev/internal/router"
	"rev/internal/task"
	"rev/internal/toolregistry"
	"rev/internal/workspace"
)

// Result is the verification outcome. Passed and Inconclusive are mutually
// exclusive; a failed result with ShouldReplan=false is fatal.
type Result struct {
	Passed       bool           `json:"passed"`
	Inconclusive bool           `json:"inconclusive"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	ShouldReplan bool           `json:"should_replan"`
}

func pass(message string) Result {
	return Result{Passed: true, Message: message}
}

func fail(message string) Result {
	return Result{Passed: false, ShouldReplan: true, Message: message}
}

func fatal(message string) Result {
	return Result{Passed: false, ShouldReplan: false, Message: message}
}

func inconclusive(message string) Result {
	return Result{Passed: false, Inconclusive: true, ShouldReplan: true, Message: message}
}

func (r Result) withDetail(key string, value any) Result {
	if r.Details == nil {
		r.Details = map[string]any{}
	}
	r.Details[key] = value
	return r
}

// State carries verification context that survives across loop iterations.
// The orchestrator owns it; the verifier reads and updates it.
type State struct {
	TDDEnabled      bool
	TDDPendingGreen bool
	TDDRequireTest  bool

	// LastGreenHash is the code hash at the last green test run.
	LastGreenHash string

	// InstallAttempts maps a dependency manifest path to its mtime (unix) at
	// the last auto-install attempt.
	InstallAttempts map[string]int64
}

// NewState creates an empty verification state.
func NewState(tddEnabled bool) *State {
	return &State{TDDEnabled: tddEnabled, InstallAttempts: make(map[string]int64)}
}

// Config wires a Verifier.
type Config struct {
	Registry   ports.ToolRegistry
	Dispatcher *toolregistry.Dispatcher
	Resolver   *workspace.Resolver
	Runner     CommandRunner
	Logger     logging.Logger
	Mode       router.Config
}

// Verifier checks completed tasks.
type Verifier struct {
	registry   ports.ToolRegistry
	dispatcher *toolregistry.Dispatcher
	resolver   *workspace.Resolver
	runner     CommandRunner
	logger     logging.Logger
	mode       router.Config
}

// New creates a Verifier. A nil Runner disables command-based validation;
// edits then verify as inconclusive so the loop injects a test task.
func New(cfg Config) *Verifier {
	return &Verifier{
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		resolver:   cfg.Resolver,
		runner:     cfg.Runner,
		logger:     logging.OrNop(cfg.Logger),
		mode:       cfg.Mode,
	}
}

// Verify produces a Result for one executed task. Stages run in order:
// no-op detection, looks-done-vs-is-done, action-specific checks, command
// validation, TDD handling, timeout and remediation diagnosis.
func (v *Verifier) Verify(ctx context.Context, t *task.Task, state *State) Result {
	payload := decodePayload(t.Result)

	if result, veto := v.noOpSignature(t, payload); veto {
		return result
	}

	if t.Action.IsMutating() && !t.HasWritingEvent(v.registry.IsWriting) {
		return fail(fmt.Sprintf(
			"task claimed completion but no writing tool ran; action %s requires a write", t.Action))
	}

	result := v.verifyAction(ctx, t, payload, state)

	if result.Passed && (t.Action.IsMutating() || t.Action == task.ActionTest) {
		result = v.validate(ctx, t, payload, result, state)
	}

	if state != nil && state.TDDEnabled {
		result = v.applyTDD(t, payload, result, state)
	}

	if t.Action == task.ActionTest || t.Action == task.ActionRun || t.Action == task.ActionTool {
		result = v.diagnoseTimeout(payload, result)
		result = v.diagnoseStderr(payload, result)
	}

	// The two invariants on Result shape hold regardless of stage bugs.
	if result.Passed {
		result.Inconclusive = false
	}
	return result
}

// touchedPaths collects workspace-relative paths this task touched, from tool
// events first, then the result payload, then the description.
func (v *Verifier) touchedPaths(t *task.Task, payload *resultPayload) []string {
	var out []string
	seen := map[string]bool{}
	add := func(raw string) {
		if raw == "" || seen[raw] {
			return
		}
		seen[raw] = true
		out = append(out, raw)
	}

	for _, ev := range t.Events {
		if path, ok := ev.Args["path"].(string); ok {
			add(path)
		}
	}
	add(payload.PathRel)
	if last := v.lastCall(t); last != nil {
		if path, ok := last.Args["path"].(string); ok {
			add(path)
		}
	}
	for _, token := range pathTokens(t.Description) {
		add(token)
	}
	return out
}

func (v *Verifier) lastCall(t *task.Task) *toolregistry.LastCall {
	if v.dispatcher == nil {
		return nil
	}
	return v.dispatcher.LastCallFor(t.ID)
}

func (v *Verifier) resolve(raw string) (*workspace.ResolvedPath, error) {
	if v.resolver == nil {
		return nil, fmt.Errorf("no resolver configured")
	}
	return v.resolver.Resolve(raw, workspace.PurposeRead)
}

func containsFold(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, needle := range needles {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}
