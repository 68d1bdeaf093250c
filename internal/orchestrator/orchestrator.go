// Package orchestrator runs the plan -> preflight -> execute -> verify loop
// for one request, under budgets and circuit breakers. It is single-threaded
// and cooperative: the only suspension points are Chat calls and tool
// invocations, and a process-wide escape flag is honored at every one.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/trace"

	"rev/internal/agent/ports"
	"rev/internal/executor"
	"rev/internal/logging"
	"rev/internal/memory"
	"rev/internal/observability"
	"rev/internal/planner"
	"rev/internal/preflight"
	"rev/internal/router"
	"rev/internal/task"
	"rev/internal/toolerr"
	"rev/internal/toolregistry"
	"rev/internal/verifier"
	"rev/internal/workspace"
)

const (
	// ExecutionLinear plans the whole request up front and walks the plan.
	ExecutionLinear = "linear"
	// ExecutionSubAgent asks the planner for one next action per iteration.
	ExecutionSubAgent = "sub-agent"

	defaultMaxIterations = 40
	redundantReadLimit   = 5
)

// Config wires an Orchestrator.
type Config struct {
	LLM        ports.LLMClient
	Registry   ports.ToolRegistry
	Dispatcher *toolregistry.Dispatcher
	Resolver   *workspace.Resolver
	Runner     verifier.CommandRunner
	Logger     logging.Logger
	Memory     *memory.Store
	Metrics    *observability.Metrics
	Tracer     trace.Tracer
	Mode       router.Config

	ReadOnly      bool
	TDDEnabled    bool
	Resume        bool
	Execution     string
	MaxIterations int
	Caps          Caps
	Anchoring     AnchoringTunables
}

// Result is the structured outcome of one orchestrated request.
type Result struct {
	Success     bool
	Interrupted bool
	NoRetry     bool
	Phase       string
	Request     string
	Plan        *task.Plan
	Iterations  int
	TokensUsed  int
	Steps       int
	Elapsed     time.Duration
	Errors      []string
	Insights    []string
}

// Orchestrator owns the loop state for one request at a time.
type Orchestrator struct {
	llm        *meteredLLM
	registry   ports.ToolRegistry
	dispatcher *toolregistry.Dispatcher
	resolver   *workspace.Resolver
	logger     logging.Logger
	memory     *memory.Store
	metrics    *observability.Metrics
	tracer     trace.Tracer

	planner   *planner.Planner
	executor  *executor.Executor
	preflight *preflight.Checker
	verifier  *verifier.Verifier

	readOnly      bool
	resume        bool
	execution     string
	maxIterations int
	anchoring     AnchoringTunables

	budget   *Budget
	breakers *breakers
	recovery recoveryBudgets
	escape   atomic.Bool

	state               *verifier.State
	history             []workRecord
	restoredHistory     []string
	agentRequests       []string
	pendingTasks        []*task.Task
	readCounts          *lru.Cache[string, int]
	lastTestHash        string
	testsBlocked        bool
	lastChangeIteration int
	groundingInjected   bool
}

// New wires the loop's collaborators. The LLM handed to the planner and
// executor is metered and honors the escape flag before every call.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("orchestrator")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.Tracer()
	}

	o := &Orchestrator{
		registry:      cfg.Registry,
		dispatcher:    cfg.Dispatcher,
		resolver:      cfg.Resolver,
		logger:        logger,
		memory:        cfg.Memory,
		metrics:       cfg.Metrics,
		tracer:        tracer,
		readOnly:      cfg.ReadOnly,
		resume:        cfg.Resume,
		execution:     cfg.Execution,
		maxIterations: cfg.MaxIterations,
		anchoring:     cfg.Anchoring,
		budget:        NewBudget(cfg.Caps),
		breakers:      newBreakers(),
		recovery:      recoveryBudgets{},
		state:         verifier.NewState(cfg.TDDEnabled),
	}
	if o.execution == "" {
		o.execution = ExecutionSubAgent
	}
	if o.maxIterations <= 0 {
		o.maxIterations = defaultMaxIterations
	}
	if o.anchoring == (AnchoringTunables{}) {
		o.anchoring = DefaultAnchoring()
	}
	o.readCounts, _ = lru.New[string, int](512)

	o.llm = &meteredLLM{inner: cfg.LLM, budget: o.budget, escape: &o.escape}

	summary := ""
	if cfg.Memory != nil {
		if rendered, err := cfg.Memory.Render(); err == nil {
			summary = rendered
		}
	}
	o.planner = planner.New(planner.Config{
		LLM:            o.llm,
		Dispatcher:     cfg.Dispatcher,
		Registry:       cfg.Registry,
		Logger:         logger,
		ProjectSummary: summary,
	})
	o.executor = executor.New(executor.Config{
		LLM:        o.llm,
		Dispatcher: cfg.Dispatcher,
		Registry:   cfg.Registry,
		Resolver:   cfg.Resolver,
		Logger:     logger,
	})
	o.preflight = preflight.New(cfg.Resolver, logger)
	o.verifier = verifier.New(verifier.Config{
		Registry:   cfg.Registry,
		Dispatcher: cfg.Dispatcher,
		Resolver:   cfg.Resolver,
		Runner:     cfg.Runner,
		Logger:     logger,
		Mode:       cfg.Mode,
	})
	return o
}

// Interrupt requests a cooperative stop. The loop checks the flag at the top
// of every iteration and before every Chat call.
func (o *Orchestrator) Interrupt() {
	o.escape.Store(true)
}

// Run drives one request to completion, failure, or interruption.
func (o *Orchestrator) Run(ctx context.Context, request string) (res *Result) {
	res = &Result{Request: request, Phase: "planning", Plan: task.NewPlan(request)}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("internal error in phase %s: %v", res.Phase, r))
		}
		res.TokensUsed = o.budget.TokensUsed()
		res.Steps = o.budget.Steps()
		res.Elapsed = o.budget.Elapsed()
	}()

	if o.resume {
		o.restoreSession(request)
	}

	if o.execution == ExecutionLinear {
		return o.runLinear(ctx, request, res)
	}
	return o.runContinuous(ctx, res)
}

type loopVerdict int

const (
	loopContinue loopVerdict = iota
	loopDone
	loopStop
)

func (o *Orchestrator) runContinuous(ctx context.Context, res *Result) *Result {
	for iter := 1; iter <= o.maxIterations; iter++ {
		res.Iterations = iter
		verdict := o.iterate(ctx, res, iter)
		o.checkpoint(res, iter)
		switch verdict {
		case loopDone:
			res.Success = true
			res.Phase = "completed"
			return res
		case loopStop:
			return res
		}
	}
	res.Errors = append(res.Errors, fmt.Sprintf("iteration cap %d reached", o.maxIterations))
	return res
}

// iterate is one pass of the continuous REPL.
func (o *Orchestrator) iterate(ctx context.Context, res *Result, iter int) loopVerdict {
	ctx, span := o.tracer.Start(ctx, "orchestrator.iteration")
	defer span.End()

	if o.metrics != nil {
		o.metrics.LoopIterations.Inc()
	}
	if o.escape.Load() {
		o.markInterrupted(res)
		return loopStop
	}
	o.budget.Step()
	if reason, exceeded := o.budget.Exceeded(); exceeded {
		res.NoRetry = true
		res.Phase = "budget"
		res.Errors = append(res.Errors, reason)
		return loopStop
	}
	if o.greenAndUnchanged() && grounded(o.history) {
		res.Insights = append(res.Insights, "tests are green and no code changed since the last run")
		return loopDone
	}

	var t *task.Task
	if len(o.pendingTasks) > 0 {
		t = o.pendingTasks[0]
		o.pendingTasks = o.pendingTasks[1:]
	} else {
		res.Phase = "planning"
		next, done, err := o.planner.NextAction(ctx, planner.ContinuousRequest{
			Request:        res.Request,
			History:        o.historyLines(),
			AgentRequests:  o.drainAgentRequests(),
			TDDRequireTest: o.state.TDDRequireTest,
			TestsBlocked:   o.testsBlocked,
		})
		if err != nil {
			if errors.Is(err, errEscape) {
				o.markInterrupted(res)
				return loopStop
			}
			res.Errors = append(res.Errors, fmt.Sprintf("planner: %v", err))
			return loopStop
		}
		switch {
		case done && !o.state.TDDRequireTest:
			return o.handleGoalAchieved(res)
		case done:
			o.logger.Info("tdd: completion claimed before the confirming test run")
			t = tddConfirmTask()
		case o.state.TDDRequireTest && next.Action != task.ActionTest:
			o.logger.Info("tdd: %s proposal overridden; a test run is required first", next.Action)
			t = tddConfirmTask()
		default:
			t = next
		}
	}

	return o.step(ctx, res.Plan, t, res, iter, true)
}

// handleGoalAchieved gates a GOAL_ACHIEVED claim behind completion grounding.
func (o *Orchestrator) handleGoalAchieved(res *Result) loopVerdict {
	if grounded(o.history) {
		score := anchoringScore(o.history, o.anchoring)
		if (score < o.anchoring.StopThreshold || float64(mismatchRisk(o.history)) >= o.anchoring.MismatchRisk) && !o.groundingInjected {
			o.groundingInjected = true
			o.logger.Info("completion claim weakly anchored (score %.2f); injecting a verification step", score)
			o.pendingTasks = append(o.pendingTasks,
				task.New(task.ActionReview, "Review the touched files again to confirm the claimed result"))
			return loopContinue
		}
		return loopDone
	}

	if o.groundingInjected {
		o.trip(res, "planner", msgPlannerExhausted)
		return loopStop
	}
	o.groundingInjected = true
	o.pendingTasks = append(o.pendingTasks, o.groundingFixTask())
	return loopContinue
}

// tddConfirmTask is the forced green-phase run. While TDDRequireTest is set
// the loop dispatches nothing else and rejects completion claims.
func tddConfirmTask() *task.Task {
	return task.New(task.ActionTest, "Run the project test suite to confirm the red test now passes")
}

func (o *Orchestrator) groundingFixTask() *task.Task {
	if !hasResearchEvidence(o.history) {
		return task.New(task.ActionReview, "Inspect the workspace with list_dir to confirm what is on disk")
	}
	return task.New(task.ActionTest, "Run the project test suite to confirm the current behavior")
}

// step runs one task through preflight, dispatch, and verification.
// enqueue=false means the task is already part of the plan (linear mode).
func (o *Orchestrator) step(ctx context.Context, plan *task.Plan, t *task.Task, res *Result, iter int, enqueue bool) loopVerdict {
	if o.readOnly && t.Action.IsMutating() {
		o.logger.Info("read-only mode: %s coerced to review", t.Action)
		t.Action = task.ActionReview
		t.Description += " (read-only mode: review without modifying files)"
	}

	res.Phase = "preflight"
	ok, msgs := o.preflight.CheckSemantics(t)
	if ok {
		var pathMsgs []string
		ok, pathMsgs = o.preflight.CheckPaths(t)
		msgs = append(msgs, pathMsgs...)
	}
	if !ok {
		sig := preflight.Signature(t, msgs)
		if o.breakers.bumpPreflight(sig) >= breakerThreshold {
			o.trip(res, "preflight", msgRepeatPreflight+": "+firstMsg(msgs))
			return loopStop
		}
		o.record(iter, t, task.StatusFailed, "preflight: "+strings.Join(msgs, "; "), nil)
		o.agentRequests = append(o.agentRequests, "REPLAN_REQUEST: preflight rejected the task: "+firstMsg(msgs))
		if !enqueue {
			_ = t.SetStatus(task.StatusStopped, "preflight rejected")
		}
		return loopContinue
	}

	if o.breakers.bumpAction(actionSignature(t)) >= breakerThreshold {
		o.trip(res, "action", msgRepeatAction)
		return loopStop
	}

	if t.Action.IsReadOnly() {
		if path, count := o.redundantRead(t); count >= redundantReadLimit {
			o.agentRequests = append(o.agentRequests, fmt.Sprintf(
				"REDUNDANT_FILE_READ: %s has already been read %d times; act on its content instead of re-reading", path, count))
			o.record(iter, t, task.StatusStopped, "refused redundant read of "+path, nil)
			if !enqueue {
				_ = t.SetStatus(task.StatusStopped, "redundant read")
			}
			return loopContinue
		}
	}

	if t.Action == task.ActionTest {
		if hash := o.codeHash(); hash != "" && (hash == o.lastTestHash || hash == o.state.LastGreenHash) {
			if enqueue {
				plan.Add(t)
			}
			if err := plan.MarkTaskInProgress(t); err == nil {
				t.Result = map[string]any{"skipped": true}
				_ = plan.MarkTaskCompleted(t)
			}
			o.testsBlocked = true
			o.record(iter, t, t.Status, "tests skipped: no code changed since the last run", nil)
			return loopContinue
		}
	}

	res.Phase = "executing"
	if enqueue {
		plan.Add(t)
	}
	outcome := o.executor.Dispatch(ctx, plan, t)
	o.bumpReadCounts(t)
	o.recordLastToolFailure(t)
	if o.metrics != nil {
		o.metrics.TasksDispatched.WithLabelValues(string(t.Action)).Inc()
	}

	switch {
	case outcome.Status == task.StatusStopped:
		o.record(iter, t, task.StatusStopped, outcome.Summary, toolsOf(t))
		res.Interrupted = true
		res.Errors = append(res.Errors, "stopped: "+firstLine(outcome.Summary))
		return loopStop
	case outcome.Fatal:
		res.NoRetry = true
		res.Errors = append(res.Errors, outcome.Summary)
		return loopStop
	case outcome.Status == task.StatusFailed:
		o.maybeRecordFailure(outcome.Summary)
		o.record(iter, t, task.StatusFailed, outcome.Summary, toolsOf(t))
		o.agentRequests = append(o.agentRequests, "REPLAN_REQUEST: "+firstLine(outcome.Summary))
		return loopContinue
	}

	res.Phase = "verifying"
	vr := o.verifier.Verify(ctx, t, o.state)
	if o.metrics != nil {
		o.metrics.VerificationOutcomes.WithLabelValues(verdictLabel(vr)).Inc()
	}

	if t.Action == task.ActionTest {
		hash := o.codeHash()
		o.lastTestHash = hash
		if vr.Passed {
			if blocked, _ := vr.Details["blocked"].(bool); !blocked {
				o.state.LastGreenHash = hash
				o.testsBlocked = false
			}
		}
	}

	if vr.Inconclusive {
		o.record(iter, t, t.Status, "inconclusive: "+vr.Message, toolsOf(t))
		o.pendingTasks = append(o.pendingTasks, o.testTaskFor(vr))
		return loopContinue
	}
	if !vr.Passed {
		o.maybeRecordFailure(vr.Message)
		o.record(iter, t, t.Status, "verification failed: "+vr.Message, toolsOf(t))
		if !vr.ShouldReplan {
			res.NoRetry = true
			res.Errors = append(res.Errors, vr.Message)
			return loopStop
		}
		kind := toolerr.Classify(nil, string(t.Action), vr.Message).Kind
		if remaining := o.recovery.consume(kind); remaining <= 0 {
			res.NoRetry = true
			res.Errors = append(res.Errors, fmt.Sprintf("recovery budget exhausted for %s: %s", kind, firstLine(vr.Message)))
			return loopStop
		}
		if o.breakers.bumpFailure(failureSignature(t, vr.Message)) >= breakerThreshold {
			o.trip(res, "failure", msgRepeatFailure)
			return loopStop
		}
		o.agentRequests = append(o.agentRequests, "REPLAN_REQUEST: verification failed: "+firstLine(vr.Message))
		return loopContinue
	}

	o.record(iter, t, t.Status, vr.Message, toolsOf(t))
	if t.Action.IsMutating() {
		o.lastChangeIteration = iter
		o.testsBlocked = false
		o.recordChangedFiles(t)
	}
	return loopContinue
}

// runLinear plans the whole request once, then walks the plan under the same
// budgets and breakers as the continuous loop.
func (o *Orchestrator) runLinear(ctx context.Context, request string, res *Result) *Result {
	if o.escape.Load() {
		o.markInterrupted(res)
		return res
	}

	plan, err := o.planner.PlanBatch(ctx, request, o.repoContext())
	if err != nil {
		if errors.Is(err, errEscape) {
			o.markInterrupted(res)
			return res
		}
		res.Errors = append(res.Errors, fmt.Sprintf("planner: %v", err))
		return res
	}
	res.Plan = plan

	for iter := 1; iter <= o.maxIterations; iter++ {
		var t *task.Task
		enqueue := false
		if len(o.pendingTasks) > 0 {
			t = o.pendingTasks[0]
			o.pendingTasks = o.pendingTasks[1:]
			enqueue = true
		} else if t = plan.Pending(); t == nil {
			break
		}

		res.Iterations = iter
		if o.escape.Load() {
			o.markInterrupted(res)
			return res
		}
		o.budget.Step()
		if reason, exceeded := o.budget.Exceeded(); exceeded {
			res.NoRetry = true
			res.Phase = "budget"
			res.Errors = append(res.Errors, reason)
			return res
		}

		verdict := o.step(ctx, plan, t, res, iter, enqueue)
		o.checkpoint(res, iter)
		if verdict == loopStop {
			return res
		}
	}

	res.Success = plan.Complete()
	res.Phase = "completed"
	if !res.Success {
		res.Phase = "executing"
		res.Errors = append(res.Errors, "plan finished with incomplete tasks")
	}
	return res
}

func (o *Orchestrator) trip(res *Result, breaker, message string) {
	res.NoRetry = true
	res.Phase = breaker
	res.Errors = append(res.Errors, message)
	res.Insights = append(res.Insights, "run with --debug and share the last verification failure + tool args")
	if o.metrics != nil {
		o.metrics.CircuitTrips.WithLabelValues(breaker).Inc()
	}
	o.logger.Error("%s", message)
}

func (o *Orchestrator) markInterrupted(res *Result) {
	res.Interrupted = true
	res.Errors = append(res.Errors, "interrupted by escape request")
	if res.Plan != nil {
		for _, t := range res.Plan.Tasks {
			if t.Status == task.StatusInProgress {
				_ = t.SetStatus(task.StatusStopped, "escape requested")
			}
		}
	}
}

// greenAndUnchanged holds when the last test run was green and the workspace
// hash has not moved since.
func (o *Orchestrator) greenAndUnchanged() bool {
	if o.state.LastGreenHash == "" || len(o.history) == 0 {
		return false
	}
	return o.codeHash() == o.state.LastGreenHash
}

// redundantRead returns the first path the task wants to read and how many
// times it has been read already.
func (o *Orchestrator) redundantRead(t *task.Task) (string, int) {
	for _, token := range pathTokens(t.Description) {
		if count, ok := o.readCounts.Get(token); ok {
			return token, count
		}
	}
	return "", 0
}

func (o *Orchestrator) bumpReadCounts(t *task.Task) {
	for _, ev := range t.Events {
		if ev.Tool != "file_read" {
			continue
		}
		path, _ := ev.Args["path"].(string)
		if path == "" {
			continue
		}
		count, _ := o.readCounts.Get(path)
		o.readCounts.Add(path, count+1)
	}
}

// testTaskFor synthesizes the targeted test task injected after an
// inconclusive verification, choosing the runner by file extension.
func (o *Orchestrator) testTaskFor(vr verifier.Result) *task.Task {
	file, _ := vr.Details["file_path"].(string)
	command := testCommandFor(file)
	description := fmt.Sprintf("Run %s to validate the change", command)
	if file != "" {
		description = fmt.Sprintf("Run %s to validate %s", command, file)
	}
	return task.New(task.ActionTest, description)
}

func testCommandFor(path string) string {
	switch filepath.Ext(path) {
	case ".js", ".jsx", ".ts", ".tsx", ".vue", ".mjs":
		return "npm test"
	case ".go":
		return "go test ./..."
	case ".rs":
		return "cargo test"
	}
	return "pytest -q"
}

// knownFailureNeedles drive the memory heuristic: specific recurring error
// texts become Known Failure Modes entries, recorded once.
var knownFailureNeedles = []struct {
	needle string
	title  string
	fix    string
}{
	{
		needle: "outside allowed workspace roots",
		title:  "Workspace path outside allowed roots",
		fix:    "use workspace-relative paths; extend the allowlist only deliberately",
	},
	{
		needle: "could not determine file path to verify",
		title:  "Task finished without a verifiable file target",
		fix:    "tool calls must carry an explicit path argument",
	},
	{
		needle: "extraction created directory but extracted no files",
		title:  "Module split produced an empty package",
		fix:    "rerun split_module_classes against the flat source module",
	},
}

func (o *Orchestrator) maybeRecordFailure(text string) {
	if o.memory == nil || text == "" {
		return
	}
	lower := strings.ToLower(text)
	for _, known := range knownFailureNeedles {
		if strings.Contains(lower, known.needle) {
			if err := o.memory.Record(memory.SectionKnownFailures, known.title,
				"Seen: "+firstLine(text)+"\nFix: "+known.fix); err != nil {
				o.logger.Warn("memory record: %v", err)
			}
			return
		}
	}
}

// recordLastToolFailure surfaces in-band tool errors (which never unwind
// through the loop) to the memory heuristic.
func (o *Orchestrator) recordLastToolFailure(t *task.Task) {
	if o.dispatcher == nil {
		return
	}
	last := o.dispatcher.LastCallFor(t.ID)
	if last == nil || last.Result == nil || last.Result.Error == nil {
		return
	}
	o.maybeRecordFailure(last.Result.Error.Error())
}

func (o *Orchestrator) recordChangedFiles(t *task.Task) {
	if o.memory == nil {
		return
	}
	for _, ev := range t.Events {
		if o.registry == nil || !o.registry.IsWriting(ev.Tool) {
			continue
		}
		if path, ok := ev.Args["path"].(string); ok && path != "" {
			if err := o.memory.RecordChangedFile(path); err != nil {
				o.logger.Warn("memory changed-file: %v", err)
			}
		}
	}
}

func (o *Orchestrator) record(iter int, t *task.Task, status task.Status, message string, tools []string) {
	o.history = append(o.history, workRecord{
		Iteration:   iter,
		Action:      t.Action,
		Description: t.Description,
		Status:      status,
		Message:     message,
		Tools:       tools,
	})
}

func (o *Orchestrator) historyLines() []string {
	lines := append([]string(nil), o.restoredHistory...)
	for _, r := range o.history {
		lines = append(lines, r.line())
	}
	return lines
}

func (o *Orchestrator) drainAgentRequests() []string {
	out := o.agentRequests
	o.agentRequests = nil
	return out
}

func (o *Orchestrator) checkpoint(res *Result, iter int) {
	if o.resolver == nil {
		return
	}
	snap := sessionSnapshot{
		Request:    res.Request,
		StartedAt:  o.budget.StartedAt(),
		Iteration:  iter,
		TokensUsed: o.budget.TokensUsed(),
		Steps:      o.budget.Steps(),
		History:    o.historyLines(),
		AgentState: map[string]any{
			"tdd_pending_green":     o.state.TDDPendingGreen,
			"tdd_require_test":      o.state.TDDRequireTest,
			"last_green_hash":       o.state.LastGreenHash,
			"tests_blocked":         o.testsBlocked,
			"last_change_iteration": o.lastChangeIteration,
		},
		Tasks: snapshotTasks(res.Plan),
	}
	if err := saveSession(o.resolver.Primary(), snap); err != nil {
		o.logger.Warn("session checkpoint: %v", err)
	}
}

// restoreSession loads the explicit resume snapshot. History is restored as
// prompt context only; task state machines start fresh.
func (o *Orchestrator) restoreSession(request string) {
	if o.resolver == nil {
		return
	}
	snap, err := loadSession(o.resolver.Primary())
	if err != nil {
		o.logger.Warn("resume: %v", err)
		return
	}
	if snap.Request != "" && snap.Request != request {
		o.logger.Warn("resume: snapshot is for a different request, ignoring")
		return
	}
	o.restoredHistory = snap.History
	if state := snap.AgentState; state != nil {
		if v, ok := state["tdd_pending_green"].(bool); ok {
			o.state.TDDPendingGreen = v
		}
		if v, ok := state["tdd_require_test"].(bool); ok {
			o.state.TDDRequireTest = v
		}
		if v, ok := state["last_green_hash"].(string); ok {
			o.state.LastGreenHash = v
		}
		if v, ok := state["tests_blocked"].(bool); ok {
			o.testsBlocked = v
		}
	}
	o.logger.Info("resumed session at iteration %d with %d history lines", snap.Iteration, len(snap.History))
}

// repoContext is the small workspace overview handed to batch planning.
func (o *Orchestrator) repoContext() string {
	if o.resolver == nil {
		return ""
	}
	entries, err := os.ReadDir(o.resolver.Primary())
	if err != nil {
		return ""
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if hashSkipDirs[name] {
			continue
		}
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return "Top-level entries: " + strings.Join(names, ", ")
}

func toolsOf(t *task.Task) []string {
	var out []string
	for _, ev := range t.Events {
		out = append(out, ev.Tool)
	}
	return out
}

func verdictLabel(vr verifier.Result) string {
	switch {
	case vr.Passed:
		return "passed"
	case vr.Inconclusive:
		return "inconclusive"
	}
	return "failed"
}

func firstMsg(msgs []string) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0]
}
