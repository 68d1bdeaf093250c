package task

import (
	"fmt"
	"regexp"
	"strings"
)

// GoalStatus tracks goal progress across validations.
type GoalStatus string

const (
	GoalPending   GoalStatus = "pending"
	GoalMet       GoalStatus = "met"
	GoalUnmet     GoalStatus = "unmet"
	GoalAbandoned GoalStatus = "abandoned"
)

// Metric is one measurable slice of a goal.
type Metric struct {
	Name    string `json:"name"`
	Target  any    `json:"target"`
	Current any    `json:"current,omitempty"`
	Passed  bool   `json:"passed"`
}

// Evaluate compares Current against Target and updates Passed. Numeric
// targets pass on >=, booleans on equality, strings on substring containment,
// anything else on exact equality.
func (m *Metric) Evaluate() bool {
	switch target := m.Target.(type) {
	case int, int64, float64, float32:
		tv, tok := asFloat(target)
		cv, cok := asFloat(m.Current)
		m.Passed = tok && cok && cv >= tv
	case bool:
		cv, ok := m.Current.(bool)
		m.Passed = ok && cv == target
	case string:
		cv, ok := m.Current.(string)
		m.Passed = ok && strings.Contains(cv, target)
	default:
		m.Passed = m.Current == m.Target
	}
	return m.Passed
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Goal is one outcome the plan should achieve.
type Goal struct {
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Status      GoalStatus `json:"status"`
	Metrics     []Metric   `json:"metrics,omitempty"`
}

// Evaluate recomputes every metric and derives the goal status.
func (g *Goal) Evaluate() GoalStatus {
	if len(g.Metrics) == 0 {
		return g.Status
	}
	allPassed := true
	for i := range g.Metrics {
		if !g.Metrics[i].Evaluate() {
			allPassed = false
		}
	}
	if allPassed {
		g.Status = GoalMet
	} else {
		g.Status = GoalUnmet
	}
	return g.Status
}

// Plan is an ordered task list plus optional goals.
type Plan struct {
	Request string  `json:"request"`
	Tasks   []*Task `json:"tasks"`
	Goals   []Goal  `json:"goals,omitempty"`
}

// NewPlan creates an empty plan for a request.
func NewPlan(request string) *Plan {
	return &Plan{Request: request}
}

// Add appends a task, deriving its risk and rollback plan.
func (p *Plan) Add(t *Task) {
	if t.Risk == "" {
		t.Risk = DeriveRisk(t)
	}
	if t.Rollback == "" && (t.Risk == RiskHigh || t.Risk == RiskCritical) {
		t.Rollback = rollbackPlan(t)
	}
	p.Tasks = append(p.Tasks, t)
}

// MarkTaskInProgress transitions a PENDING or FAILED task to IN_PROGRESS.
func (p *Plan) MarkTaskInProgress(t *Task) error {
	if t.Status != StatusPending && t.Status != StatusFailed {
		return fmt.Errorf("mark in progress requires PENDING or FAILED, task %s is %s", t.ID, t.Status)
	}
	return t.SetStatus(StatusInProgress, "")
}

// MarkTaskCompleted transitions an IN_PROGRESS task to COMPLETED.
func (p *Plan) MarkTaskCompleted(t *Task) error {
	if t.Status != StatusInProgress {
		return fmt.Errorf("mark completed requires IN_PROGRESS, task %s is %s", t.ID, t.Status)
	}
	return t.SetStatus(StatusCompleted, "")
}

// MarkTaskFailed transitions an IN_PROGRESS task to FAILED and records why.
func (p *Plan) MarkTaskFailed(t *Task, reason string) error {
	if err := t.SetStatus(StatusFailed, reason); err != nil {
		return err
	}
	t.Error = reason
	return nil
}

// Complete reports whether every task reached COMPLETED.
func (p *Plan) Complete() bool {
	if len(p.Tasks) == 0 {
		return false
	}
	for _, t := range p.Tasks {
		if t.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Pending returns the first task still in PENDING order, or nil.
func (p *Plan) Pending() *Task {
	for _, t := range p.Tasks {
		if t.Status == StatusPending {
			return t
		}
	}
	return nil
}

var securitySensitive = []string{
	"password", "secret", "credential", "token", "auth", "private key", ".env",
}

var pathTokenRe = regexp.MustCompile(`[\w./\\-]+\.[A-Za-z]{1,4}\b|[\w./\\-]+/`)

// DeriveRisk applies simple heuristics: destructive actions and
// security-sensitive descriptions rank higher, as do mutations spanning many
// files.
func DeriveRisk(t *Task) Risk {
	lower := strings.ToLower(t.Description)

	if t.Action.IsMutating() {
		for _, needle := range securitySensitive {
			if strings.Contains(lower, needle) {
				return RiskCritical
			}
		}
		if t.Action == ActionDelete || t.Action == ActionRename {
			return RiskHigh
		}
		if len(pathTokenRe.FindAllString(t.Description, -1)) >= 3 {
			return RiskHigh
		}
		return RiskMedium
	}
	if t.Action.IsExecution() {
		return RiskMedium
	}
	return RiskLow
}

func rollbackPlan(t *Task) string {
	paths := pathTokenRe.FindAllString(t.Description, -1)
	if len(paths) == 0 {
		return "git checkout -- . && git clean -fd --dry-run"
	}
	return "git checkout -- " + strings.Join(paths, " ")
}
