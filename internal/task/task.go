package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the task lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusStopped    Status = "STOPPED"
)

// validTransitions is the full transition relation. COMPLETED is terminal:
// "looks done" can never be revised back into "not done".
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusStopped},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusStopped},
	StatusFailed:     {StatusInProgress},
	StatusStopped:    {StatusPending},
	StatusCompleted:  {},
}

// TransitionError reports an attempted invalid status transition.
type TransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: invalid transition %s -> %s", e.TaskID, e.From, e.To)
}

// Transition is one applied status change.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// ToolEvent is one record of a tool call appended to a task. Events are
// appended in call order and never mutated.
type ToolEvent struct {
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args,omitempty"`
	Result      string         `json:"result,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	ArtifactRef string         `json:"artifact_ref,omitempty"`
	At          time.Time      `json:"at"`
}

// Risk is the derived task risk level.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Task is one unit of orchestrated work.
type Task struct {
	ID              string         `json:"id"`
	Action          Action         `json:"action"`
	Description     string         `json:"description"`
	Status          Status         `json:"status"`
	Error           string         `json:"error,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	Events          []ToolEvent    `json:"events,omitempty"`
	ValidationSteps []string       `json:"validation_steps,omitempty"`
	Risk            Risk           `json:"risk,omitempty"`
	Rollback        string         `json:"rollback,omitempty"`

	History []Transition `json:"history,omitempty"`
}

// New creates a pending task with a fresh id.
func New(action Action, description string) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Action:      action,
		Description: description,
		Status:      StatusPending,
	}
}

// SetStatus applies a status transition, rejecting anything outside the state
// machine. Each applied transition is appended to the in-memory history.
func (t *Task) SetStatus(next Status, reason string) error {
	if next == t.Status {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: next}
	}
	allowed := false
	for _, candidate := range validTransitions[t.Status] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: next}
	}

	t.History = append(t.History, Transition{
		From:   t.Status,
		To:     next,
		At:     time.Now(),
		Reason: reason,
	})
	t.Status = next
	return nil
}

// AppendEvent records a tool invocation on the task.
func (t *Task) AppendEvent(ev ToolEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	t.Events = append(t.Events, ev)
}

// HasWritingEvent reports whether any recorded event used a writing tool,
// according to the supplied classifier.
func (t *Task) HasWritingEvent(isWriting func(tool string) bool) bool {
	for _, ev := range t.Events {
		if isWriting(ev.Tool) {
			return true
		}
	}
	return false
}

// LastEvent returns the most recent tool event, or nil.
func (t *Task) LastEvent() *ToolEvent {
	if len(t.Events) == 0 {
		return nil
	}
	return &t.Events[len(t.Events)-1]
}

// Recoverable reports whether the task can be driven again: only FAILED and
// STOPPED are recoverable states.
func (t *Task) Recoverable() bool {
	return t.Status == StatusFailed || t.Status == StatusStopped
}
