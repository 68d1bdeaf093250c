package orchestrator

import (
	"strings"

	"rev/internal/task"
	"rev/internal/toolerr"
)

// breakerThreshold is how many identical signatures trip a circuit.
const breakerThreshold = 3

const (
	msgRepeatAction     = "Circuit breaker: repeating action"
	msgRepeatFailure    = "Circuit breaker: repeating verification failure"
	msgRepeatPreflight  = "Circuit breaker: repeated preflight failure"
	msgPlannerExhausted = "Circuit breaker: planner exhausted without grounded completion"
)

// breakers counts signatures for the three repeat circuits.
type breakers struct {
	actions    map[string]int
	failures   map[string]int
	preflights map[string]int
}

func newBreakers() *breakers {
	return &breakers{
		actions:    make(map[string]int),
		failures:   make(map[string]int),
		preflights: make(map[string]int),
	}
}

func (b *breakers) bumpAction(sig string) int {
	b.actions[sig]++
	return b.actions[sig]
}

func (b *breakers) bumpFailure(sig string) int {
	b.failures[sig]++
	return b.failures[sig]
}

func (b *breakers) bumpPreflight(sig string) int {
	b.preflights[sig]++
	return b.preflights[sig]
}

// actionSignature is (action, whitespace-normalized lowercase description).
func actionSignature(t *task.Task) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(t.Description)), " ")
	return string(t.Action) + "|" + normalized
}

// failureSignature is (action, first line of the failure message).
func failureSignature(t *task.Task, message string) string {
	return string(t.Action) + "|" + strings.ToLower(firstLine(message))
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// recoveryBudgets tracks the per-error-kind retry counters. Counters
// initialize lazily from the kind's default and decrement on each classified
// verification failure.
type recoveryBudgets map[toolerr.Kind]int

// consume decrements the counter for kind and returns the remainder.
func (r recoveryBudgets) consume(kind toolerr.Kind) int {
	if _, ok := r[kind]; !ok {
		r[kind] = kind.DefaultRecoveryBudget()
	}
	r[kind]--
	return r[kind]
}
