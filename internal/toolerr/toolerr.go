package toolerr

import (
	"fmt"
	"strings"
)

// Kind is the closed classification set for tool failures.
type Kind string

const (
	Transient        Kind = "TRANSIENT"
	Timeout          Kind = "TIMEOUT"
	Network          Kind = "NETWORK"
	NotFound         Kind = "NOT_FOUND"
	PermissionDenied Kind = "PERMISSION_DENIED"
	SyntaxError      Kind = "SYNTAX_ERROR"
	ValidationError  Kind = "VALIDATION_ERROR"
	Conflict         Kind = "CONFLICT"
	Unknown          Kind = "UNKNOWN"
)

// Kinds lists every kind, in classification priority order.
var Kinds = []Kind{
	NotFound, PermissionDenied, Timeout, Network,
	SyntaxError, Conflict, ValidationError, Transient, Unknown,
}

// IsRetryable reports whether the failure is worth an immediate retry.
func (k Kind) IsRetryable() bool {
	switch k {
	case Transient, Timeout, Network:
		return true
	}
	return false
}

// RequiresUserInput reports whether recovery needs a human decision.
func (k Kind) RequiresUserInput() bool {
	return k == PermissionDenied || k == Conflict
}

// RecoverableByAgent reports whether the planner can route around the
// failure without user help.
func (k Kind) RecoverableByAgent() bool {
	if k.IsRetryable() {
		return true
	}
	switch k {
	case NotFound, SyntaxError, ValidationError:
		return true
	}
	return false
}

// DefaultRecoveryBudget returns the per-kind retry counter used by the
// orchestrator's recovery budgets.
func (k Kind) DefaultRecoveryBudget() int {
	switch k {
	case Transient:
		return 8
	case Timeout, Network:
		return 6
	case NotFound, SyntaxError, ValidationError:
		return 3
	case Conflict, Unknown:
		return 2
	case PermissionDenied:
		return 1
	}
	return 2
}

// Error is the tagged tool failure handed to the recovery logic.
type Error struct {
	Kind          Kind
	Message       string
	Original      error
	Tool          string
	Context       map[string]any
	RecoverySteps []string
}

func (e *Error) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Tool, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Original
}

// Recoverable reports whether the agent can recover without user input.
func (e *Error) Recoverable() bool {
	return e.Kind.RecoverableByAgent()
}

// New builds a tagged error with default recovery hints for its kind.
func New(kind Kind, tool, message string) *Error {
	return &Error{
		Kind:          kind,
		Tool:          tool,
		Message:       message,
		RecoverySteps: defaultRecoverySteps(kind),
	}
}

type pattern struct {
	kind    Kind
	needles []string
}

// Classification rules in priority order. Message text is checked before
// detail text; matching is case-insensitive substring containment.
var patterns = []pattern{
	{NotFound, []string{"no such file", "enoent", "file not found", "not found", "does not exist"}},
	{PermissionDenied, []string{"permission denied", "eacces", "eperm", "forbidden", "access denied"}},
	{Timeout, []string{"timed out", "timeout", "deadline exceeded"}},
	{Network, []string{"connection refused", "connection reset", "no such host", "dns", "network is unreachable", "host unreachable", "broken pipe"}},
	{SyntaxError, []string{"syntax error", "unexpected token", "invalid syntax", "parse error", "syntaxerror"}},
	{Conflict, []string{"already exists", "duplicate key", "unique constraint", "eexist", "conflict"}},
	{ValidationError, []string{"invalid argument", "typeerror", "valueerror", "validation failed", "invalid value", "missing required"}},
	{Transient, []string{"service unavailable", "503", "429", "rate limit", "too many requests", "database is locked", "deadlock", "try again"}},
}

// Classify maps an arbitrary failure into the closed kind set. message is
// checked before details; the tool name is recorded but does not influence
// classification.
func Classify(err error, tool string, message string, details ...string) *Error {
	if message == "" && err != nil {
		message = err.Error()
	}

	kind := classifyText(message)
	if kind == Unknown {
		for _, detail := range details {
			if kind = classifyText(detail); kind != Unknown {
				break
			}
		}
	}

	out := New(kind, tool, message)
	out.Original = err
	if len(details) > 0 {
		out.Context = map[string]any{"details": details}
	}
	return out
}

func classifyText(text string) Kind {
	lower := strings.ToLower(text)
	if lower == "" {
		return Unknown
	}

	// HTTP 404 on a route is a syntax-level problem (bad endpoint spelled by
	// the LLM), not a missing file.
	if strings.Contains(lower, "404") {
		if strings.Contains(lower, "route") || strings.Contains(lower, "endpoint") {
			return SyntaxError
		}
		return NotFound
	}

	for _, p := range patterns {
		for _, needle := range p.needles {
			if strings.Contains(lower, needle) {
				return p.kind
			}
		}
	}
	return Unknown
}

func defaultRecoverySteps(kind Kind) []string {
	switch kind {
	case NotFound:
		return []string{"search the workspace for the intended file", "verify the path against list_dir output"}
	case PermissionDenied:
		return []string{"ask the user to grant access or add an allowed root"}
	case Timeout:
		return []string{"retry with a longer timeout", "split the operation into smaller steps"}
	case Network:
		return []string{"retry after a short backoff", "verify connectivity"}
	case SyntaxError:
		return []string{"re-read the file and regenerate the change"}
	case ValidationError:
		return []string{"correct the tool arguments against the schema"}
	case Conflict:
		return []string{"inspect the existing target before recreating it"}
	case Transient:
		return []string{"retry after a short backoff"}
	}
	return nil
}
