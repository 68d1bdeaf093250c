package planner

import (
	"strings"

	"rev/internal/task"
)

var (
	lintKeywords = []string{"lint", "ruff", "format", "black", "prettier", "mypy", "type-check", "type check", "eslint"}
	testKeywords = []string{"pytest", "coverage", "run tests", "test suite", "npm test", "unit tests"}
)

// ensureCoverage adds a test task (and a doc task) when the plan mutates code
// but never verifies it.
func ensureCoverage(planned []plannedTask) []plannedTask {
	mutates, hasTest, hasDoc := false, false, false
	for _, pt := range planned {
		action := task.NormalizeAction(pt.Action)
		if action.IsMutating() {
			mutates = true
		}
		if action == task.ActionTest {
			hasTest = true
		}
		if action == task.ActionDoc {
			hasDoc = true
		}
	}
	if !mutates {
		return planned
	}
	if !hasTest {
		planned = append(planned, plannedTask{
			Action:      string(task.ActionTest),
			Description: "Run the test suite to verify the changes",
		})
	}
	if !hasDoc {
		planned = append(planned, plannedTask{
			Action:      string(task.ActionDoc),
			Description: "Update documentation affected by the changes",
		})
	}
	return planned
}

// capTasks enforces the task maximum: merge lint/format/type tasks, merge
// test/coverage tasks, then trim low-value tasks. Merged validation tasks are
// never trimmed.
func capTasks(planned []plannedTask, maxTasks int) []plannedTask {
	if len(planned) <= maxTasks {
		return planned
	}

	planned = mergeMatching(planned, lintKeywords, plannedTask{
		Action:      string(task.ActionRun),
		Description: "Run lint, format, and type checks",
	})
	planned = mergeMatching(planned, testKeywords, plannedTask{
		Action:      string(task.ActionTest),
		Description: "Run the full test suite with coverage",
	})

	if len(planned) <= maxTasks {
		return planned
	}

	// Trim lowest-value tasks first, keeping the merged validation tasks.
	trimmable := func(pt plannedTask) bool {
		switch task.NormalizeAction(pt.Action) {
		case task.ActionDoc, task.ActionReview, task.ActionGeneral:
			return !matchesAny(pt.Description, lintKeywords) && !matchesAny(pt.Description, testKeywords)
		}
		return false
	}
	for len(planned) > maxTasks {
		dropped := false
		for i := len(planned) - 1; i >= 0; i-- {
			if trimmable(planned[i]) {
				planned = append(planned[:i], planned[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			planned = planned[:maxTasks]
			break
		}
	}
	return planned
}

// mergeMatching collapses all tasks whose description matches the keyword set
// into one replacement task at the position of the first match.
func mergeMatching(planned []plannedTask, keywords []string, merged plannedTask) []plannedTask {
	first := -1
	var out []plannedTask
	for _, pt := range planned {
		if matchesAny(pt.Description, keywords) {
			if first == -1 {
				first = len(out)
				out = append(out, merged)
			}
			continue
		}
		out = append(out, pt)
	}
	return out
}

func matchesAny(description string, keywords []string) bool {
	lower := strings.ToLower(description)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var toolHints = []string{"list_dir", "search_text", "file_read", "read ", "search ", "list "}

// coerceActionable makes vague tasks executable: a review with no tool hint
// gets one, an edit naming no path becomes a review search.
func coerceActionable(action task.Action, description string) (task.Action, string) {
	paths := pathTokens(description)

	if action == task.ActionReview && !matchesAny(description, toolHints) {
		target := "."
		if len(paths) > 0 {
			target = paths[0]
		}
		return action, description + " using list_dir on " + target
	}

	if action == task.ActionEdit && len(paths) == 0 {
		return task.ActionReview, "Locate the file to change: " + description + " using search_text"
	}
	return action, description
}
