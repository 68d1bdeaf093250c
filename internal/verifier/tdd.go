package verifier

import (
	"path/filepath"
	"strings"

	"rev/internal/task"
)

// applyTDD implements the red/green flow: a failing run right after a
// test-only change is the expected red, and the first source change
// afterwards forces a test task next.
func (v *Verifier) applyTDD(t *task.Task, payload *resultPayload, prior Result, state *State) Result {
	if t.Action == task.ActionTest {
		if prior.Passed {
			state.TDDRequireTest = false
			state.TDDPendingGreen = false
		}
		return prior
	}
	if !t.Action.IsMutating() {
		return prior
	}

	touched := v.touchedPaths(t, payload)
	testOnly, sourceOnly := classifyTouched(touched)

	if testOnly && !prior.Passed && !prior.Inconclusive {
		state.TDDPendingGreen = true
		result := pass("failing run after a test-only change is the expected red phase")
		result = result.withDetail("tdd_expected_failure", true)
		result = result.withDetail("tdd_pending_green", true)
		return result
	}
	if testOnly && prior.Inconclusive {
		// A new test with nothing to run yet still counts as the red phase.
		state.TDDPendingGreen = true
		result := pass("test-only change recorded; awaiting the green phase")
		result = result.withDetail("tdd_pending_green", true)
		return result
	}

	if sourceOnly && state.TDDPendingGreen {
		state.TDDPendingGreen = false
		state.TDDRequireTest = true
		if prior.Passed || prior.Inconclusive {
			result := pass("source change after red test; a test run is now required")
			result = result.withDetail("tdd_require_test", true)
			return result
		}
		return prior.withDetail("tdd_require_test", true)
	}
	return prior
}

// classifyTouched splits touched paths into all-test vs all-source.
func classifyTouched(touched []string) (testOnly, sourceOnly bool) {
	if len(touched) == 0 {
		return false, false
	}
	tests, sources := 0, 0
	for _, path := range touched {
		if isTestPath(path) {
			tests++
		} else {
			sources++
		}
	}
	return sources == 0, tests == 0
}

func isTestPath(path string) bool {
	normalized := filepath.ToSlash(strings.ToLower(path))
	base := filepath.Base(normalized)
	if strings.HasPrefix(base, "test_") || strings.Contains(base, ".test.") || strings.Contains(base, "_test.") {
		return true
	}
	return strings.Contains(normalized, "tests/") || strings.Contains(normalized, "__tests__/")
}
