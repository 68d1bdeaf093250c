package verifier

import (
	"strings"

	"rev/internal/task"
)

var watchModePatterns = []string{
	"watching for file changes",
	"press q to quit",
	"watch usage",
	"waiting for file changes",
}

// diagnoseTimeout recognizes a test runner stuck in watch mode and attaches a
// two-step remediation to the result.
func (v *Verifier) diagnoseTimeout(payload *resultPayload, prior Result) Result {
	rc := 0
	if payload.RC != nil {
		rc = *payload.RC
	}
	if !payload.Timeout && rc != -1 {
		return prior
	}
	if !containsFold(payload.Stdout, watchModePatterns...) {
		return prior
	}

	result := fail("test command timed out in watch mode; tests never exit under an agent")
	result = result.withDetail("timeout_diagnosis", map[string]any{
		"cause": "watch_mode",
		"remediation": []map[string]string{
			{
				"action":      string(task.ActionEdit),
				"description": "Edit package.json so the test script runs once: add --run (vitest), --watchAll=false (jest), or --no-watch",
			},
			{
				"action":      string(task.ActionTest),
				"description": "Re-run the test suite after disabling watch mode",
			},
		},
	})
	return result
}

var missingModuleNeedles = []string{
	"module not found",
	"cannot find module",
	"no module named",
	"missing script",
	"modulenotfounderror",
}

var stderrErrorNeedles = []string{
	"error:", "exception", "traceback (most recent call last)", "fatal:",
}

// diagnoseStderr turns command stderr into structured remediation, and
// refuses to accept a zero rc whose stderr still screams errors.
func (v *Verifier) diagnoseStderr(payload *resultPayload, prior Result) Result {
	rc := 0
	if payload.RC != nil {
		rc = *payload.RC
	}

	if rc != 0 && containsFold(payload.Stderr, missingModuleNeedles...) {
		remediation := "install the missing dependency, then re-run"
		if name := extractMissingModule(payload.Stderr); name != "" {
			remediation = "install missing module " + name + ", then re-run"
		}
		return prior.withDetail("remediation", remediation)
	}

	if rc == 0 && prior.Passed && containsFold(payload.Stderr, stderrErrorNeedles...) {
		return fail("command exited 0 but stderr contains error output; treating as failure").
			withDetail("stderr", tailLines(payload.Stderr, 20))
	}
	return prior
}

// extractMissingModule pulls the module name out of common runtime messages.
func extractMissingModule(stderr string) string {
	lower := strings.ToLower(stderr)
	for _, prefix := range []string{"cannot find module '", "no module named '", "no module named \""} {
		if idx := strings.Index(lower, prefix); idx >= 0 {
			rest := stderr[idx+len(prefix):]
			if end := strings.IndexAny(rest, "'\""); end > 0 {
				return rest[:end]
			}
		}
	}
	return ""
}
