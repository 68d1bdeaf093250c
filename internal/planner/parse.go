package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"rev/internal/jsonx"
	"rev/internal/task"
)

// plannedTask is the JSON shape the batch prompt asks for.
type plannedTask struct {
	Action          string   `json:"action"`
	Description     string   `json:"description"`
	Complexity      string   `json:"complexity,omitempty"`
	ValidationSteps []string `json:"validation_steps,omitempty"`
}

var (
	codeFenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	validationRe = regexp.MustCompile(`(?i)\bvalidation:\s*(.+?)(?:\.\s|$)`)
	actionTagRe  = regexp.MustCompile(`^\s*\[([A-Za-z_\- ]+)\]\s*(.+)$`)
	pathTokenRe  = regexp.MustCompile(`[\w./\-]+\.[\w]{1,6}|[\w\-]+(?:/[\w.\-]+)+`)
)

// parseTaskArray extracts a JSON task array from LLM output. Malformed JSON
// is run through jsonrepair before giving up.
func parseTaskArray(content string) ([]plannedTask, error) {
	candidate := strings.TrimSpace(content)
	if m := codeFenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if start := strings.Index(candidate, "["); start >= 0 {
		if end := strings.LastIndex(candidate, "]"); end > start {
			candidate = candidate[start : end+1]
		}
	}

	var tasks []plannedTask
	if err := jsonx.Unmarshal([]byte(candidate), &tasks); err == nil {
		return nonEmpty(tasks)
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("plan is not a JSON array: %w", err)
	}
	if err := jsonx.Unmarshal([]byte(repaired), &tasks); err != nil {
		return nil, fmt.Errorf("plan is not a JSON array after repair: %w", err)
	}
	return nonEmpty(tasks)
}

func nonEmpty(tasks []plannedTask) ([]plannedTask, error) {
	out := tasks[:0]
	for _, t := range tasks {
		if strings.TrimSpace(t.Description) != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("plan contains no tasks")
	}
	return out, nil
}

// parseNextAction parses a continuous-planner reply: either GOAL_ACHIEVED or
// a single "[ACTION_TYPE] description" line.
func parseNextAction(content string) (action task.Action, description string, done bool) {
	trimmed := strings.TrimSpace(content)
	if isGoalAchieved(trimmed) {
		return "", "", true
	}

	// Use the first line that carries an action tag; models sometimes prefix
	// a sentence of commentary.
	for _, line := range strings.Split(trimmed, "\n") {
		if m := actionTagRe.FindStringSubmatch(line); m != nil {
			return task.NormalizeAction(m[1]), strings.TrimSpace(m[2]), false
		}
	}
	return task.ActionGeneral, trimmed, false
}

func isGoalAchieved(s string) bool {
	normalized := strings.ToUpper(strings.TrimFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == ' ' || r == '"' || r == '\''
	}))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	return normalized == "GOAL_ACHIEVED" || normalized == "GOAL_ACHIEVED_"
}

// extractValidationSteps pulls inline "Validation: ..." hints out of a
// description. Test tasks keep their description untouched.
func extractValidationSteps(action task.Action, description string) (string, []string) {
	if action == task.ActionTest {
		return description, nil
	}
	var steps []string
	cleaned := validationRe.ReplaceAllStringFunc(description, func(match string) string {
		m := validationRe.FindStringSubmatch(match)
		steps = append(steps, strings.TrimSpace(strings.TrimSuffix(m[1], ".")))
		return ""
	})
	return strings.TrimSpace(cleaned), steps
}

func pathTokens(description string) []string {
	return pathTokenRe.FindAllString(description, -1)
}
