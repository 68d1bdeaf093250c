package orchestrator

import (
	"fmt"
	"math"
	"strings"

	"rev/internal/task"
)

// workRecord is one line of the loop's work history.
type workRecord struct {
	Iteration   int
	Action      task.Action
	Description string
	Status      task.Status
	Message     string
	Tools       []string
}

func (r workRecord) line() string {
	desc := r.Description
	if len(desc) > 120 {
		desc = desc[:120] + "..."
	}
	return fmt.Sprintf("[%s] %s -> %s: %s", r.Action, desc, r.Status, firstLine(r.Message))
}

// grounded reports whether the history carries both a concrete action and a
// research step. A goal-achieved claim without both is not accepted.
func grounded(history []workRecord) bool {
	return hasActionEvidence(history) && hasResearchEvidence(history)
}

func hasActionEvidence(history []workRecord) bool {
	for _, r := range history {
		if r.Action.IsMutating() && r.Status == task.StatusCompleted {
			return true
		}
	}
	return false
}

var researchTools = map[string]bool{
	"file_read":   true,
	"list_dir":    true,
	"search_text": true,
}

func hasResearchEvidence(history []workRecord) bool {
	for _, r := range history {
		if r.Action.IsReadOnly() && r.Status == task.StatusCompleted {
			return true
		}
		for _, tool := range r.Tools {
			if researchTools[tool] {
				return true
			}
		}
	}
	return false
}

// AnchoringTunables weight the heuristic anchoring score. The exact values
// are tunable; only relative ordering over histories matters.
type AnchoringTunables struct {
	EvidenceWeight     float64
	ToolDamping        float64
	UnresolvedPenalty  float64
	MissingFilePenalty float64
	StopThreshold      float64
	MismatchRisk       float64
}

// DefaultAnchoring returns the stock tunables.
func DefaultAnchoring() AnchoringTunables {
	return AnchoringTunables{
		EvidenceWeight:     1.0,
		ToolDamping:        0.5,
		UnresolvedPenalty:  0.5,
		MissingFilePenalty: 0.3,
		StopThreshold:      0.2,
		MismatchRisk:       3,
	}
}

// anchoringScore rates how well recent history backs a completion claim:
// evidence density per claim, dampened by tool spread, penalized by
// unresolved symbols and missing files.
func anchoringScore(history []workRecord, tun AnchoringTunables) float64 {
	if len(history) == 0 {
		return 0
	}

	claims := 0
	evidence := 0
	unresolved := 0
	missing := 0
	toolSet := map[string]bool{}

	for _, r := range history {
		claims++
		evidence += len(r.Tools)
		if r.Action == task.ActionTest && r.Status == task.StatusCompleted {
			evidence += 2
		}
		for _, tool := range r.Tools {
			toolSet[tool] = true
		}
		lower := strings.ToLower(r.Message)
		if strings.Contains(lower, "unresolved") || strings.Contains(lower, "undefined symbol") {
			unresolved++
		}
		if strings.Contains(lower, "does not exist") || strings.Contains(lower, "not found") || strings.Contains(lower, "missing") {
			missing++
		}
	}

	density := tun.EvidenceWeight * float64(evidence) / float64(claims)
	damping := 1 + tun.ToolDamping*math.Log1p(float64(len(toolSet)))
	return density/damping - tun.UnresolvedPenalty*float64(unresolved) - tun.MissingFilePenalty*float64(missing)
}

// mismatchRisk counts history entries whose message suggests the model is
// reasoning about files or symbols that do not exist.
func mismatchRisk(history []workRecord) int {
	risk := 0
	for _, r := range history {
		lower := strings.ToLower(r.Message)
		if strings.Contains(lower, "does not exist") || strings.Contains(lower, "not found") || strings.Contains(lower, "unresolved") {
			risk++
		}
	}
	return risk
}
