package task

import "strings"

// Action is the closed set of task action kinds. The action determines which
// agent executes the task and which verification applies afterwards.
type Action string

const (
	// Read-only actions.
	ActionRead        Action = "read"
	ActionAnalyze     Action = "analyze"
	ActionReview      Action = "review"
	ActionResearch    Action = "research"
	ActionInvestigate Action = "investigate"

	// Mutating actions.
	ActionEdit            Action = "edit"
	ActionAdd             Action = "add"
	ActionCreate          Action = "create"
	ActionCreateDirectory Action = "create_directory"
	ActionRefactor        Action = "refactor"
	ActionDelete          Action = "delete"
	ActionRename          Action = "rename"
	ActionFix             Action = "fix"

	// Execution actions.
	ActionTest Action = "test"
	ActionTool Action = "tool"
	ActionRun  Action = "run"

	// Misc actions.
	ActionGeneral Action = "general"
	ActionDoc     Action = "doc"
)

// AllActions lists every known action kind.
var AllActions = []Action{
	ActionRead, ActionAnalyze, ActionReview, ActionResearch, ActionInvestigate,
	ActionEdit, ActionAdd, ActionCreate, ActionCreateDirectory, ActionRefactor,
	ActionDelete, ActionRename, ActionFix,
	ActionTest, ActionTool, ActionRun,
	ActionGeneral, ActionDoc,
}

var actionAliases = map[string]Action{
	"modify":    ActionEdit,
	"update":    ActionEdit,
	"change":    ActionEdit,
	"write":     ActionCreate,
	"generate":  ActionCreate,
	"mkdir":     ActionCreateDirectory,
	"remove":    ActionDelete,
	"move":      ActionRename,
	"inspect":   ActionRead,
	"explore":   ActionInvestigate,
	"search":    ActionResearch,
	"verify":    ActionTest,
	"validate":  ActionTest,
	"execute":   ActionRun,
	"command":   ActionRun,
	"document":  ActionDoc,
	"docs":      ActionDoc,
	"bugfix":    ActionFix,
	"repair":    ActionFix,
	"misc":      ActionGeneral,
	"task":      ActionGeneral,
	"implement": ActionEdit,
}

// IsMutating reports whether the action writes to the workspace.
func (a Action) IsMutating() bool {
	switch a {
	case ActionEdit, ActionAdd, ActionCreate, ActionCreateDirectory,
		ActionRefactor, ActionDelete, ActionRename, ActionFix:
		return true
	}
	return false
}

// IsReadOnly reports whether the action only observes the workspace.
func (a Action) IsReadOnly() bool {
	switch a {
	case ActionRead, ActionAnalyze, ActionReview, ActionResearch, ActionInvestigate:
		return true
	}
	return false
}

// IsExecution reports whether the action runs external commands.
func (a Action) IsExecution() bool {
	switch a {
	case ActionTest, ActionTool, ActionRun:
		return true
	}
	return false
}

// Known reports whether a is one of the closed action set.
func (a Action) Known() bool {
	for _, known := range AllActions {
		if a == known {
			return true
		}
	}
	return false
}

// NormalizeAction maps raw action labels (aliases, typos, odd casing) onto the
// closed action set. Unknown labels collapse to general.
func NormalizeAction(raw string) Action {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, "[]")
	cleaned = strings.ReplaceAll(cleaned, "-", "_")
	cleaned = strings.ReplaceAll(cleaned, " ", "_")

	if a := Action(cleaned); a.Known() {
		return a
	}
	if a, ok := actionAliases[cleaned]; ok {
		return a
	}

	// Tolerate one-letter typos against the known set; LLMs emit "edti" and
	// "refacter" often enough to matter.
	best := Action("")
	bestDist := 3
	for _, known := range AllActions {
		if d := editDistance(cleaned, string(known)); d < bestDist {
			best, bestDist = known, d
		}
	}
	if bestDist <= 1 && best != "" {
		return best
	}
	return ActionGeneral
}

// editDistance is optimal string alignment distance: insert, delete,
// substitute, and adjacent transposition all cost 1, so "tets" is one step
// from "test".
func editDistance(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i][j] = min3(d[i][j-1]+1, d[i-1][j]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if t := d[i-2][j-2] + 1; t < d[i][j] {
					d[i][j] = t
				}
			}
		}
	}
	return d[la][lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
