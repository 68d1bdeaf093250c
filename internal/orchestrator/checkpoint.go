package orchestrator

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"rev/internal/task"
)

// sessionSnapshot is the resumable state written after each iteration.
// Resume is explicit: the loop never searches for a snapshot on its own.
type sessionSnapshot struct {
	Request    string         `yaml:"request"`
	StartedAt  time.Time      `yaml:"started_at"`
	Iteration  int            `yaml:"iteration"`
	TokensUsed int            `yaml:"tokens_used"`
	Steps      int            `yaml:"steps"`
	History    []string       `yaml:"history,omitempty"`
	AgentState map[string]any `yaml:"agent_state,omitempty"`
	Tasks      []snapshotTask `yaml:"tasks,omitempty"`
}

type snapshotTask struct {
	Action      string `yaml:"action"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	Error       string `yaml:"error,omitempty"`
}

func sessionPath(root string) string {
	return filepath.Join(root, ".rev", "sessions", "session.yaml")
}

func saveSession(root string, snap sessionSnapshot) error {
	path := sessionPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	encoded, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}

func loadSession(root string) (*sessionSnapshot, error) {
	raw, err := os.ReadFile(sessionPath(root))
	if err != nil {
		return nil, err
	}
	var snap sessionSnapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func snapshotTasks(plan *task.Plan) []snapshotTask {
	if plan == nil {
		return nil
	}
	out := make([]snapshotTask, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		out = append(out, snapshotTask{
			Action:      string(t.Action),
			Description: t.Description,
			Status:      string(t.Status),
			Error:       t.Error,
		})
	}
	return out
}
