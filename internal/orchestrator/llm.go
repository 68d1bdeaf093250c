package orchestrator

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"

	"rev/internal/agent/ports"
)

// errEscape aborts an in-flight chat when the escape flag is raised. The loop
// translates it into an interrupted result instead of a planner error.
var errEscape = errors.New("escape requested")

// meteredLLM wraps the provider client with budget accounting and the escape
// check. Every collaborator that talks to the model goes through it, so no
// Chat call can happen after an interrupt.
type meteredLLM struct {
	inner  ports.LLMClient
	budget *Budget
	escape *atomic.Bool
}

func (m *meteredLLM) Chat(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	if m.escape.Load() {
		return nil, errEscape
	}
	resp, err := m.inner.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Usage.TotalTokens > 0 {
		m.budget.AddUsage(resp.Usage)
	} else {
		// Providers that omit usage still count against the budget via a
		// local estimate over the exchanged text.
		for _, msg := range req.Messages {
			m.budget.AddText(msg.Content)
		}
		m.budget.AddText(resp.Content)
	}
	return resp, nil
}

func (m *meteredLLM) Model() string {
	return m.inner.Model()
}

var pathTokenRe = regexp.MustCompile(`[\w./\-]+\.[\w]{1,6}|[\w\-]+(?:/[\w.\-]+)+`)

func pathTokens(description string) []string {
	return pathTokenRe.FindAllString(description, -1)
}
