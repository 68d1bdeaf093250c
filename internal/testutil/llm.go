// Package testutil provides fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"rev/internal/agent/ports"
)

// ScriptedLLM replays canned responses in order. When the script runs out it
// returns an error, which keeps runaway loops visible in tests.
type ScriptedLLM struct {
	mu        sync.Mutex
	script    []ports.ChatResponse
	pos       int
	Requests  []ports.ChatRequest
	OnRequest func(ports.ChatRequest)
}

// NewScriptedLLM builds a client that replays the given responses.
func NewScriptedLLM(responses ...ports.ChatResponse) *ScriptedLLM {
	return &ScriptedLLM{script: responses}
}

// Text is shorthand for a content-only response.
func Text(content string) ports.ChatResponse {
	return ports.ChatResponse{Content: content, StopReason: "end_turn"}
}

// Chat implements ports.LLMClient.
func (s *ScriptedLLM) Chat(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.OnRequest != nil {
		s.OnRequest(req)
	}
	if s.pos >= len(s.script) {
		return nil, fmt.Errorf("scripted llm exhausted after %d calls", s.pos)
	}
	resp := s.script[s.pos]
	s.pos++
	return &resp, nil
}

// Model implements ports.LLMClient.
func (s *ScriptedLLM) Model() string {
	return "scripted"
}

// Calls reports how many requests were made.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
