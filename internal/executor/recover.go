package executor

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"rev/internal/agent/ports"
	"rev/internal/jsonx"
)

var (
	// funcStyleRe matches prose like `file_write({"path": "a.py", ...})`.
	funcStyleRe = regexp.MustCompile(`(?s)\b([a-z][a-z0-9_]+)\s*\(\s*(\{.*?\})\s*\)`)
	pathTokenRe = regexp.MustCompile(`[\w./\-]+\.[\w]{1,6}|[\w\-]+(?:/[\w.\-]+)+`)
)

// recoverToolCall tries to parse a tool call the model described in plain
// text instead of emitting structured. Two shapes are tolerated: a JSON
// object {"name": ..., "arguments": {...}} and a function-style
// tool_name({...}) fragment.
func recoverToolCall(content string) (ports.ToolCall, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ports.ToolCall{}, false
	}

	if call, ok := recoverJSONCall(trimmed); ok {
		return call, true
	}

	if m := funcStyleRe.FindStringSubmatch(trimmed); m != nil {
		args, ok := parseArgs(m[2])
		if ok {
			return ports.ToolCall{ID: uuid.NewString(), Name: m[1], Arguments: args}, true
		}
	}
	return ports.ToolCall{}, false
}

func recoverJSONCall(content string) (ports.ToolCall, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ports.ToolCall{}, false
	}

	var envelope struct {
		Name      string         `json:"name"`
		Tool      string         `json:"tool"`
		Arguments map[string]any `json:"arguments"`
		Args      map[string]any `json:"args"`
	}
	candidate := content[start : end+1]
	if err := jsonx.Unmarshal([]byte(candidate), &envelope); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return ports.ToolCall{}, false
		}
		if err := jsonx.Unmarshal([]byte(repaired), &envelope); err != nil {
			return ports.ToolCall{}, false
		}
	}

	name := envelope.Name
	if name == "" {
		name = envelope.Tool
	}
	args := envelope.Arguments
	if args == nil {
		args = envelope.Args
	}
	if name == "" || args == nil {
		return ports.ToolCall{}, false
	}
	return ports.ToolCall{ID: uuid.NewString(), Name: name, Arguments: args}, true
}

func parseArgs(raw string) (map[string]any, bool) {
	var args map[string]any
	if err := jsonx.Unmarshal([]byte(raw), &args); err == nil {
		return args, true
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false
	}
	if err := jsonx.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, false
	}
	return args, true
}

func pathTokens(description string) []string {
	return pathTokenRe.FindAllString(description, -1)
}
