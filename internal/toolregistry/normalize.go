package toolregistry

import "strings"

// Global argument aliases applied to every tool. The LLM routinely invents
// near-miss key names; interior code only ever sees the canonical ones.
var globalAliases = map[string]string{
	"file":      "path",
	"filepath":  "path",
	"file_path": "path",
	"src":       "path",
	"source":    "path",
	"module":    "path",
	"text":      "content",
	"contents":  "content",
}

// Tool-specific aliases, applied after the global table.
var toolAliases = map[string]map[string]string{
	"replace_in_file": {
		"old_string":  "find",
		"new_string":  "replace",
		"pattern":     "find",
		"replacement": "replace",
	},
	"run_cmd": {
		"cmd":          "command",
		"command_line": "command",
		"script":       "command",
	},
	"list_dir": {
		"dir":       "path",
		"directory": "path",
		"folder":    "path",
	},
	"search_text": {
		"query": "pattern",
		"term":  "pattern",
	},
	"create_directory": {
		"dir":       "path",
		"directory": "path",
	},
}

// NormalizeArgs canonicalizes LLM-emitted tool arguments:
//
//  1. unwrap a nested {"arguments": {...}} wrapper,
//  2. convert kebab-case keys to snake_case,
//  3. apply global aliases,
//  4. apply tool-specific aliases.
//
// The function is idempotent and never overwrites a key that is already
// present under its canonical name.
func NormalizeArgs(args map[string]any, tool string) map[string]any {
	if args == nil {
		return nil
	}

	// Unwrap {"arguments": {...}}: some models wrap the payload one level
	// deeper than the function-call schema asks for.
	if len(args) == 1 {
		if inner, ok := args["arguments"].(map[string]any); ok {
			args = inner
		}
	}

	out := make(map[string]any, len(args))
	for key, value := range args {
		out[kebabToSnake(key)] = value
	}

	applyAliases(out, globalAliases)
	if specific, ok := toolAliases[tool]; ok {
		applyAliases(out, specific)
	}
	return out
}

func applyAliases(args map[string]any, aliases map[string]string) {
	for alias, canonical := range aliases {
		value, ok := args[alias]
		if !ok {
			continue
		}
		if _, exists := args[canonical]; !exists {
			args[canonical] = value
		}
		delete(args, alias)
	}
}

func kebabToSnake(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}
