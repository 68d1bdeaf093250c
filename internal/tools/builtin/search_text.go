package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
)

// Directories never worth searching.
var searchExcludedDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".rev":         true,
	".venv":        true,
}

const searchMatchCap = 500

type searchText struct {
	cfg FileToolConfig
}

// NewSearchText runs a regex search over workspace files. Zero matches is a
// success with matches=0, never an error.
func NewSearchText(cfg FileToolConfig) ports.ToolExecutor {
	return &searchText{cfg: cfg}
}

func (t *searchText) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	pattern, ok := call.Arguments["pattern"].(string)
	if !ok || pattern == "" {
		return failResult(call, toolerr.New(toolerr.ValidationError, "search_text", `missing "pattern"`)), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return failResult(call, toolerr.New(toolerr.SyntaxError, "search_text", fmt.Sprintf("invalid pattern: %v", err))), nil
	}

	if _, ok := call.Arguments["path"]; !ok {
		call.Arguments["path"] = "."
	}
	resolved, fail := resolvePath(t.cfg, call, "search_text", "path", "read")
	if fail != nil {
		return fail, nil
	}

	var lines []string
	matches := 0
	walkErr := filepath.WalkDir(resolved.Abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if searchExcludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if matches >= searchMatchCap {
			return filepath.SkipAll
		}
		rel, relErr := filepath.Rel(resolved.Root, path)
		if relErr != nil {
			rel = path
		}
		found, scanErr := scanFile(path, filepath.ToSlash(rel), re, searchMatchCap-matches, &lines)
		if scanErr == nil {
			matches += found
		}
		return nil
	})
	if walkErr != nil {
		return failResult(call, toolerr.Classify(walkErr, "search_text", walkErr.Error())), nil
	}

	meta := pathMetadata(resolved)
	meta["matches"] = matches
	content := fmt.Sprintf("%d match(es) for %q", matches, pattern)
	if matches > 0 {
		content += "\n" + strings.Join(lines, "\n")
	}
	return &ports.ToolResult{CallID: call.ID, Content: content, Metadata: meta}, nil
}

func scanFile(path, rel string, re *regexp.Regexp, limit int, out *[]string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	found := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			return found, nil
		}
		if re.MatchString(line) {
			*out = append(*out, fmt.Sprintf("%s:%d: %s", rel, lineNo, line))
			found++
			if found >= limit {
				return found, nil
			}
		}
	}
	return found, scanner.Err()
}

func (t *searchText) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "search_text",
		Description: "Search workspace files for a regex pattern",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"pattern": {Type: "string", Description: "Regular expression to search for"},
				"path":    {Type: "string", Description: "Directory to search, defaults to the workspace root"},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *searchText) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "search_text", Version: "1.0.0", Category: "search"}
}
