// Package preflight sanity-checks a proposed task before dispatch: does the
// action kind match the description's intent, and do the referenced paths
// actually resolve inside the workspace.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"rev/internal/logging"
	"rev/internal/task"
	"rev/internal/workspace"
)

var (
	readIntentRe  = regexp.MustCompile(`(?i)\b(read|inspect|review|analyze|understand|locate|find|search|inventory|identify|list|show|explain)\b`)
	writeIntentRe = regexp.MustCompile(`(?i)\b(edit|update|modify|change|refactor|remove|delete|rename|create|add|write|generate|apply|file_write|replace_in_file|apply_patch|split_module_classes)\b`)
	installRe     = regexp.MustCompile(`(?i)\b(npm|pip|pip3|yum|choco|apt-get|apt)\s+install\b`)
	pathTokenRe   = regexp.MustCompile(`[\w./\-]+\.[\w]{1,6}|[\w\-]+(?:/[\w.\-]+)+`)
)

// Directories skipped when searching the workspace by basename.
var transientDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".rev":         true,
	".venv":        true,
}

// Checker runs preflight checks against one workspace.
type Checker struct {
	resolver *workspace.Resolver
	logger   logging.Logger
}

// New creates a Checker.
func New(resolver *workspace.Resolver, logger logging.Logger) *Checker {
	return &Checker{resolver: resolver, logger: logging.OrNop(logger)}
}

// CheckSemantics validates that the action kind matches the description's
// intent. It may coerce the task's action; a false return means the planner
// must retry.
func (c *Checker) CheckSemantics(t *task.Task) (bool, []string) {
	desc := t.Description

	if installRe.MatchString(desc) && t.Action != task.ActionTest {
		t.Action = task.ActionTest
		return true, []string{"install command routed to the execution runner as a test task"}
	}

	readIntent := readIntentRe.MatchString(desc)
	writeIntent := writeIntentRe.MatchString(desc)

	if t.Action.IsMutating() && readIntent && !writeIntent {
		msg := fmt.Sprintf("action %s coerced to read: description has read-only intent", t.Action)
		t.Action = task.ActionRead
		return true, []string{msg}
	}
	if t.Action.IsReadOnly() && writeIntent && !readIntent {
		return false, []string{fmt.Sprintf(
			"action %s conflicts with write intent in description; replan with a mutating action", t.Action)}
	}
	return true, nil
}

// CheckPaths resolves every path-like token in the description, rewriting
// tokens to canonical workspace-relative form. The rewrite is idempotent.
// Missing tokens are reported per path; the task only fails when no
// referenced path exists at all, because the token regex can match
// non-path text like version strings.
func (c *Checker) CheckPaths(t *task.Task) (bool, []string) {
	tokens := uniqueTokens(pathTokenRe.FindAllString(t.Description, -1))
	if len(tokens) == 0 {
		return true, nil
	}

	var msgs []string
	existing := 0
	missing := 0
	bakOnly := 0

	for _, token := range tokens {
		canonical, status := c.resolveToken(dedupeNestedPrefix(token))
		switch status {
		case tokenExists:
			existing++
			if canonical != token {
				t.Description = strings.ReplaceAll(t.Description, token, canonical)
				msgs = append(msgs, fmt.Sprintf("path %s rewritten to %s", token, canonical))
			}
		case tokenBakOnly:
			bakOnly++
			msgs = append(msgs, fmt.Sprintf("path %s exists only as %s.bak", token, token))
		case tokenMissing:
			missing++
			msgs = append(msgs, fmt.Sprintf("referenced path %s does not exist", token))
		}
	}

	if t.Action.IsReadOnly() && existing == 0 {
		return false, append(msgs, "no referenced path exists; read-like tasks fail fast")
	}
	if t.Action.IsMutating() {
		if bakOnly > 0 && existing == 0 {
			return false, append(msgs, "the only referenced source exists as *.py.bak; operating on backup-only state is forbidden")
		}
		if existing == 0 && missing > 0 {
			return false, append(msgs, "every referenced path is missing; at least one must exist for a mutating task")
		}
	}
	return true, msgs
}

// Signature is the stable preflight-failure signature used by the circuit
// breaker.
func Signature(t *task.Task, msgs []string) string {
	first := ""
	if len(msgs) > 0 {
		first = msgs[0]
	}
	return string(t.Action) + "|" + strings.ToLower(strings.TrimSpace(first))
}

type tokenStatus int

const (
	tokenExists tokenStatus = iota
	tokenMissing
	tokenBakOnly
)

// resolveToken maps one raw token to its canonical workspace-relative form.
func (c *Checker) resolveToken(token string) (string, tokenStatus) {
	resolved, err := c.resolver.Resolve(token, workspace.PurposeRead)
	if err == nil {
		if _, statErr := os.Stat(resolved.Abs); statErr == nil {
			return resolved.Rel, tokenExists
		}
		if _, statErr := os.Stat(resolved.Abs + ".bak"); statErr == nil {
			return resolved.Rel, tokenBakOnly
		}
	}

	match, ok := c.searchByBasename(token)
	if ok {
		return match, tokenExists
	}
	return token, tokenMissing
}

// searchByBasename looks for a unique file with the token's basename anywhere
// in the workspace, skipping transient directories.
func (c *Checker) searchByBasename(token string) (string, bool) {
	base := filepath.Base(filepath.ToSlash(token))
	if base == "" || base == "." || base == "/" {
		return "", false
	}

	root := os.DirFS(c.resolver.Primary())
	matches, err := doublestar.Glob(root, "**/"+base, doublestar.WithFilesOnly())
	if err != nil {
		return "", false
	}

	var candidates []string
	for _, match := range matches {
		if inTransientDir(match) {
			continue
		}
		candidates = append(candidates, filepath.ToSlash(match))
	}
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	best := pickBest(candidates, filepath.ToSlash(token))
	if best == "" {
		return "", false
	}
	return best, true
}

// pickBest ranks candidates: suffix-match against the original token first,
// preferred roots (lib, src, app) next, shallower paths last. Ties mean no
// confident match.
func pickBest(candidates []string, token string) string {
	score := func(path string) int {
		s := 0
		if strings.HasSuffix(path, token) {
			s += 100
		}
		first := strings.SplitN(path, "/", 2)[0]
		if first == "lib" || first == "src" || first == "app" {
			s += 10
		}
		s -= strings.Count(path, "/")
		return s
	}
	sort.Slice(candidates, func(i, j int) bool {
		return score(candidates[i]) > score(candidates[j])
	})
	if len(candidates) > 1 && score(candidates[0]) == score(candidates[1]) {
		return ""
	}
	return candidates[0]
}

// dedupeNestedPrefix collapses accidentally repeated prefixes like
// lib/analysts/lib/analysts/__init__.py.
func dedupeNestedPrefix(token string) string {
	parts := strings.Split(filepath.ToSlash(token), "/")
	for width := len(parts) / 2; width >= 1; width-- {
		if len(parts) < width*2 {
			continue
		}
		if equalSlices(parts[:width], parts[width:width*2]) {
			return strings.Join(parts[width:], "/")
		}
	}
	return token
}

func equalSlices(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func inTransientDir(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if transientDirs[segment] {
			return true
		}
	}
	return false
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, token := range tokens {
		if !seen[token] {
			seen[token] = true
			out = append(out, token)
		}
	}
	return out
}
