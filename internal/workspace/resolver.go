package workspace

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Purpose describes why a path is being resolved. It only affects error
// messages; containment rules are identical for reads and writes.
type Purpose string

const (
	PurposeRead  Purpose = "read"
	PurposeWrite Purpose = "write"
)

// ResolvedPath is the only path form that may cross into the tool layer.
type ResolvedPath struct {
	// Abs is the absolute, cleaned path.
	Abs string
	// Rel is the workspace-relative POSIX view ("lib/app.py").
	Rel string
	// Root is the allowlisted root that contains Abs.
	Root string
}

// PathError is returned when a raw path cannot be resolved inside the
// allowlisted roots.
type PathError struct {
	Raw     string
	Allowed []string
	Reason  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf(
		"path %q is outside allowed workspace roots %v: %s (use `add allowed root` to extend the allowlist)",
		e.Raw, e.Allowed, e.Reason,
	)
}

// Resolver canonicalizes raw user/LLM-supplied paths against an allowlist of
// roots. The allowlist is immutable after construction; the resolver is safe
// for concurrent use.
type Resolver struct {
	primary         string
	allowed         []string
	caseInsensitive bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAllowedRoots adds extra roots beyond the primary workspace.
func WithAllowedRoots(roots ...string) Option {
	return func(r *Resolver) {
		for _, root := range roots {
			abs, err := filepath.Abs(filepath.Clean(root))
			if err != nil || abs == "" {
				continue
			}
			r.allowed = append(r.allowed, abs)
		}
	}
}

// WithCaseInsensitive forces case-insensitive containment comparison. The
// default follows the host platform.
func WithCaseInsensitive(enabled bool) Option {
	return func(r *Resolver) {
		r.caseInsensitive = enabled
	}
}

// NewResolver builds a resolver rooted at the primary workspace directory.
func NewResolver(primary string, opts ...Option) (*Resolver, error) {
	abs, err := filepath.Abs(filepath.Clean(primary))
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root %q: %w", primary, err)
	}
	r := &Resolver{
		primary:         abs,
		allowed:         []string{abs},
		caseInsensitive: runtime.GOOS == "darwin" || runtime.GOOS == "windows",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Primary returns the primary workspace root.
func (r *Resolver) Primary() string {
	return r.primary
}

// AllowedRoots returns a copy of the allowlist.
func (r *Resolver) AllowedRoots() []string {
	return append([]string(nil), r.allowed...)
}

// Resolve canonicalizes raw against the allowlist. It does not require the
// target to exist: write targets resolve before creation.
func (r *Resolver) Resolve(raw string, purpose Purpose) (*ResolvedPath, error) {
	cleaned := stripQuotes(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil, &PathError{Raw: raw, Allowed: r.allowed, Reason: "empty path"}
	}

	cleaned = r.dedupeWorkspacePrefix(cleaned)

	abs := cleaned
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.primary, abs)
	}
	abs = filepath.Clean(abs)

	root, ok := r.containingRoot(abs)
	if !ok {
		return nil, &PathError{
			Raw:     raw,
			Allowed: r.allowed,
			Reason:  fmt.Sprintf("%s target escapes the workspace", purpose),
		}
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return nil, &PathError{Raw: raw, Allowed: r.allowed, Reason: err.Error()}
	}

	return &ResolvedPath{
		Abs:  abs,
		Rel:  filepath.ToSlash(rel),
		Root: root,
	}, nil
}

// dedupeWorkspacePrefix drops one leading segment equal to the workspace
// basename. LLMs routinely emit "redtrade/lib/x.py" when the workspace is
// already the redtrade directory.
func (r *Resolver) dedupeWorkspacePrefix(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	base := filepath.Base(r.primary)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return path
	}
	normalized := filepath.ToSlash(path)
	prefix := base + "/"
	if r.equalFold(normalized, base) {
		return "."
	}
	if len(normalized) > len(prefix) && r.equalFold(normalized[:len(prefix)], prefix) {
		return normalized[len(prefix):]
	}
	return path
}

func (r *Resolver) containingRoot(abs string) (string, bool) {
	for _, root := range r.allowed {
		if r.pathWithin(root, abs) {
			return root, true
		}
	}
	return "", false
}

func (r *Resolver) pathWithin(base, target string) bool {
	if r.equalFold(base, target) {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if len(target) < len(prefix) {
		return false
	}
	return r.equalFold(target[:len(prefix)], prefix)
}

func (r *Resolver) equalFold(a, b string) bool {
	if r.caseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func stripQuotes(s string) string {
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = s[1 : len(s)-1]
			continue
		}
		break
	}
	return s
}
