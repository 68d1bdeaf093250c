// Package memory persists durable project knowledge across runs as a single
// Markdown summary under the workspace's .rev directory. The planner injects
// the summary into its prompt so later runs start from what earlier runs
// learned.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rev/internal/toolerr"
)

const (
	revDirName      = ".rev"
	memoryDirName   = "memory"
	summaryFileName = "project_summary.md"

	// recentFilesWindow bounds the Recently Changed Files section.
	recentFilesWindow = 20

	// dedupeTitlePrefix is how many characters of a title must match for two
	// entries to be considered the same note.
	dedupeTitlePrefix = 40
)

// Section names the fixed summary sections, in render order.
type Section string

const (
	SectionWhatThisRepoIs Section = "What This Repo Is"
	SectionArchitecture   Section = "Current Architecture"
	SectionKnownFailures  Section = "Known Failure Modes + Fixes"
	SectionConventions    Section = "Conventions"
	SectionRecentFiles    Section = "Recently Changed Files"
)

var sectionOrder = []Section{
	SectionWhatThisRepoIs,
	SectionArchitecture,
	SectionKnownFailures,
	SectionConventions,
	SectionRecentFiles,
}

// Entry is one titled note inside a section.
type Entry struct {
	Title string
	Body  string
}

// Store reads and writes the project summary file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store rooted at the workspace directory.
func NewStore(workspaceRoot string) *Store {
	return &Store{
		path: filepath.Join(workspaceRoot, revDirName, memoryDirName, summaryFileName),
	}
}

// Path returns the summary file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the summary. A missing file yields an empty summary, not an
// error.
func (s *Store) Load() (map[Section][]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Render returns the summary as Markdown for prompt injection. Empty sections
// are rendered with their heading so the shape stays stable.
func (s *Store) Render() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sections, err := s.load()
	if err != nil {
		return "", err
	}
	return render(sections), nil
}

// Record adds a titled note to a section. A note whose title matches an
// existing one (prefix comparison) replaces it instead of duplicating.
func (s *Store) Record(section Section, title, body string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("memory entry title is required")
	}
	if !validSection(section) {
		return fmt.Errorf("unknown memory section %q", section)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sections, err := s.load()
	if err != nil {
		return err
	}

	entries := sections[section]
	replaced := false
	for i, existing := range entries {
		if sameTitle(existing.Title, title) {
			entries[i] = Entry{Title: title, Body: strings.TrimSpace(body)}
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, Entry{Title: title, Body: strings.TrimSpace(body)})
	}
	sections[section] = entries

	return s.save(sections)
}

// RecordChangedFile prepends a path to Recently Changed Files, keeping the
// window bounded and free of duplicates.
func (s *Store) RecordChangedFile(relPath string) error {
	relPath = strings.TrimSpace(relPath)
	if relPath == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sections, err := s.load()
	if err != nil {
		return err
	}

	stamp := time.Now().Format("2006-01-02")
	entries := []Entry{{Title: relPath, Body: stamp}}
	for _, existing := range sections[SectionRecentFiles] {
		if existing.Title == relPath {
			continue
		}
		entries = append(entries, existing)
		if len(entries) >= recentFilesWindow {
			break
		}
	}
	sections[SectionRecentFiles] = entries

	return s.save(sections)
}

// RecordFailure captures a classified tool failure worth remembering. Only
// kinds that recur across runs are persisted; transient noise is skipped.
func (s *Store) RecordFailure(terr *toolerr.Error, note string) error {
	if terr == nil || !worthRemembering(terr.Kind) {
		return nil
	}
	title := fmt.Sprintf("%s: %s", terr.Kind, terr.Tool)
	body := terr.Message
	if note != "" {
		body += "\nFix: " + note
	} else if len(terr.RecoverySteps) > 0 {
		body += "\nFix: " + strings.Join(terr.RecoverySteps, "; ")
	}
	return s.Record(SectionKnownFailures, title, body)
}

func worthRemembering(kind toolerr.Kind) bool {
	switch kind {
	case toolerr.PermissionDenied, toolerr.Conflict, toolerr.SyntaxError, toolerr.NotFound:
		return true
	}
	return false
}

func (s *Store) load() (map[Section][]Entry, error) {
	sections := make(map[Section][]Entry, len(sectionOrder))
	for _, section := range sectionOrder {
		sections[section] = nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return sections, nil
		}
		return nil, err
	}

	var current Section
	var entryTitle string
	var body []string

	flush := func() {
		if current == "" || entryTitle == "" {
			return
		}
		sections[current] = append(sections[current], Entry{
			Title: entryTitle,
			Body:  strings.TrimSpace(strings.Join(body, "\n")),
		})
		entryTitle = ""
		body = nil
	}

	for _, line := range strings.Split(string(raw), "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			name := Section(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			if validSection(name) {
				current = name
			} else {
				current = ""
			}
		case strings.HasPrefix(line, "### "):
			flush()
			entryTitle = strings.TrimSpace(strings.TrimPrefix(line, "### "))
		default:
			if entryTitle != "" {
				body = append(body, line)
			}
		}
	}
	flush()
	return sections, nil
}

func (s *Store) save(sections map[Section][]Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(render(sections)), 0o644)
}

func render(sections map[Section][]Entry) string {
	var b strings.Builder
	b.WriteString("# Project Summary\n")
	for _, section := range sectionOrder {
		b.WriteString("\n## " + string(section) + "\n")
		for _, entry := range sections[section] {
			b.WriteString("\n### " + entry.Title + "\n")
			if entry.Body != "" {
				b.WriteString(entry.Body + "\n")
			}
		}
	}
	return b.String()
}

func validSection(section Section) bool {
	for _, known := range sectionOrder {
		if known == section {
			return true
		}
	}
	return false
}

func sameTitle(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if len(a) > dedupeTitlePrefix {
		a = a[:dedupeTitlePrefix]
	}
	if len(b) > dedupeTitlePrefix {
		b = b[:dedupeTitlePrefix]
	}
	return a == b
}
