// Package router classifies an incoming request into an execution mode. The
// mode never changes what gets built; it only tunes how much research the
// planner may do and which validation commands the verifier runs.
package router

import "strings"

// Mode is the closed set of execution modes.
type Mode string

const (
	ModeQuickEdit      Mode = "quick_edit"
	ModeFocusedFeature Mode = "focused_feature"
	ModeFullFeature    Mode = "full_feature"
	ModeRefactor       Mode = "refactor"
	ModeTestFocus      Mode = "test_focus"
	ModeExploration    Mode = "exploration"
	ModeSecurityAudit  Mode = "security_audit"
)

// ResearchDepth bounds pre-planning research.
type ResearchDepth string

const (
	ResearchOff     ResearchDepth = "off"
	ResearchShallow ResearchDepth = "shallow"
	ResearchMedium  ResearchDepth = "medium"
	ResearchDeep    ResearchDepth = "deep"
)

// ValidationMode selects the verifier's command set.
type ValidationMode string

const (
	ValidationNone     ValidationMode = "none"
	ValidationSmoke    ValidationMode = "smoke"
	ValidationTargeted ValidationMode = "targeted"
	ValidationFull     ValidationMode = "full"
)

// Strictness tunes how hard the verifier pushes back.
type Strictness string

const (
	StrictnessLenient  Strictness = "lenient"
	StrictnessModerate Strictness = "moderate"
	StrictnessStrict   Strictness = "strict"
)

// Priority orders requests for callers that queue them.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Config is the tuned loop configuration for a mode.
type Config struct {
	Mode          Mode
	Research      ResearchDepth
	Validation    ValidationMode
	Strictness    Strictness
	Workers       int
	MaxRetries    int
	Priority      Priority
	AutoInstall   bool
	SmokeImports  bool
}

// RepoStats are rough repository statistics fed to classification.
type RepoStats struct {
	FileCount int
	Languages []string
}

// Keyword tables, checked in priority order. Security wins over everything:
// a "refactor the auth check" request still gets audit strictness.
var (
	securityKeywords = []string{
		"security", "vulnerability", "vulnerabilities", "cve", "audit",
		"injection", "xss", "csrf", "sanitize", "sanitiz", "auth bypass", "secrets",
	}
	refactorKeywords = []string{
		"refactor", "restructure", "reorganize", "extract", "split up",
		"split the", "split into", "decompose", "clean up the structure", "move class",
	}
	testKeywords = []string{
		"write tests", "add tests", "add a test", "test coverage", "unit test",
		"unit-test", "tdd", "failing test", "fix the tests", "fix tests",
	}
	explorationKeywords = []string{
		"explain", "what does", "how does", "understand", "walk me through",
		"describe", "summarize", "where is", "find out",
	}
	quickEditKeywords = []string{
		"typo", "rename the variable", "quick fix", "small fix", "one-line",
		"one line", "bump", "update the comment", "fix the import",
	}
	fullFeatureKeywords = []string{
		"implement", "build", "new feature", "add support for", "from scratch",
		"end to end", "end-to-end", "design and",
	}
)

// Classify maps request text and repo stats to a tuned configuration.
// Workers is always 1; the core loop is single-threaded.
func Classify(request string, stats RepoStats) Config {
	lower := strings.ToLower(request)

	mode := pickMode(lower, stats)
	cfg := defaults(mode)
	cfg.Workers = 1
	return cfg
}

func pickMode(lower string, stats RepoStats) Mode {
	switch {
	case containsAny(lower, securityKeywords):
		return ModeSecurityAudit
	case containsAny(lower, testKeywords):
		return ModeTestFocus
	case containsAny(lower, refactorKeywords):
		return ModeRefactor
	case containsAny(lower, explorationKeywords):
		return ModeExploration
	case containsAny(lower, quickEditKeywords):
		return ModeQuickEdit
	case containsAny(lower, fullFeatureKeywords):
		if stats.FileCount > 0 && stats.FileCount <= 25 {
			return ModeFocusedFeature
		}
		return ModeFullFeature
	default:
		return ModeFocusedFeature
	}
}

func defaults(mode Mode) Config {
	switch mode {
	case ModeQuickEdit:
		return Config{Mode: mode, Research: ResearchOff, Validation: ValidationSmoke,
			Strictness: StrictnessLenient, MaxRetries: 2, Priority: PriorityNormal, AutoInstall: true}
	case ModeFocusedFeature:
		return Config{Mode: mode, Research: ResearchShallow, Validation: ValidationTargeted,
			Strictness: StrictnessModerate, MaxRetries: 3, Priority: PriorityNormal, AutoInstall: true}
	case ModeFullFeature:
		return Config{Mode: mode, Research: ResearchMedium, Validation: ValidationFull,
			Strictness: StrictnessStrict, MaxRetries: 3, Priority: PriorityHigh, AutoInstall: true}
	case ModeRefactor:
		return Config{Mode: mode, Research: ResearchMedium, Validation: ValidationTargeted,
			Strictness: StrictnessStrict, MaxRetries: 3, Priority: PriorityHigh,
			AutoInstall: true, SmokeImports: true}
	case ModeTestFocus:
		return Config{Mode: mode, Research: ResearchShallow, Validation: ValidationFull,
			Strictness: StrictnessModerate, MaxRetries: 4, Priority: PriorityNormal, AutoInstall: true}
	case ModeSecurityAudit:
		return Config{Mode: mode, Research: ResearchDeep, Validation: ValidationTargeted,
			Strictness: StrictnessStrict, MaxRetries: 2, Priority: PriorityCritical, AutoInstall: false}
	case ModeExploration:
		return Config{Mode: mode, Research: ResearchDeep, Validation: ValidationNone,
			Strictness: StrictnessLenient, MaxRetries: 2, Priority: PriorityLow, AutoInstall: false}
	}
	return Config{Mode: ModeFocusedFeature, Research: ResearchShallow, Validation: ValidationTargeted,
		Strictness: StrictnessModerate, MaxRetries: 3, Priority: PriorityNormal, AutoInstall: true}
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
