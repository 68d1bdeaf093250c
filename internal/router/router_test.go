package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyModes(t *testing.T) {
	cases := []struct {
		request string
		want    Mode
	}{
		{"fix the typo in the readme", ModeQuickEdit},
		{"refactor lib/app.py into one file per class", ModeRefactor},
		{"add tests for the order book", ModeTestFocus},
		{"explain how the matching engine works", ModeExploration},
		{"audit the login flow for injection vulnerabilities", ModeSecurityAudit},
		{"implement websocket streaming for market data", ModeFullFeature},
		{"update the retry logic in the client", ModeFocusedFeature},
	}
	for _, tc := range cases {
		got := Classify(tc.request, RepoStats{FileCount: 200})
		assert.Equal(t, tc.want, got.Mode, tc.request)
	}
}

func TestSecurityWinsOverRefactor(t *testing.T) {
	cfg := Classify("refactor the auth check to sanitize user input", RepoStats{})
	assert.Equal(t, ModeSecurityAudit, cfg.Mode)
	assert.False(t, cfg.AutoInstall)
	assert.Equal(t, StrictnessStrict, cfg.Strictness)
}

func TestFullFeatureDowngradesOnSmallRepo(t *testing.T) {
	cfg := Classify("implement a rate limiter", RepoStats{FileCount: 12})
	assert.Equal(t, ModeFocusedFeature, cfg.Mode)

	cfg = Classify("implement a rate limiter", RepoStats{FileCount: 500})
	assert.Equal(t, ModeFullFeature, cfg.Mode)
}

func TestWorkersAlwaysOne(t *testing.T) {
	for _, request := range []string{
		"implement parallel ingestion", "refactor everything", "explain the repo",
	} {
		assert.Equal(t, 1, Classify(request, RepoStats{}).Workers)
	}
}

func TestRefactorRequiresSmokeImports(t *testing.T) {
	cfg := Classify("extract the parser into its own module", RepoStats{})
	assert.Equal(t, ModeRefactor, cfg.Mode)
	assert.True(t, cfg.SmokeImports)
	assert.Equal(t, ValidationTargeted, cfg.Validation)
}

func TestExplorationSkipsValidation(t *testing.T) {
	cfg := Classify("walk me through the settlement pipeline", RepoStats{})
	assert.Equal(t, ModeExploration, cfg.Mode)
	assert.Equal(t, ValidationNone, cfg.Validation)
	assert.Equal(t, ResearchDeep, cfg.Research)
}
