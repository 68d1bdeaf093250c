// Package config resolves runtime settings from three layers in ascending
// precedence: built-in defaults, an optional rev.yaml in the workspace root,
// and REV_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rev/internal/router"
)

// Execution mode names accepted by execution_mode / REV_EXECUTION_MODE.
const (
	ExecutionLinear   = "linear"
	ExecutionSubAgent = "sub-agent"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	Execution     string
	ReadOnly      bool
	TDDEnabled    bool
	Debug         bool
	MaxIterations int

	TokenCap     int
	StepCap      int
	WallclockCap time.Duration

	// VerifyStrict forces full validation; VerifyFast drops it to smoke.
	// They are mutually exclusive.
	VerifyStrict bool
	VerifyFast   bool

	Model   string
	BaseURL string
	APIKey  string
}

// Load reads settings for one workspace.
func Load(workspaceRoot string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("execution_mode", ExecutionSubAgent)
	v.SetDefault("read_only", false)
	v.SetDefault("tdd_enabled", false)
	v.SetDefault("debug", false)
	v.SetDefault("max_iterations", 40)
	v.SetDefault("token_cap", 400_000)
	v.SetDefault("step_cap", 60)
	v.SetDefault("wallclock_cap", "30m")
	v.SetDefault("verify_strict", false)
	v.SetDefault("verify_fast", false)
	v.SetDefault("model", "gpt-4o")
	v.SetDefault("base_url", "https://api.openai.com/v1")
	v.SetDefault("api_key", "")

	v.SetEnvPrefix("REV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("rev")
	v.SetConfigType("yaml")
	v.AddConfigPath(workspaceRoot)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read rev.yaml: %w", err)
		}
	}

	s := &Settings{
		Execution:     v.GetString("execution_mode"),
		ReadOnly:      v.GetBool("read_only"),
		TDDEnabled:    v.GetBool("tdd_enabled"),
		Debug:         v.GetBool("debug"),
		MaxIterations: v.GetInt("max_iterations"),
		TokenCap:      v.GetInt("token_cap"),
		StepCap:       v.GetInt("step_cap"),
		WallclockCap:  v.GetDuration("wallclock_cap"),
		VerifyStrict:  v.GetBool("verify_strict"),
		VerifyFast:    v.GetBool("verify_fast"),
		Model:         v.GetString("model"),
		BaseURL:       strings.TrimRight(v.GetString("base_url"), "/"),
		APIKey:        v.GetString("api_key"),
	}

	switch s.Execution {
	case ExecutionLinear, ExecutionSubAgent:
	default:
		return nil, fmt.Errorf("execution_mode must be %q or %q, got %q",
			ExecutionLinear, ExecutionSubAgent, s.Execution)
	}
	if s.VerifyStrict && s.VerifyFast {
		return nil, errors.New("verify_strict and verify_fast are mutually exclusive")
	}
	return s, nil
}

// ApplyValidation folds the verify overrides into a routed mode config.
func (s *Settings) ApplyValidation(mode router.Config) router.Config {
	switch {
	case s.VerifyStrict:
		mode.Validation = router.ValidationFull
		mode.Strictness = router.StrictnessStrict
	case s.VerifyFast:
		mode.Validation = router.ValidationSmoke
	}
	return mode
}
