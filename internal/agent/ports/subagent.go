package ports

import "strings"

// Sub-agent sentinel prefixes. A sub-agent that cannot produce structured
// output signals its disposition with one of these string prefixes.
const (
	SentinelRecoveryRequested = "[RECOVERY_REQUESTED]"
	SentinelFinalFailure      = "[FINAL_FAILURE]"
	SentinelUserRejected      = "[USER_REJECTED]"
)

// SubAgentOutput is the structured return of a sub-agent execution.
type SubAgentOutput struct {
	AgentName  string         `json:"agent_name"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolOutput string         `json:"tool_output,omitempty"`
	Evidence   []Evidence     `json:"evidence,omitempty"`
}

// Evidence ties a sub-agent claim to a tool artifact.
type Evidence struct {
	ArtifactRef string `json:"artifact_ref"`
	Summary     string `json:"summary"`
}

// SentinelOf returns the sentinel prefix of s, or "" when s is not a
// sentinel-prefixed string.
func SentinelOf(s string) string {
	trimmed := strings.TrimSpace(s)
	for _, sentinel := range []string{SentinelRecoveryRequested, SentinelFinalFailure, SentinelUserRejected} {
		if strings.HasPrefix(trimmed, sentinel) {
			return sentinel
		}
	}
	return ""
}
