package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
)

// DefaultCmdTimeout bounds shell commands; watch-mode test runners that never
// exit hit this and surface as TIMEOUT for the verifier to diagnose.
const DefaultCmdTimeout = 120 * time.Second

// Commands refused outright. Matching is substring on the normalized command.
var blockedCommands = []string{
	"rm -rf /",
	"rm -rf ~",
	"mkfs",
	"shutdown",
	"reboot",
	"dd if=",
	":(){",
	"sudo ",
}

type runCmd struct {
	cfg FileToolConfig
}

// NewRunCmd executes a shell command inside the workspace. Non-zero exit is
// not an error at this layer; rc, stdout, and stderr are reported and the
// verifier decides what they mean.
func NewRunCmd(cfg FileToolConfig) ports.ToolExecutor {
	return &runCmd{cfg: cfg}
}

func (t *runCmd) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	command, ok := call.Arguments["command"].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return failResult(call, toolerr.New(toolerr.ValidationError, "run_cmd", `missing "command"`)), nil
	}

	if blocked, needle := isBlocked(command); blocked {
		terr := toolerr.New(toolerr.PermissionDenied, "run_cmd",
			fmt.Sprintf("command refused: contains %q", needle))
		result := failResult(call, terr)
		result.Metadata = map[string]any{"blocked": true, "command": command}
		return result, nil
	}

	dir := t.cfg.Resolver.Primary()
	if raw := stringArg(call, "cwd"); raw != "" {
		resolved, fail := resolvePath(t.cfg, ports.ToolCall{
			ID: call.ID, Name: call.Name, Arguments: map[string]any{"cwd": raw},
		}, "run_cmd", "cwd", "read")
		if fail != nil {
			return fail, nil
		}
		dir = resolved.Abs
	}

	timeout := DefaultCmdTimeout
	if secs, ok := call.Arguments["timeout_seconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	rc := 0
	timedOut := cmdCtx.Err() == context.DeadlineExceeded
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case timedOut:
			rc = -1
		case errors.As(runErr, &exitErr):
			rc = exitErr.ExitCode()
		default:
			return failResult(call, toolerr.Classify(runErr, "run_cmd", runErr.Error())), nil
		}
	}

	meta := map[string]any{
		"rc":      rc,
		"stdout":  stdout.String(),
		"stderr":  stderr.String(),
		"blocked": false,
		"timeout": timedOut,
		"command": command,
	}

	if timedOut {
		terr := toolerr.New(toolerr.Timeout, "run_cmd",
			fmt.Sprintf("command timed out after %s: %s", timeout, command))
		result := failResult(call, terr)
		result.Metadata = meta
		result.Content = formatCmdOutput(rc, stdout.String(), stderr.String())
		return result, nil
	}

	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  formatCmdOutput(rc, stdout.String(), stderr.String()),
		Metadata: meta,
	}, nil
}

func formatCmdOutput(rc int, stdout, stderr string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit code: %d\n", rc)
	if stdout != "" {
		b.WriteString("stdout:\n" + stdout)
	}
	if stderr != "" {
		if stdout != "" {
			b.WriteString("\n")
		}
		b.WriteString("stderr:\n" + stderr)
	}
	return b.String()
}

func isBlocked(command string) (bool, string) {
	normalized := strings.Join(strings.Fields(command), " ")
	for _, needle := range blockedCommands {
		if strings.Contains(normalized, needle) {
			return true, needle
		}
	}
	return false, ""
}

func (t *runCmd) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "run_cmd",
		Description: "Run a shell command in the workspace and report exit code, stdout, and stderr",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"command":         {Type: "string", Description: "Shell command to execute"},
				"cwd":             {Type: "string", Description: "Working directory, defaults to the workspace root"},
				"timeout_seconds": {Type: "number", Description: "Timeout in seconds, defaults to 120"},
			},
			Required: []string{"command"},
		},
	}
}

func (t *runCmd) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "run_cmd", Version: "1.0.0", Category: "execution"}
}
