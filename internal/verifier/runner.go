package verifier

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// CommandRunner executes one validation command. Tests substitute a fake.
type CommandRunner interface {
	Run(ctx context.Context, command, dir string) (rc int, stdout, stderr string, err error)
}

// ExecRunner runs commands through the shell with a bounded timeout.
type ExecRunner struct {
	Timeout time.Duration
}

// Run implements CommandRunner.
func (r *ExecRunner) Run(ctx context.Context, command, dir string) (int, string, string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return -1, stdout.String(), stderr.String(), nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return exitErr.ExitCode(), stdout.String(), stderr.String(), nil
		}
		return -1, stdout.String(), stderr.String(), runErr
	}
	return 0, stdout.String(), stderr.String(), nil
}
