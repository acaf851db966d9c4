// Package executor runs vetted commands locally or on SSH targets.
package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

const waitDelay = time.Second

// LocalExecutor runs commands on the host shell.
type LocalExecutor struct {
	shell string
}

// NewLocalExecutor builds a new executor, shell defaults to $SHELL then /bin/sh.
func NewLocalExecutor(shell string) *LocalExecutor {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &LocalExecutor{shell: shell}
}

// Execute implements ports.CommandExecutor. A non-zero exit status is reported
// through ExitCode, not as an error; errors mean the command never ran.
func (e *LocalExecutor) Execute(ctx context.Context, target, command string) (domain.ExecutionResult, error) {
	c := exec.CommandContext(ctx, e.shell, "-c", command)
	// Orphaned grandchildren can hold the pipes open after a cancel.
	c.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()

	result := domain.ExecutionResult{
		Target:   target,
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Ran = true
	case errors.As(err, &exitErr):
		result.Ran = true
		result.ExitCode = exitErr.ExitCode()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
	default:
		return result, err
	}
	return result, nil
}

var _ ports.CommandExecutor = (*LocalExecutor)(nil)
