// Package runner executes external tools (uv, python, ping, where/which) and
// hands back their captured output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single process invocation.
type Command struct {
	Name string
	Args []string
	// Env entries ("KEY=value") are added on top of the parent environment.
	Env []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner runs a command and returns its standard output. Any failure
// (spawn error, non-zero exit, cancellation) is reported as an error and no
// output; callers treat both the same way.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// Error is returned when a command could not be started or exited non-zero.
type Error struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit %d: %v: %s", e.Command, e.ExitCode, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: exit %d: %v", e.Command, e.ExitCode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ExecRunner runs commands on the local host.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a runner that logs each invocation at debug level.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes cmd and returns its trimmed standard output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.logger.Debug("running command", "cmd", cmd.String(), "dir", cmd.Dir)

	err := c.Run()
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}

	exitCode := 1
	var exitErr *exec.ExitError
	var execErr *exec.Error
	switch {
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitCode()
	case errors.As(err, &execErr), errors.Is(err, fs.ErrNotExist):
		// Not found on PATH, or a missing absolute path (*fs.PathError).
		exitCode = 127
	}

	runErr := &Error{
		Command:  cmd.String(),
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	r.logger.Debug("command failed", "cmd", cmd.String(), "exit_code", exitCode, "error", err)
	return "", runErr
}
