package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command is a single process invocation.
type Command struct {
	Name             string
	Args             []string
	WorkingDirectory string
	Env              map[string]string
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandResult carries the captured output of a finished process.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner executes commands. A non-zero exit is reported through
// CommandResult.ExitCode; the error is reserved for processes that could not run.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (CommandResult, error)
}

// CommandError is returned by services when a command exits non-zero.
type CommandError struct {
	Command Command
	Result  CommandResult
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Result.Stderr)
	if stderr != "" {
		return fmt.Sprintf("%s exited with code %d (stderr: %s)", e.Command, e.Result.ExitCode, stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.Result.ExitCode)
}

// osCommandRunner runs commands with os/exec.
type osCommandRunner struct{}

// NewOSCommandRunner creates a CommandRunner backed by os/exec.
func NewOSCommandRunner() CommandRunner {
	return &osCommandRunner{}
}

// Run executes the command and captures both output streams.
func (r *osCommandRunner) Run(ctx context.Context, c Command) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.WorkingDirectory != "" {
		cmd.Dir = c.WorkingDirectory
	}
	if len(c.Env) > 0 {
		env := append([]string{}, os.Environ()...)
		for k, v := range c.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return CommandResult{}, fmt.Errorf("%s timed out: %w", c, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return CommandResult{
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				ExitCode: exitErr.ExitCode(),
			}, nil
		}
		return CommandResult{}, fmt.Errorf("failed to run %s: %w", c, err)
	}
	return CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
