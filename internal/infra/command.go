// Package infra implements infrastructure concerns (store, firewall, accounts, processes).
package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds every external command.
const DefaultCommandTimeout = 30 * time.Second

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	// Run executes a command and waits for it to complete
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a command and returns its stdout
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInput executes a command feeding input on stdin
	RunWithInput(ctx context.Context, input string, name string, args ...string) error

	// LookPath resolves a binary name on PATH
	LookPath(name string) (string, error)
}

// CommandError describes a failed command. ExitCode is -1 when the command
// did not exit normally (not found, killed by the timeout).
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode returns the exit status carried by err, or -1.
func ExitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}

// RealCommandRunner executes real system commands, each bounded by Timeout.
type RealCommandRunner struct {
	Timeout time.Duration
}

// NewCommandRunner creates a runner with the given timeout.
func NewCommandRunner(timeout time.Duration) *RealCommandRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &RealCommandRunner{Timeout: timeout}
}

func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.exec(ctx, "", name, args...)
	return err
}

func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.exec(ctx, "", name, args...)
}

func (r *RealCommandRunner) RunWithInput(ctx context.Context, input string, name string, args ...string) error {
	_, err := r.exec(ctx, input, name, args...)
	return err
}

func (r *RealCommandRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (r *RealCommandRunner) exec(ctx context.Context, input string, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Never echo stdin: it may carry a password.
		cmdErr := &CommandError{
			Command:  strings.TrimSpace(name + " " + strings.Join(args, " ")),
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), cmdErr
	}
	return stdout.Bytes(), nil
}

// Ensure RealCommandRunner implements CommandRunner.
var _ CommandRunner = (*RealCommandRunner)(nil)
