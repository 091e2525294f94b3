package infra

import (
	"context"
	"errors"
	"strings"
)

// mockProcessManager serves a fixed process table per user.
type mockProcessManager struct {
	byUser     map[string][]int
	alive      map[int]bool
	killedPIDs []int
	killErr    error
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		byUser: make(map[string][]int),
		alive:  make(map[int]bool),
	}
}

func (m *mockProcessManager) FindByUser(_ context.Context, username string) ([]int, error) {
	return m.byUser[username], nil
}

func (m *mockProcessManager) Kill(_ context.Context, pid int) error {
	if m.killErr != nil {
		return m.killErr
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.alive, pid)
	return nil
}

func (m *mockProcessManager) Exists(_ context.Context, pid int) bool {
	return m.alive[pid]
}

// mockCommandRunner records commands and answers from a script keyed by
// the joined command line.
type mockCommandRunner struct {
	calls   []string
	inputs  []string
	results map[string]error
	paths   map[string]string
	// handler, when set, decides the result of every command
	handler func(cmdline string) error
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		results: make(map[string]error),
		paths:   make(map[string]string),
	}
}

func (m *mockCommandRunner) Run(_ context.Context, name string, args ...string) error {
	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))
	m.calls = append(m.calls, cmdline)
	if m.handler != nil {
		return m.handler(cmdline)
	}
	return m.results[cmdline]
}

func (m *mockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, m.Run(ctx, name, args...)
}

func (m *mockCommandRunner) RunWithInput(ctx context.Context, input string, name string, args ...string) error {
	m.inputs = append(m.inputs, input)
	return m.Run(ctx, name, args...)
}

func (m *mockCommandRunner) LookPath(name string) (string, error) {
	if p, ok := m.paths[name]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

// exitStatus builds the error a real runner returns for a non-zero exit.
func exitStatus(code int) error {
	return &CommandError{Command: "mock", ExitCode: code, Err: errors.New("exit status")}
}
