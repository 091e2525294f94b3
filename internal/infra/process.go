package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// UserProcesses implements domain.ProcessManager on top of gopsutil's
// process table.
type UserProcesses struct {
	self int32
}

// NewProcessManager creates a process manager that never reports or kills
// the daemon itself.
func NewProcessManager() *UserProcesses {
	return &UserProcesses{self: int32(os.Getpid())}
}

// FindByUser scans the process table for processes owned by username.
// Processes that exit mid-scan are skipped.
func (u *UserProcesses) FindByUser(ctx context.Context, username string) ([]int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var owned []int
	for _, p := range procs {
		if p.Pid == u.self {
			continue
		}
		owner, err := p.UsernameWithContext(ctx)
		if err != nil || owner != username {
			continue
		}
		owned = append(owned, int(p.Pid))
	}
	return owned, nil
}

func (u *UserProcesses) Kill(ctx context.Context, pid int) error {
	if int32(pid) == u.self {
		return fmt.Errorf("refusing to kill own pid %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}

func (u *UserProcesses) Exists(ctx context.Context, pid int) bool {
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	return err == nil && ok
}

var _ domain.ProcessManager = (*UserProcesses)(nil)
