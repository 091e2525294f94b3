package daemon

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/eliteGoblin/focusd/access_mon/internal/infra"
)

// StartDaemon spawns the regulator daemon from the installed binary.
// The daemon is detached from the parent process (runs independently).
func StartDaemon() error {
	return StartDaemonWithPath(infra.DetectExecMode().BinaryPath)
}

// StartDaemonWithPath spawns the daemon from binaryPath. Falls back to the
// running executable when binaryPath does not exist.
func StartDaemonWithPath(binaryPath string) error {
	executable := binaryPath
	if _, err := os.Stat(executable); err != nil {
		executable, err = os.Executable()
		if err != nil {
			return err
		}
	}

	// Hidden "daemon" command: accessmon daemon
	cmd := exec.Command(executable, "daemon")

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd.Start()
}
