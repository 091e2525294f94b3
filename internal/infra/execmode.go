package infra

import (
	"os"
	"path/filepath"
)

// ExecMode is where accessmon is installed: as a system unit run by root,
// or as a user unit that can observe but not actuate.
type ExecMode string

const (
	ExecModeSystem ExecMode = "system"
	ExecModeUser   ExecMode = "user"
)

// UnitName is the systemd unit the daemon is installed as.
const UnitName = "accessmon.service"

// ExecModeConfig holds the install paths of one mode.
type ExecModeConfig struct {
	Mode       ExecMode
	BinaryPath string
	UnitDir    string
	UnitPath   string
	DataDir    string // encrypted store and its key
	LogPath    string
	IsRoot     bool
}

// DetectExecMode picks the mode from the effective uid.
func DetectExecMode() *ExecModeConfig {
	home, _ := os.UserHomeDir()
	return execModeFor(os.Geteuid(), home)
}

func execModeFor(euid int, home string) *ExecModeConfig {
	if euid == 0 {
		return &ExecModeConfig{
			Mode:       ExecModeSystem,
			BinaryPath: "/usr/local/bin/accessmon",
			UnitDir:    "/etc/systemd/system",
			UnitPath:   filepath.Join("/etc/systemd/system", UnitName),
			DataDir:    "/var/lib/accessmon",
			LogPath:    "/var/log/accessmon.log",
			IsRoot:     true,
		}
	}

	unitDir := filepath.Join(home, ".config", "systemd", "user")
	dataDir := filepath.Join(home, ".accessmon")
	return &ExecModeConfig{
		Mode:       ExecModeUser,
		BinaryPath: filepath.Join(home, ".local", "bin", "accessmon"),
		UnitDir:    unitDir,
		UnitPath:   filepath.Join(unitDir, UnitName),
		DataDir:    dataDir,
		LogPath:    filepath.Join(dataDir, "accessmon.log"),
	}
}

// CanActuate reports whether the mode may change passwords and firewall
// rules. Only root can.
func (c *ExecModeConfig) CanActuate() bool {
	return c.IsRoot
}

func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (systemd system unit, root)"
	case ExecModeUser:
		return "user (systemd user unit, non-root)"
	default:
		return "unknown"
	}
}
