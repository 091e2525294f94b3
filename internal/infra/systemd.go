package infra

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// System unit template (runs as root, needed for chpasswd and iptables)
const systemUnitTemplate = `[Unit]
Description=accessmon temporal access-control daemon
After=network.target

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon
Restart=always
RestartSec=10

[Install]
WantedBy=multi-user.target
`

// User unit template (runs as user; can only report, not actuate)
const userUnitTemplate = `[Unit]
Description=accessmon temporal access-control daemon

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target
`

type unitConfig struct {
	ExecutablePath string
}

// SystemdManagerImpl implements domain.ServiceManager for both modes.
type SystemdManagerImpl struct {
	mode     ExecMode
	unitDir  string
	unitPath string
	runner   CommandRunner
}

// NewSystemdManager creates a systemd manager based on execution mode.
func NewSystemdManager(config *ExecModeConfig, runner CommandRunner) domain.ServiceManager {
	return &SystemdManagerImpl{
		mode:     config.Mode,
		unitDir:  config.UnitDir,
		unitPath: config.UnitPath,
		runner:   runner,
	}
}

// generateUnitContent creates unit content for the given exec path.
func (m *SystemdManagerImpl) generateUnitContent(execPath string) ([]byte, error) {
	// Select template based on mode
	tmplStr := userUnitTemplate
	if m.mode == ExecModeSystem {
		tmplStr = systemUnitTemplate
	}

	tmpl, err := template.New("unit").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, unitConfig{ExecutablePath: execPath}); err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}

	return buf.Bytes(), nil
}

// Install writes the unit, reloads systemd and enables the unit now.
func (m *SystemdManagerImpl) Install(execPath string) error {
	if err := m.write(execPath); err != nil {
		return err
	}
	if err := m.systemctl("daemon-reload"); err != nil {
		return err
	}
	return m.systemctl("enable", "--now", UnitName)
}

// Uninstall disables the unit and removes the unit file.
func (m *SystemdManagerImpl) Uninstall() error {
	// Disable first (ignore errors if not enabled)
	_ = m.systemctl("disable", "--now", UnitName)

	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return m.systemctl("daemon-reload")
}

// IsInstalled checks if the unit file is installed.
func (m *SystemdManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.unitPath)
	return err == nil
}

// NeedsUpdate checks if the unit exists but has different content than expected.
func (m *SystemdManagerImpl) NeedsUpdate(execPath string) bool {
	if !m.IsInstalled() {
		return false // Doesn't exist, needs install not update
	}

	currentContent, err := os.ReadFile(m.unitPath)
	if err != nil {
		return true // Can't read, assume needs update
	}

	expectedContent, err := m.generateUnitContent(execPath)
	if err != nil {
		return true // Can't generate, assume needs update
	}

	return !bytes.Equal(currentContent, expectedContent)
}

// Update rewrites the unit content and reloads systemd. The running daemon
// keeps running; the new unit applies on its next start.
func (m *SystemdManagerImpl) Update(execPath string) error {
	if err := m.write(execPath); err != nil {
		return err
	}
	return m.systemctl("daemon-reload")
}

// GetUnitPath returns the unit file path.
func (m *SystemdManagerImpl) GetUnitPath() string {
	return m.unitPath
}

func (m *SystemdManagerImpl) write(execPath string) error {
	if err := os.MkdirAll(m.unitDir, 0755); err != nil {
		return err
	}
	content, err := m.generateUnitContent(execPath)
	if err != nil {
		return fmt.Errorf("failed to generate unit content: %w", err)
	}
	return os.WriteFile(m.unitPath, content, 0644)
}

func (m *SystemdManagerImpl) systemctl(args ...string) error {
	if m.mode == ExecModeUser {
		args = append([]string{"--user"}, args...)
	}
	return m.runner.Run(context.Background(), "systemctl", args...)
}

// Ensure SystemdManagerImpl implements domain.ServiceManager.
var _ domain.ServiceManager = (*SystemdManagerImpl)(nil)
