package infra

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// AccountManager changes OS account passwords and ends login sessions.
type AccountManager struct {
	runner CommandRunner
	pm     domain.ProcessManager
	logger *zap.Logger
}

// NewAccountManager creates an account manager.
func NewAccountManager(runner CommandRunner, pm domain.ProcessManager, logger *zap.Logger) *AccountManager {
	return &AccountManager{runner: runner, pm: pm, logger: logger}
}

// ChangePassword sets the password through chpasswd, passing the
// credentials on stdin so they never show up in the process list.
func (a *AccountManager) ChangePassword(ctx context.Context, username, password string) error {
	if username == "" || strings.ContainsAny(username, ":\n") || strings.Contains(password, "\n") {
		return fmt.Errorf("invalid credentials for chpasswd")
	}
	if err := a.runner.RunWithInput(ctx, username+":"+password+"\n", "chpasswd"); err != nil {
		return fmt.Errorf("failed to change password of %s: %w", username, err)
	}
	return nil
}

// TerminateSessions asks logind to end the user's sessions, then kills any
// process the user still owns. A user without sessions is not an error.
func (a *AccountManager) TerminateSessions(ctx context.Context, username string) error {
	if _, err := a.runner.LookPath("loginctl"); err == nil {
		if err := a.runner.Run(ctx, "loginctl", "terminate-user", username); err != nil {
			a.logger.Debug("loginctl terminate-user failed",
				zap.String("username", username),
				zap.Error(err))
		}
	}

	pids, err := a.pm.FindByUser(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to list processes of %s: %w", username, err)
	}

	var failed int
	for _, pid := range pids {
		if err := a.pm.Kill(ctx, pid); err != nil && a.pm.Exists(ctx, pid) {
			a.logger.Warn("failed to kill process",
				zap.String("username", username),
				zap.Int("pid", pid),
				zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d processes of %s survived termination", failed, username)
	}

	a.logger.Info("sessions terminated",
		zap.String("username", username),
		zap.Int("killed", len(pids)))
	return nil
}

// SystemActuator implements domain.Actuator on Linux.
type SystemActuator struct {
	firewall *FirewallManager
	accounts *AccountManager
}

// NewSystemActuator creates the actuator from its two halves.
func NewSystemActuator(firewall *FirewallManager, accounts *AccountManager) *SystemActuator {
	return &SystemActuator{firewall: firewall, accounts: accounts}
}

func (s *SystemActuator) BlockTraffic(ctx context.Context, uid uint32) error {
	return s.firewall.BlockTraffic(ctx, uid)
}

func (s *SystemActuator) AllowTraffic(ctx context.Context, uid uint32) error {
	return s.firewall.AllowTraffic(ctx, uid)
}

func (s *SystemActuator) ChangePassword(ctx context.Context, username, password string) error {
	return s.accounts.ChangePassword(ctx, username, password)
}

func (s *SystemActuator) TerminateSessions(ctx context.Context, username string) error {
	return s.accounts.TerminateSessions(ctx, username)
}

// Ensure SystemActuator implements domain.Actuator.
var _ domain.Actuator = (*SystemActuator)(nil)
