package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// AccountEnforcer runs enforcement passes.
// Implementation: usecase.Service.
type AccountEnforcer interface {
	Enforce(ctx context.Context, ref domain.AccountRef) (*domain.EnforcementResult, error)
	Accounts() []domain.AccountRef
}

// RegulatorConfig holds regulator daemon configuration.
type RegulatorConfig struct {
	CheckInterval     time.Duration // Delay between passes over the same account
	RetryInterval     time.Duration // Delay before retrying a failed pass
	HeartbeatInterval time.Duration // How often to refresh the status heartbeat
	UnitCheckInterval time.Duration // How often to check the systemd unit
}

// DefaultRegulatorConfig returns default regulator configuration.
func DefaultRegulatorConfig() RegulatorConfig {
	return RegulatorConfig{
		CheckInterval:     time.Minute,
		RetryInterval:     30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		UnitCheckInterval: 60 * time.Second,
	}
}

// Regulator keeps every account's OS state in line with its regulation.
// Each account has one live chain of scheduled passes; scheduling a new pass
// supersedes the pending one, so a change re-evaluates the account at once
// without doubling its periodic checks.
type Regulator struct {
	config    RegulatorConfig
	enforcer  AccountEnforcer
	scheduler *Scheduler
	status    *StatusHandle
	logger    *zap.Logger

	// Optional: unit self-healing
	service  domain.ServiceManager
	execPath string

	mu     sync.Mutex
	tokens map[domain.AccountRef]uint64
}

// NewRegulator creates a regulator driving passes through scheduler.
func NewRegulator(
	config RegulatorConfig,
	enforcer AccountEnforcer,
	scheduler *Scheduler,
	status *StatusHandle,
	logger *zap.Logger,
) *Regulator {
	return &Regulator{
		config:    config,
		enforcer:  enforcer,
		scheduler: scheduler,
		status:    status,
		logger:    logger,
		tokens:    make(map[domain.AccountRef]uint64),
	}
}

// WithServiceManager makes the regulator restore its unit when it is
// deleted or rewritten to point elsewhere.
func (r *Regulator) WithServiceManager(m domain.ServiceManager, execPath string) *Regulator {
	r.service = m
	r.execPath = execPath
	return r
}

// Run schedules a pass for every account and keeps the heartbeat until ctx
// is canceled. The scheduler is closed on return.
func (r *Regulator) Run(ctx context.Context) error {
	r.status.markStarted(time.Now())

	accounts := r.enforcer.Accounts()
	r.logger.Info("regulator daemon started",
		zap.Int("accounts", len(accounts)),
		zap.Duration("check_interval", r.config.CheckInterval))
	r.AccountsChanged(accounts)
	r.ensureUnitInstalled()

	heartbeatTicker := time.NewTicker(r.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	unitCheckTicker := time.NewTicker(r.config.UnitCheckInterval)
	defer unitCheckTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("regulator daemon stopping")
			r.scheduler.Close()
			return ctx.Err()

		case now := <-heartbeatTicker.C:
			r.status.heartbeat(now, r.scheduler.Pending())

		case <-unitCheckTicker.C:
			r.ensureUnitInstalled()
		}
	}
}

// ensureUnitInstalled restores a deleted unit and rewrites a modified one.
func (r *Regulator) ensureUnitInstalled() {
	if r.service == nil {
		return
	}

	if !r.service.IsInstalled() {
		r.logger.Info("systemd unit missing, restoring...")
		if err := r.service.Install(r.execPath); err != nil {
			r.logger.Error("failed to restore systemd unit", zap.Error(err))
		} else {
			r.logger.Info("systemd unit restored successfully")
		}
	} else if r.service.NeedsUpdate(r.execPath) {
		r.logger.Info("systemd unit outdated, updating...")
		if err := r.service.Update(r.execPath); err != nil {
			r.logger.Error("failed to update systemd unit", zap.Error(err))
		} else {
			r.logger.Info("systemd unit updated successfully")
		}
	}
}

// AccountsChanged schedules an immediate pass for each account.
func (r *Regulator) AccountsChanged(refs []domain.AccountRef) {
	for _, ref := range refs {
		r.schedule(ref, 0)
	}
}

func (r *Regulator) schedule(ref domain.AccountRef, delay time.Duration) {
	r.mu.Lock()
	r.tokens[ref]++
	token := r.tokens[ref]
	r.mu.Unlock()

	r.scheduler.AddDelayedOperation(delay, func(ctx context.Context) {
		r.runPass(ctx, ref, token)
	})
}

func (r *Regulator) current(ref domain.AccountRef, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[ref] == token
}

func (r *Regulator) forget(ref domain.AccountRef, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens[ref] == token {
		delete(r.tokens, ref)
	}
}

// runPass enforces one account and schedules its next pass.
func (r *Regulator) runPass(ctx context.Context, ref domain.AccountRef, token uint64) {
	if !r.current(ref, token) {
		return
	}

	result, err := r.enforcer.Enforce(ctx, ref)
	if err != nil {
		r.status.recordFailure(err)
		r.logger.Warn("enforcement failed, will retry",
			zap.String("kind", string(ref.Kind)),
			zap.String("account", ref.ID),
			zap.Duration("retry_in", r.config.RetryInterval),
			zap.Error(err))
		if ctx.Err() == nil && r.current(ref, token) {
			r.schedule(ref, r.config.RetryInterval)
		}
		return
	}
	if result == nil {
		r.logger.Debug("account removed, stopping checks",
			zap.String("kind", string(ref.Kind)),
			zap.String("account", ref.ID))
		r.forget(ref, token)
		return
	}

	r.status.recordPass(result)
	if r.current(ref, token) {
		r.schedule(ref, r.config.CheckInterval)
	}
}
