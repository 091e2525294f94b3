package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// Enforce evaluates one account and actuates the OS only when the decided
// state differs from the one last applied. The new block state is persisted
// before it is adopted in memory; a failed actuation leaves it unchanged so
// the next pass retries. Returns nil, nil when the account no longer exists.
func (s *Service) Enforce(ctx context.Context, ref domain.AccountRef) (*domain.EnforcementResult, error) {
	s.mu.Lock()
	result, err := s.enforce(ctx, ref)
	s.mu.Unlock()

	if result != nil || err != nil {
		s.recorder.EnforcementPassed(ref, result, err)
	}
	return result, err
}

func (s *Service) enforce(ctx context.Context, ref domain.AccountRef) (*domain.EnforcementResult, error) {
	start := time.Now()
	now := s.clock.Now()

	switch ref.Kind {
	case domain.AccountScreen:
		u, ok := s.state.Users[ref.ID]
		if !ok {
			return nil, nil
		}
		action := domain.ActionAllow
		if u.Regulation.ApplyingEnabled {
			action = u.Regulation.CalculateAction(now)
		}
		result := newEnforcementResult(ref, action, u.Regulation.BlockState, now.Time())
		if result.Current == result.Previous {
			return result, nil
		}
		if err := s.actuateScreen(ctx, u, action); err != nil {
			return result, err
		}
		if err := s.store.Update(domain.TableUsers, u.ID, domain.Fields{domain.FieldBlockState: result.Current}); err != nil {
			return result, errors.Wrapf(err, "failed to persist block state of user %s", u.ID)
		}
		u.Regulation.BlockState = result.Current
		s.actuated(result, start, zap.String("username", u.Username))
		return result, nil

	case domain.AccountNetwork:
		n, ok := s.state.Enforcers[ref.ID]
		if !ok {
			return nil, nil
		}
		action := n.CalculateAction(now)
		result := newEnforcementResult(ref, action, n.BlockState, now.Time())
		if result.Current == result.Previous {
			return result, nil
		}
		if err := s.actuateNetwork(ctx, n, action); err != nil {
			return result, err
		}
		if err := s.store.Update(domain.TableEnforcers, n.ID, domain.Fields{domain.FieldBlockState: result.Current}); err != nil {
			return result, errors.Wrapf(err, "failed to persist block state of enforcer %s", n.ID)
		}
		n.BlockState = result.Current
		s.actuated(result, start, zap.Uint32("uid", n.OSUserID))
		return result, nil
	}
	return nil, errors.Errorf("unknown account kind %q", ref.Kind)
}

func newEnforcementResult(ref domain.AccountRef, action domain.Action, previous domain.BlockState, at time.Time) *domain.EnforcementResult {
	return &domain.EnforcementResult{
		Account:    ref,
		Action:     action,
		Previous:   previous,
		Current:    action.Target(),
		ExecutedAt: at,
	}
}

func (s *Service) actuated(result *domain.EnforcementResult, start time.Time, field zap.Field) {
	result.Actuated = true
	result.DurationMs = time.Since(start).Milliseconds()
	s.logger.Info("access changed",
		zap.String("kind", string(result.Account.Kind)),
		zap.String("account", result.Account.ID),
		field,
		zap.String("from", string(result.Previous)),
		zap.String("to", string(result.Current)),
		zap.Int64("duration_ms", result.DurationMs))
}

// actuateScreen locks an account by rotating its password to a random one
// and ending its sessions, and unlocks it by restoring the real password.
func (s *Service) actuateScreen(ctx context.Context, u *domain.User, action domain.Action) error {
	if action == domain.ActionAllow {
		return errors.Wrapf(s.actuator.ChangePassword(ctx, u.Username, u.Password),
			"failed to restore password of %s", u.Username)
	}

	password, err := s.passwords.Generate()
	if err != nil {
		return errors.Wrap(err, "failed to generate password")
	}
	if err := s.actuator.ChangePassword(ctx, u.Username, password); err != nil {
		return errors.Wrapf(err, "failed to rotate password of %s", u.Username)
	}
	if err := s.actuator.TerminateSessions(ctx, u.Username); err != nil {
		return errors.Wrapf(err, "failed to terminate sessions of %s", u.Username)
	}
	return nil
}

func (s *Service) actuateNetwork(ctx context.Context, n *domain.NetworkEnforcer, action domain.Action) error {
	if action == domain.ActionAllow {
		return errors.Wrapf(s.actuator.AllowTraffic(ctx, n.OSUserID),
			"failed to allow traffic of uid %d", n.OSUserID)
	}
	return errors.Wrapf(s.actuator.BlockTraffic(ctx, n.OSUserID),
		"failed to block traffic of uid %d", n.OSUserID)
}
