// Package usecase contains application business logic.
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/policy"
)

// ServiceConfig holds service tuning.
type ServiceConfig struct {
	UnlockAttemptsPerMinute int
}

// DefaultServiceConfig returns default service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{UnlockAttemptsPerMinute: 5}
}

// ChangeListener is told which accounts need re-evaluation after a
// committed operation.
type ChangeListener interface {
	AccountsChanged(refs []domain.AccountRef)
}

// Recorder receives operation and enforcement events for metrics.
type Recorder interface {
	OperationExecuted(kind string, outcome domain.Outcome)
	EnforcementPassed(ref domain.AccountRef, result *domain.EnforcementResult, err error)
}

type nopRecorder struct{}

func (nopRecorder) OperationExecuted(string, domain.Outcome) {}

func (nopRecorder) EnforcementPassed(domain.AccountRef, *domain.EnforcementResult, error) {}

// Service owns the regulated state. One mutex guards the state and the store
// for every operation and every enforcement pass, so the two never diverge.
type Service struct {
	mu        sync.Mutex
	state     *domain.State
	store     domain.Store
	actuator  domain.Actuator
	clock     domain.Clock
	passwords domain.PasswordGenerator
	config    ServiceConfig
	limiters  map[string]*rate.Limiter
	listeners []ChangeListener
	recorder  Recorder
	logger    *zap.Logger
}

// NewService creates a service with an empty state. Call Load to read the store.
func NewService(
	store domain.Store,
	actuator domain.Actuator,
	clock domain.Clock,
	passwords domain.PasswordGenerator,
	config ServiceConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		state:     domain.NewState(),
		store:     store,
		actuator:  actuator,
		clock:     clock,
		passwords: passwords,
		config:    config,
		limiters:  make(map[string]*rate.Limiter),
		recorder:  nopRecorder{},
		logger:    logger,
	}
}

// WithRecorder sets the metrics recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Subscribe registers a listener for committed changes.
func (s *Service) Subscribe(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Load replaces the in-memory state with the stored one. Every block state
// is reset to unknown so the first enforcement pass re-asserts the OS state.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := LoadState(s.store)
	if err != nil {
		return errors.Wrap(err, "failed to load state")
	}
	for _, u := range state.Users {
		u.Regulation.BlockState = domain.BlockStateUnknown
	}
	for _, n := range state.Enforcers {
		n.BlockState = domain.BlockStateUnknown
	}
	s.state = state

	info, err := s.store.RecordStart(s.clock.Now().Time())
	if err != nil {
		return errors.Wrap(err, "failed to record daemon start")
	}
	s.logger.Info("state loaded",
		zap.Int("users", len(state.Users)),
		zap.Int("enforcers", len(state.Enforcers)),
		zap.Int("schema_version", info.SchemaVersion),
		zap.Int("start_count", info.StartCount))
	return nil
}

// Execute applies op to a copy of the state, persists the changes and only
// then swaps the copy in. Rejections leave everything untouched. A failure
// after an account was already released marks that account for a fresh pass.
func (s *Service) Execute(ctx context.Context, op policy.Operation) domain.Result {
	s.mu.Lock()
	res, reevaluate := s.execute(ctx, op)
	listeners := make([]ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.recorder.OperationExecuted(op.Kind(), res.Outcome)
	if len(reevaluate) > 0 {
		for _, l := range listeners {
			l.AccountsChanged(reevaluate)
		}
	}
	return res
}

// execute returns the result and the accounts to re-evaluate. Those are the
// touched accounts on success, and the already released accounts when a
// later step fails: their OS state was changed without the operation taking
// effect, so the next pass must re-assert it.
func (s *Service) execute(ctx context.Context, op policy.Operation) (domain.Result, []domain.AccountRef) {
	now := s.clock.Now()

	if t, ok := op.(policy.Throttled); ok && !s.allowAttempt(t.ThrottleKey(), now.Time()) {
		s.logger.Warn("operation throttled",
			zap.String("kind", op.Kind()),
			zap.String("key", t.ThrottleKey()))
		return domain.Reject(domain.OutcomeTooManyAttempts), nil
	}

	next := s.state.Clone()
	res := op.Apply(next, now)
	if !res.Outcome.IsSuccess() {
		s.logger.Debug("operation rejected",
			zap.String("kind", op.Kind()),
			zap.String("outcome", string(res.Outcome)))
		return res, nil
	}

	released := make([]domain.AccountRef, 0, len(res.Released))
	for _, ref := range res.Released {
		if err := s.release(ctx, ref); err != nil {
			s.logger.Error("failed to release account",
				zap.String("kind", op.Kind()),
				zap.String("account", ref.ID),
				zap.Error(err))
			s.forgetBlockState(released)
			return domain.Reject(domain.OutcomeInternalError), released
		}
		released = append(released, ref)
	}

	if len(res.Changes) > 0 {
		if err := s.store.Commit(res.Changes); err != nil {
			s.logger.Error("failed to persist operation",
				zap.String("kind", op.Kind()),
				zap.Int("changes", len(res.Changes)),
				zap.Int("released", len(released)),
				zap.Error(err))
			s.forgetBlockState(released)
			return domain.Reject(domain.OutcomeInternalError), released
		}
	}

	s.state = next
	s.logger.Info("operation applied",
		zap.String("kind", op.Kind()),
		zap.String("created_id", res.CreatedID),
		zap.Int("changes", len(res.Changes)))
	return res, res.Touched
}

// forgetBlockState marks accounts whose OS state no longer matches the
// recorded one, so their next pass actuates again.
func (s *Service) forgetBlockState(refs []domain.AccountRef) {
	for _, ref := range refs {
		switch ref.Kind {
		case domain.AccountScreen:
			if u, ok := s.state.Users[ref.ID]; ok {
				u.Regulation.BlockState = domain.BlockStateUnknown
			}
		case domain.AccountNetwork:
			if n, ok := s.state.Enforcers[ref.ID]; ok {
				n.BlockState = domain.BlockStateUnknown
			}
		}
	}
}

// release returns the OS state of an account that is about to be removed to
// allowed. Called with s.mu held, against the state before the removal.
func (s *Service) release(ctx context.Context, ref domain.AccountRef) error {
	switch ref.Kind {
	case domain.AccountScreen:
		u, ok := s.state.Users[ref.ID]
		if !ok || u.Regulation.BlockState == domain.BlockStateAllowed {
			return nil
		}
		return errors.Wrapf(s.actuator.ChangePassword(ctx, u.Username, u.Password),
			"failed to restore password of %s", u.Username)
	case domain.AccountNetwork:
		n, ok := s.state.Enforcers[ref.ID]
		if !ok || n.BlockState == domain.BlockStateAllowed {
			return nil
		}
		return errors.Wrapf(s.actuator.AllowTraffic(ctx, n.OSUserID),
			"failed to allow traffic of uid %d", n.OSUserID)
	}
	return errors.Errorf("unknown account kind %q", ref.Kind)
}

func (s *Service) allowAttempt(key string, now time.Time) bool {
	if s.config.UnlockAttemptsPerMinute <= 0 {
		return true
	}
	l, ok := s.limiters[key]
	if !ok {
		n := s.config.UnlockAttemptsPerMinute
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		s.limiters[key] = l
	}
	return l.AllowN(now, 1)
}

// Accounts lists every regulated account.
func (s *Service) Accounts() []domain.AccountRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := make([]domain.AccountRef, 0, len(s.state.Users)+len(s.state.Enforcers))
	for id := range s.state.Users {
		refs = append(refs, domain.AccountRef{Kind: domain.AccountScreen, ID: id})
	}
	for id := range s.state.Enforcers {
		refs = append(refs, domain.AccountRef{Kind: domain.AccountNetwork, ID: id})
	}
	return refs
}
