package policy

import (
	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// CreatePolicy adds a policy to a user's regulation.
type CreatePolicy struct {
	UserID    string      `json:"user_id"`
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name"`
	Enabled   bool        `json:"enabled,omitempty"`
	Protector EnablerSpec `json:"protector"`
}

func (*CreatePolicy) Kind() string { return "create_policy" }

func (op *CreatePolicy) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, outcome := lookupUser(s, op.UserID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if len(u.Regulation.Policies) >= MaxPolicies {
		return domain.Reject(domain.OutcomeTooManyPolicies)
	}
	if !ValidName(op.Name) {
		return domain.Reject(domain.OutcomeInvalidName)
	}
	id, outcome := resolveID(op.ID, func(id string) bool {
		owner, _ := s.FindPolicy(id)
		return owner != nil
	})
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	protector, outcome := op.Protector.Build(now)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}

	u.Regulation.Policies = append(u.Regulation.Policies, domain.Policy{
		ID:        id,
		Name:      op.Name,
		Enabled:   op.Enabled,
		Protector: protector,
	})
	p := &u.Regulation.Policies[len(u.Regulation.Policies)-1]
	return domain.Result{
		Outcome:   domain.OutcomeSuccess,
		CreatedID: id,
		Changes: []domain.Change{
			domain.AddRow(domain.TablePolicies, id, domain.PolicyFields(u.ID, p)),
			userPolicyIDs(u),
		},
		Touched: screen(u.ID),
	}
}

// DeletePolicy removes a policy and its rules; refused while protected.
type DeletePolicy struct {
	UserID   string `json:"user_id"`
	PolicyID string `json:"policy_id"`
}

func (*DeletePolicy) Kind() string { return "delete_policy" }

func (op *DeletePolicy) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if p.IsProtected(now) {
		return domain.Reject(domain.OutcomeMayNotDeleteWhileEnabled)
	}

	changes := make([]domain.Change, 0, len(p.Rules)+2)
	for _, r := range p.Rules {
		changes = append(changes, domain.DeleteRow(domain.TableRules, r.ID))
	}
	changes = append(changes, domain.DeleteRow(domain.TablePolicies, p.ID))

	kept := u.Regulation.Policies[:0]
	for _, other := range u.Regulation.Policies {
		if other.ID != op.PolicyID {
			kept = append(kept, other)
		}
	}
	u.Regulation.Policies = kept
	changes = append(changes, userPolicyIDs(u))

	return domain.Result{Outcome: domain.OutcomeSuccess, Changes: changes, Touched: screen(u.ID)}
}

// EnablePolicy switches a policy on.
type EnablePolicy struct {
	UserID   string `json:"user_id"`
	PolicyID string `json:"policy_id"`
}

func (*EnablePolicy) Kind() string { return "enable_policy" }

func (op *EnablePolicy) Apply(s *domain.State, _ timing.DateTime) domain.Result {
	u, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	return setPolicyEnabled(u, p, true)
}

// DisablePolicy switches a policy off; refused while protected.
type DisablePolicy struct {
	UserID   string `json:"user_id"`
	PolicyID string `json:"policy_id"`
}

func (*DisablePolicy) Kind() string { return "disable_policy" }

func (op *DisablePolicy) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if p.IsProtected(now) {
		return domain.Reject(domain.OutcomeMayNotMakeRuleLessRestrictive)
	}
	return setPolicyEnabled(u, p, false)
}

// RenamePolicy changes the display name; allowed at any time.
type RenamePolicy struct {
	UserID   string `json:"user_id"`
	PolicyID string `json:"policy_id"`
	Name     string `json:"name"`
}

func (*RenamePolicy) Kind() string { return "rename_policy" }

func (op *RenamePolicy) Apply(s *domain.State, _ timing.DateTime) domain.Result {
	_, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if !ValidName(op.Name) {
		return domain.Reject(domain.OutcomeInvalidName)
	}
	p.Name = op.Name
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{domain.UpdateRow(domain.TablePolicies, p.ID, domain.Fields{
			domain.FieldName: p.Name,
		})},
	}
}

// IncrementProtector extends a countdown protector, up to the ceiling.
type IncrementProtector struct {
	UserID     string `json:"user_id"`
	PolicyID   string `json:"policy_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (*IncrementProtector) Kind() string { return "increment_protector" }

func (op *IncrementProtector) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if p.Protector.Kind != domain.EnablerForDuration || p.Protector.Countdown == nil {
		return domain.Reject(domain.OutcomeWrongEnablerType)
	}
	if outcome := extendCountdown(p.Protector.Countdown, timing.FromMilliseconds(op.DurationMs), now); outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	return protectorChanged(u, p)
}

// DecrementProtector shortens a countdown protector. Refused while the
// policy is enabled and the countdown still runs.
type DecrementProtector struct {
	UserID     string `json:"user_id"`
	PolicyID   string `json:"policy_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (*DecrementProtector) Kind() string { return "decrement_protector" }

func (op *DecrementProtector) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if p.Protector.Kind != domain.EnablerForDuration || p.Protector.Countdown == nil {
		return domain.Reject(domain.OutcomeWrongEnablerType)
	}
	if op.DurationMs <= 0 {
		return domain.Reject(domain.OutcomeInvalidArgument)
	}
	if p.IsEnabled(now) {
		return domain.Reject(domain.OutcomeWouldMakeRuleLessRestrictive)
	}
	if outcome := shortenCountdown(p.Protector.Countdown, timing.FromMilliseconds(op.DurationMs), now); outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	return protectorChanged(u, p)
}

// LockPolicy locks a password protector. A new password may only be set
// while the protector is unlocked.
type LockPolicy struct {
	UserID   string `json:"user_id"`
	PolicyID string `json:"policy_id"`
	Password string `json:"password,omitempty"`
}

func (*LockPolicy) Kind() string { return "lock_policy" }

func (op *LockPolicy) Apply(s *domain.State, _ timing.DateTime) domain.Result {
	u, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if p.Protector.Kind != domain.EnablerByPassword {
		return domain.Reject(domain.OutcomeWrongEnablerType)
	}
	if !p.Protector.Unlocked {
		if op.Password != "" {
			return domain.Reject(domain.OutcomeMayNotMakeRuleLessRestrictive)
		}
		return domain.Result{Outcome: domain.OutcomeSuccess}
	}
	if op.Password != "" {
		locked, outcome := EnablerSpec{Kind: domain.EnablerByPassword, Password: op.Password}.Build(timing.DateTime{})
		if outcome != domain.OutcomeSuccess {
			return domain.Reject(outcome)
		}
		p.Protector = locked
	}
	p.Protector.Unlocked = false
	return protectorChanged(u, p)
}

// UnlockPolicy unlocks a password protector when the password matches.
// Attempts are throttled per user.
type UnlockPolicy struct {
	UserID   string `json:"user_id"`
	PolicyID string `json:"policy_id"`
	Password string `json:"password"`
}

func (*UnlockPolicy) Kind() string { return "unlock_policy" }

func (op *UnlockPolicy) ThrottleKey() string { return "unlock:" + op.UserID }

func (op *UnlockPolicy) Apply(s *domain.State, _ timing.DateTime) domain.Result {
	u, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if p.Protector.Kind != domain.EnablerByPassword {
		return domain.Reject(domain.OutcomeWrongEnablerType)
	}
	if p.Protector.Unlocked {
		return domain.Result{Outcome: domain.OutcomeSuccess}
	}
	if !p.Protector.CheckPassword(op.Password) {
		return domain.Reject(domain.OutcomeWrongPassword)
	}
	p.Protector.Unlocked = true
	return protectorChanged(u, p)
}

func setPolicyEnabled(u *domain.User, p *domain.Policy, enabled bool) domain.Result {
	p.Enabled = enabled
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{domain.UpdateRow(domain.TablePolicies, p.ID, domain.Fields{
			domain.FieldEnabled: enabled,
		})},
		Touched: screen(u.ID),
	}
}

func protectorChanged(u *domain.User, p *domain.Policy) domain.Result {
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{domain.UpdateRow(domain.TablePolicies, p.ID, domain.Fields{
			domain.FieldProtector: p.Protector,
		})},
		Touched: screen(u.ID),
	}
}

func userPolicyIDs(u *domain.User) domain.Change {
	return domain.UpdateRow(domain.TableUsers, u.ID, domain.Fields{
		domain.FieldPolicyIDs: domain.PolicyIDs(&u.Regulation),
	})
}
