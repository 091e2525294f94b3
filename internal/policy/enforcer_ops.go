package policy

import (
	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// CreateEnforcer starts regulating the network access of an OS account.
type CreateEnforcer struct {
	ID       string  `json:"id,omitempty"`
	OSUserID *uint32 `json:"os_user_id"`
	Username string  `json:"username"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

func (*CreateEnforcer) Kind() string { return "create_enforcer" }

func (op *CreateEnforcer) Apply(s *domain.State, _ timing.DateTime) domain.Result {
	if !ValidUsername(op.Username) {
		return domain.Reject(domain.OutcomeInvalidName)
	}
	if op.OSUserID == nil {
		return domain.Reject(domain.OutcomeInvalidArgument)
	}
	if s.EnforcerByOSUser(*op.OSUserID) != nil {
		return domain.Reject(domain.OutcomeIDUnavailable)
	}
	id, outcome := resolveID(op.ID, func(id string) bool {
		_, taken := s.Enforcers[id]
		return taken
	})
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}

	n := &domain.NetworkEnforcer{
		ID:         id,
		OSUserID:   *op.OSUserID,
		Username:   op.Username,
		Enabled:    op.Enabled == nil || *op.Enabled,
		BlockState: domain.BlockStateUnknown,
	}
	s.Enforcers[id] = n
	return domain.Result{
		Outcome:   domain.OutcomeSuccess,
		CreatedID: id,
		Changes:   []domain.Change{domain.AddRow(domain.TableEnforcers, id, domain.EnforcerFields(n))},
		Touched:   network(id),
	}
}

// DeleteEnforcer removes an enforcer and its rules; refused while any rule is protected.
type DeleteEnforcer struct {
	EnforcerID string `json:"enforcer_id"`
}

func (*DeleteEnforcer) Kind() string { return "delete_enforcer" }

func (op *DeleteEnforcer) Apply(s *domain.State, now timing.DateTime) domain.Result {
	n, outcome := lookupEnforcer(s, op.EnforcerID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if n.IsProtected(now) {
		return domain.Reject(domain.OutcomeMayNotDeleteWhileEnabled)
	}

	changes := make([]domain.Change, 0, len(n.Rules)+1)
	for _, r := range n.Rules {
		changes = append(changes, domain.DeleteRow(domain.TableRules, r.ID))
	}
	changes = append(changes, domain.DeleteRow(domain.TableEnforcers, n.ID))
	delete(s.Enforcers, n.ID)

	return domain.Result{
		Outcome:  domain.OutcomeSuccess,
		Changes:  changes,
		Released: network(op.EnforcerID),
	}
}

// EnableEnforcer switches an enforcer on.
type EnableEnforcer struct {
	EnforcerID string `json:"enforcer_id"`
}

func (*EnableEnforcer) Kind() string { return "enable_enforcer" }

func (op *EnableEnforcer) Apply(s *domain.State, _ timing.DateTime) domain.Result {
	n, outcome := lookupEnforcer(s, op.EnforcerID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	return setEnforcerEnabled(n, true)
}

// DisableEnforcer switches an enforcer off; refused while any rule is protected.
type DisableEnforcer struct {
	EnforcerID string `json:"enforcer_id"`
}

func (*DisableEnforcer) Kind() string { return "disable_enforcer" }

func (op *DisableEnforcer) Apply(s *domain.State, now timing.DateTime) domain.Result {
	n, outcome := lookupEnforcer(s, op.EnforcerID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if n.IsProtected(now) {
		return domain.Reject(domain.OutcomeMayNotMakeRuleLessRestrictive)
	}
	return setEnforcerEnabled(n, false)
}

// AddEnforcerRule appends a rule with an optional countdown enabler.
type AddEnforcerRule struct {
	EnforcerID string        `json:"enforcer_id"`
	RuleID     string        `json:"rule_id,omitempty"`
	Activator  ActivatorSpec `json:"activator"`
	Enabler    *EnablerSpec  `json:"enabler,omitempty"`
}

func (*AddEnforcerRule) Kind() string { return "add_enforcer_rule" }

func (op *AddEnforcerRule) Apply(s *domain.State, now timing.DateTime) domain.Result {
	n, outcome := lookupEnforcer(s, op.EnforcerID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if len(n.Rules) >= MaxRules {
		return domain.Reject(domain.OutcomeTooManyRules)
	}
	id, outcome := resolveRuleID(s, op.RuleID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	activator, outcome := op.Activator.Build(now)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	rule := domain.Rule{ID: id, Activator: activator}
	if op.Enabler != nil {
		// Rule enablers have no unlock operation, so only countdowns are accepted.
		if op.Enabler.Kind != domain.EnablerForDuration {
			return domain.Reject(domain.OutcomeWrongEnablerType)
		}
		enabler, outcome := op.Enabler.Build(now)
		if outcome != domain.OutcomeSuccess {
			return domain.Reject(outcome)
		}
		rule.Enabler = &enabler
	}

	n.Rules = append(n.Rules, rule)
	r := &n.Rules[len(n.Rules)-1]
	return domain.Result{
		Outcome:   domain.OutcomeSuccess,
		CreatedID: id,
		Changes: []domain.Change{
			domain.AddRow(domain.TableRules, id, domain.RuleFields(n.ID, r)),
			enforcerRuleIDs(n),
		},
		Touched: network(n.ID),
	}
}

// DeleteEnforcerRule removes a rule; refused while the rule is protected.
type DeleteEnforcerRule struct {
	EnforcerID string `json:"enforcer_id"`
	RuleID     string `json:"rule_id"`
}

func (*DeleteEnforcerRule) Kind() string { return "delete_enforcer_rule" }

func (op *DeleteEnforcerRule) Apply(s *domain.State, now timing.DateTime) domain.Result {
	n, r, outcome := lookupEnforcerRule(s, op.EnforcerID, op.RuleID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if r.IsProtected(now) {
		return domain.Reject(domain.OutcomeMayNotDeleteWhileEnabled)
	}
	n.Rules = removeRule(n.Rules, op.RuleID)
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{
			domain.DeleteRow(domain.TableRules, op.RuleID),
			enforcerRuleIDs(n),
		},
		Touched: network(n.ID),
	}
}

// ChangeEnforcerRuleActivator replaces the parameters of a rule's activator.
type ChangeEnforcerRuleActivator struct {
	EnforcerID string        `json:"enforcer_id"`
	RuleID     string        `json:"rule_id"`
	Activator  ActivatorSpec `json:"activator"`
}

func (*ChangeEnforcerRuleActivator) Kind() string { return "change_enforcer_rule_activator" }

func (op *ChangeEnforcerRuleActivator) Apply(s *domain.State, now timing.DateTime) domain.Result {
	n, r, outcome := lookupEnforcerRule(s, op.EnforcerID, op.RuleID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	next, outcome := op.Activator.Build(now)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if outcome := guardActivatorChange(&r.Activator, &next, r.IsProtected(now), now); outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	r.Activator = next
	return activatorChanged(r, network(n.ID))
}

// IncrementRuleEnabler extends a rule's countdown enabler, up to the ceiling.
type IncrementRuleEnabler struct {
	EnforcerID string `json:"enforcer_id"`
	RuleID     string `json:"rule_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (*IncrementRuleEnabler) Kind() string { return "increment_rule_enabler" }

func (op *IncrementRuleEnabler) Apply(s *domain.State, now timing.DateTime) domain.Result {
	n, r, outcome := lookupEnforcerRule(s, op.EnforcerID, op.RuleID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if !hasCountdownEnabler(r) {
		return domain.Reject(domain.OutcomeWrongEnablerType)
	}
	if outcome := extendCountdown(r.Enabler.Countdown, timing.FromMilliseconds(op.DurationMs), now); outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	return enablerChanged(n, r)
}

// DecrementRuleEnabler shortens a rule's countdown enabler. Refused while the
// enforcer is enabled and the countdown still runs.
type DecrementRuleEnabler struct {
	EnforcerID string `json:"enforcer_id"`
	RuleID     string `json:"rule_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (*DecrementRuleEnabler) Kind() string { return "decrement_rule_enabler" }

func (op *DecrementRuleEnabler) Apply(s *domain.State, now timing.DateTime) domain.Result {
	n, r, outcome := lookupEnforcerRule(s, op.EnforcerID, op.RuleID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if !hasCountdownEnabler(r) {
		return domain.Reject(domain.OutcomeWrongEnablerType)
	}
	if op.DurationMs <= 0 {
		return domain.Reject(domain.OutcomeInvalidArgument)
	}
	if n.Enabled && r.IsProtected(now) {
		return domain.Reject(domain.OutcomeWouldMakeRuleLessRestrictive)
	}
	if outcome := shortenCountdown(r.Enabler.Countdown, timing.FromMilliseconds(op.DurationMs), now); outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	return enablerChanged(n, r)
}

func hasCountdownEnabler(r *domain.Rule) bool {
	return r.Enabler != nil && r.Enabler.Kind == domain.EnablerForDuration && r.Enabler.Countdown != nil
}

func setEnforcerEnabled(n *domain.NetworkEnforcer, enabled bool) domain.Result {
	n.Enabled = enabled
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{domain.UpdateRow(domain.TableEnforcers, n.ID, domain.Fields{
			domain.FieldEnabled: enabled,
		})},
		Touched: network(n.ID),
	}
}

func enablerChanged(n *domain.NetworkEnforcer, r *domain.Rule) domain.Result {
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{domain.UpdateRow(domain.TableRules, r.ID, domain.Fields{
			domain.FieldEnabler: r.Enabler,
		})},
		Touched: network(n.ID),
	}
}

func enforcerRuleIDs(n *domain.NetworkEnforcer) domain.Change {
	return domain.UpdateRow(domain.TableEnforcers, n.ID, domain.Fields{
		domain.FieldRuleIDs: domain.RuleIDs(n.Rules),
	})
}
