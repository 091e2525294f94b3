package policy

import (
	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// AddPolicyRule appends a rule to a policy. Adding a rule only ever makes a
// policy stricter, so it is allowed while protected.
type AddPolicyRule struct {
	UserID    string        `json:"user_id"`
	PolicyID  string        `json:"policy_id"`
	RuleID    string        `json:"rule_id,omitempty"`
	Activator ActivatorSpec `json:"activator"`
}

func (*AddPolicyRule) Kind() string { return "add_policy_rule" }

func (op *AddPolicyRule) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, p, outcome := lookupPolicy(s, op.UserID, op.PolicyID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if len(p.Rules) >= MaxRules {
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

	p.Rules = append(p.Rules, domain.Rule{ID: id, Activator: activator})
	r := &p.Rules[len(p.Rules)-1]
	return domain.Result{
		Outcome:   domain.OutcomeSuccess,
		CreatedID: id,
		Changes: []domain.Change{
			domain.AddRow(domain.TableRules, id, domain.RuleFields(p.ID, r)),
			policyRuleIDs(p),
		},
		Touched: screen(u.ID),
	}
}

// DeletePolicyRule removes a rule; refused while the policy is protected.
type DeletePolicyRule struct {
	UserID   string `json:"user_id"`
	PolicyID string `json:"policy_id"`
	RuleID   string `json:"rule_id"`
}

func (*DeletePolicyRule) Kind() string { return "delete_policy_rule" }

func (op *DeletePolicyRule) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, p, _, outcome := lookupPolicyRule(s, op.UserID, op.PolicyID, op.RuleID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if p.IsProtected(now) {
		return domain.Reject(domain.OutcomeMayNotDeleteWhileEnabled)
	}
	p.Rules = removeRule(p.Rules, op.RuleID)
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{
			domain.DeleteRow(domain.TableRules, op.RuleID),
			policyRuleIDs(p),
		},
		Touched: screen(u.ID),
	}
}

// ChangePolicyRuleActivator replaces the parameters of a rule's activator.
type ChangePolicyRuleActivator struct {
	UserID    string        `json:"user_id"`
	PolicyID  string        `json:"policy_id"`
	RuleID    string        `json:"rule_id"`
	Activator ActivatorSpec `json:"activator"`
}

func (*ChangePolicyRuleActivator) Kind() string { return "change_policy_rule_activator" }

func (op *ChangePolicyRuleActivator) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, p, r, outcome := lookupPolicyRule(s, op.UserID, op.PolicyID, op.RuleID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	next, outcome := op.Activator.Build(now)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if outcome := guardActivatorChange(&r.Activator, &next, p.IsProtected(now), now); outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	r.Activator = next
	return activatorChanged(r, screen(u.ID))
}

func resolveRuleID(s *domain.State, provided string) (string, domain.Outcome) {
	id, outcome := resolveID(provided, s.HasRule)
	if outcome == domain.OutcomeIDUnavailable {
		return "", domain.OutcomeProvidedIDIsUsedByAnotherRule
	}
	return id, outcome
}

func activatorChanged(r *domain.Rule, touched []domain.AccountRef) domain.Result {
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{domain.UpdateRow(domain.TableRules, r.ID, domain.Fields{
			domain.FieldActivator: r.Activator,
		})},
		Touched: touched,
	}
}

func policyRuleIDs(p *domain.Policy) domain.Change {
	return domain.UpdateRow(domain.TablePolicies, p.ID, domain.Fields{
		domain.FieldRuleIDs: domain.RuleIDs(p.Rules),
	})
}
