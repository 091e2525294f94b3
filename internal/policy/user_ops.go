package policy

import (
	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// CreateUser starts regulating the screen access of an OS account. Password
// is the account's real password, restored whenever access is allowed.
type CreateUser struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (*CreateUser) Kind() string { return "create_user" }

func (op *CreateUser) Apply(s *domain.State, _ timing.DateTime) domain.Result {
	if !ValidUsername(op.Username) {
		return domain.Reject(domain.OutcomeInvalidName)
	}
	if op.Password == "" {
		return domain.Reject(domain.OutcomeInvalidArgument)
	}
	if s.UserByName(op.Username) != nil {
		return domain.Reject(domain.OutcomeIDUnavailable)
	}
	id, outcome := resolveID(op.ID, func(id string) bool {
		_, taken := s.Users[id]
		return taken
	})
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}

	u := &domain.User{
		ID:       id,
		Username: op.Username,
		Password: op.Password,
		Regulation: domain.Regulation{
			ApplyingEnabled: true,
			BlockState:      domain.BlockStateUnknown,
		},
	}
	s.Users[id] = u
	return domain.Result{
		Outcome:   domain.OutcomeSuccess,
		CreatedID: id,
		Changes:   []domain.Change{domain.AddRow(domain.TableUsers, id, domain.UserFields(u))},
		Touched:   screen(id),
	}
}

// DeleteUser stops regulating an account. Its real password is restored first.
type DeleteUser struct {
	UserID string `json:"user_id"`
}

func (*DeleteUser) Kind() string { return "delete_user" }

func (op *DeleteUser) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, outcome := lookupUser(s, op.UserID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if u.Regulation.IsProtected(now) {
		return domain.Reject(domain.OutcomeMayNotDeleteWhileEnabled)
	}

	var changes []domain.Change
	for _, p := range u.Regulation.Policies {
		for _, r := range p.Rules {
			changes = append(changes, domain.DeleteRow(domain.TableRules, r.ID))
		}
		changes = append(changes, domain.DeleteRow(domain.TablePolicies, p.ID))
	}
	changes = append(changes, domain.DeleteRow(domain.TableUsers, u.ID))
	delete(s.Users, u.ID)

	return domain.Result{
		Outcome:  domain.OutcomeSuccess,
		Changes:  changes,
		Released: screen(op.UserID),
	}
}

// EnableApplying turns on enforcement of a user's regulation.
type EnableApplying struct {
	UserID string `json:"user_id"`
}

func (*EnableApplying) Kind() string { return "enable_applying" }

func (op *EnableApplying) Apply(s *domain.State, _ timing.DateTime) domain.Result {
	u, outcome := lookupUser(s, op.UserID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	return setApplying(u, true)
}

// DisableApplying turns off enforcement; refused while any policy is protected.
type DisableApplying struct {
	UserID string `json:"user_id"`
}

func (*DisableApplying) Kind() string { return "disable_applying" }

func (op *DisableApplying) Apply(s *domain.State, now timing.DateTime) domain.Result {
	u, outcome := lookupUser(s, op.UserID)
	if outcome != domain.OutcomeSuccess {
		return domain.Reject(outcome)
	}
	if u.Regulation.IsProtected(now) {
		return domain.Reject(domain.OutcomeMayNotMakeRuleLessRestrictive)
	}
	return setApplying(u, false)
}

func setApplying(u *domain.User, enabled bool) domain.Result {
	u.Regulation.ApplyingEnabled = enabled
	return domain.Result{
		Outcome: domain.OutcomeSuccess,
		Changes: []domain.Change{domain.UpdateRow(domain.TableUsers, u.ID, domain.Fields{
			domain.FieldApplyingEnabled: enabled,
		})},
		Touched: screen(u.ID),
	}
}
