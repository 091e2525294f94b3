package usecase

import (
	"sort"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// EnablerView is the externally visible state of an enabler. Password
// hashes never leave the service.
type EnablerView struct {
	Kind        domain.EnablerKind `json:"kind"`
	Effective   bool               `json:"effective"`
	RemainingMs int64              `json:"remaining_ms,omitempty"`
	Unlocked    bool               `json:"unlocked,omitempty"`
}

type RuleView struct {
	ID        string           `json:"id"`
	Activator domain.Activator `json:"activator"`
	Effective bool             `json:"effective"`
	Protected bool             `json:"protected"`
	Enabler   *EnablerView     `json:"enabler,omitempty"`
}

type PolicyView struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Enabled   bool        `json:"enabled"`
	IsEnabled bool        `json:"is_enabled"`
	Protected bool        `json:"protected"`
	Protector EnablerView `json:"protector"`
	Rules     []RuleView  `json:"rules"`
}

type UserView struct {
	ID              string            `json:"id"`
	Username        string            `json:"username"`
	ApplyingEnabled bool              `json:"applying_enabled"`
	BlockState      domain.BlockState `json:"block_state"`
	Action          domain.Action     `json:"action"`
	Policies        []PolicyView      `json:"policies"`
}

type EnforcerView struct {
	ID         string            `json:"id"`
	OSUserID   uint32            `json:"os_user_id"`
	Username   string            `json:"username"`
	Enabled    bool              `json:"enabled"`
	Protected  bool              `json:"protected"`
	BlockState domain.BlockState `json:"block_state"`
	Action     domain.Action     `json:"action"`
	Rules      []RuleView        `json:"rules"`
}

// Users returns every user evaluated at the current time, ordered by username.
func (s *Service) Users() []UserView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	views := make([]UserView, 0, len(s.state.Users))
	for _, u := range s.state.Users {
		views = append(views, userView(u, now))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Username < views[j].Username })
	return views
}

// User returns one user view.
func (s *Service) User(id string) (UserView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.Users[id]
	if !ok {
		return UserView{}, false
	}
	return userView(u, s.clock.Now()), true
}

// Enforcers returns every network enforcer ordered by OS user id.
func (s *Service) Enforcers() []EnforcerView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	views := make([]EnforcerView, 0, len(s.state.Enforcers))
	for _, n := range s.state.Enforcers {
		views = append(views, enforcerView(n, now))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].OSUserID < views[j].OSUserID })
	return views
}

// Enforcer returns one enforcer view.
func (s *Service) Enforcer(id string) (EnforcerView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.state.Enforcers[id]
	if !ok {
		return EnforcerView{}, false
	}
	return enforcerView(n, s.clock.Now()), true
}

// Views evaluate a copy so that reading never advances stored countdowns.
func userView(orig *domain.User, now timing.DateTime) UserView {
	u := orig.Clone()
	v := UserView{
		ID:              u.ID,
		Username:        u.Username,
		ApplyingEnabled: u.Regulation.ApplyingEnabled,
		BlockState:      u.Regulation.BlockState,
		Action:          u.Regulation.CalculateAction(now),
		Policies:        make([]PolicyView, 0, len(u.Regulation.Policies)),
	}
	for i := range u.Regulation.Policies {
		p := &u.Regulation.Policies[i]
		v.Policies = append(v.Policies, PolicyView{
			ID:        p.ID,
			Name:      p.Name,
			Enabled:   p.Enabled,
			IsEnabled: p.IsEnabled(now),
			Protected: p.IsProtected(now),
			Protector: enablerView(&p.Protector, now),
			Rules:     ruleViews(p.Rules, now),
		})
	}
	return v
}

func enforcerView(orig *domain.NetworkEnforcer, now timing.DateTime) EnforcerView {
	n := orig.Clone()
	return EnforcerView{
		ID:         n.ID,
		OSUserID:   n.OSUserID,
		Username:   n.Username,
		Enabled:    n.Enabled,
		Protected:  n.IsProtected(now),
		BlockState: n.BlockState,
		Action:     n.CalculateAction(now),
		Rules:      ruleViews(n.Rules, now),
	}
}

func ruleViews(rules []domain.Rule, now timing.DateTime) []RuleView {
	views := make([]RuleView, 0, len(rules))
	for i := range rules {
		r := &rules[i]
		v := RuleView{
			ID:        r.ID,
			Activator: r.Activator,
			Effective: r.IsEffective(now),
			Protected: r.IsProtected(now),
		}
		if r.Enabler != nil {
			ev := enablerView(r.Enabler, now)
			v.Enabler = &ev
		}
		views = append(views, v)
	}
	return views
}

func enablerView(e *domain.Enabler, now timing.DateTime) EnablerView {
	v := EnablerView{
		Kind:      e.Kind,
		Effective: e.IsEffective(now),
		Unlocked:  e.Unlocked,
	}
	if e.Countdown != nil {
		v.RemainingMs = e.Countdown.RemainingDuration().Milliseconds()
	}
	return v
}
