// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no infrastructure imports.
package domain

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// ActivatorKind identifies the variant of an Activator.
type ActivatorKind string

const (
	ActivatorAlwaysOn          ActivatorKind = "always_on"
	ActivatorAtWeekday         ActivatorKind = "at_weekday"
	ActivatorNotAtWeekday      ActivatorKind = "not_at_weekday"
	ActivatorAtHour            ActivatorKind = "at_hour"
	ActivatorNotAtHour         ActivatorKind = "not_at_hour"
	ActivatorInTimeRange       ActivatorKind = "in_time_range"
	ActivatorNotInTimeRange    ActivatorKind = "not_in_time_range"
	ActivatorInWeekdayRange    ActivatorKind = "in_weekday_range"
	ActivatorNotInWeekdayRange ActivatorKind = "not_in_weekday_range"
	ActivatorForDuration       ActivatorKind = "for_duration"
)

// Activator decides whether a rule's trigger condition holds at a given
// instant. Only the field matching Kind is meaningful.
type Activator struct {
	Kind         ActivatorKind
	Weekday      timing.Weekday
	Hour         uint8
	TimeRange    timing.TimeRange
	WeekdayRange timing.WeekdayRange
	Countdown    *timing.CountdownTimer
}

func AlwaysOn() Activator { return Activator{Kind: ActivatorAlwaysOn} }

func AtWeekday(w timing.Weekday) Activator {
	return Activator{Kind: ActivatorAtWeekday, Weekday: w}
}

func NotAtWeekday(w timing.Weekday) Activator {
	return Activator{Kind: ActivatorNotAtWeekday, Weekday: w}
}

func AtHour(h uint8) Activator { return Activator{Kind: ActivatorAtHour, Hour: h} }

func NotAtHour(h uint8) Activator { return Activator{Kind: ActivatorNotAtHour, Hour: h} }

func InTimeRange(r timing.TimeRange) Activator {
	return Activator{Kind: ActivatorInTimeRange, TimeRange: r}
}

func NotInTimeRange(r timing.TimeRange) Activator {
	return Activator{Kind: ActivatorNotInTimeRange, TimeRange: r}
}

func InWeekdayRange(r timing.WeekdayRange) Activator {
	return Activator{Kind: ActivatorInWeekdayRange, WeekdayRange: r}
}

func NotInWeekdayRange(r timing.WeekdayRange) Activator {
	return Activator{Kind: ActivatorNotInWeekdayRange, WeekdayRange: r}
}

// ActivateForDuration returns an activator that holds until d has elapsed from now.
func ActivateForDuration(d timing.Duration, now timing.DateTime) Activator {
	return Activator{Kind: ActivatorForDuration, Countdown: timing.NewCountdownTimer(d, now)}
}

// IsEffective reports whether the condition holds at now. The countdown
// variant synchronizes its timer as a side effect.
func (a *Activator) IsEffective(now timing.DateTime) bool {
	switch a.Kind {
	case ActivatorAlwaysOn:
		return true
	case ActivatorAtWeekday:
		return now.Weekday() == a.Weekday
	case ActivatorNotAtWeekday:
		return now.Weekday() != a.Weekday
	case ActivatorAtHour:
		return now.Hour() == a.Hour
	case ActivatorNotAtHour:
		return now.Hour() != a.Hour
	case ActivatorInTimeRange:
		return a.TimeRange.Contains(now.TimeOfDay())
	case ActivatorNotInTimeRange:
		return !a.TimeRange.Contains(now.TimeOfDay())
	case ActivatorInWeekdayRange:
		return a.WeekdayRange.ContainsWeekday(now.Weekday())
	case ActivatorNotInWeekdayRange:
		return !a.WeekdayRange.ContainsWeekday(now.Weekday())
	case ActivatorForDuration:
		if a.Countdown == nil {
			return false
		}
		a.Countdown.Synchronize(now)
		return a.Countdown.IsRunning()
	}
	return false
}

// Valid reports whether the activator is a known variant with in-range values.
func (a Activator) Valid() bool {
	switch a.Kind {
	case ActivatorAlwaysOn, ActivatorInTimeRange, ActivatorNotInTimeRange,
		ActivatorInWeekdayRange, ActivatorNotInWeekdayRange:
		return true
	case ActivatorAtWeekday, ActivatorNotAtWeekday:
		return a.Weekday.Valid()
	case ActivatorAtHour, ActivatorNotAtHour:
		return a.Hour < 24
	case ActivatorForDuration:
		return a.Countdown != nil
	}
	return false
}

// Clone returns a deep copy.
func (a Activator) Clone() Activator {
	a.Countdown = a.Countdown.Clone()
	return a
}

// EnablerKind identifies the variant of an Enabler.
type EnablerKind string

const (
	EnablerForDuration EnablerKind = "for_duration"
	EnablerByPassword  EnablerKind = "by_password"
)

// Enabler guards a policy or rule. While it is effective the guarded entity
// is protected and may only be made more restrictive.
//
// A countdown enabler is effective while its timer runs. A password enabler
// is effective while it is locked; unlocking requires the password.
type Enabler struct {
	Kind         EnablerKind
	Countdown    *timing.CountdownTimer
	PasswordHash string
	Unlocked     bool
}

// Protector is the enabler guarding a whole policy.
type Protector = Enabler

// EnableForDuration returns a countdown enabler running from now.
func EnableForDuration(d timing.Duration, now timing.DateTime) Enabler {
	return Enabler{Kind: EnablerForDuration, Countdown: timing.NewCountdownTimer(d, now)}
}

// EnableByPassword returns a locked password enabler storing only the bcrypt
// hash of password.
func EnableByPassword(password string, cost int) (Enabler, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return Enabler{}, err
	}
	return Enabler{Kind: EnablerByPassword, PasswordHash: string(hash)}, nil
}

// IsEffective reports whether the enabler currently protects its entity.
func (e *Enabler) IsEffective(now timing.DateTime) bool {
	switch e.Kind {
	case EnablerForDuration:
		if e.Countdown == nil {
			return false
		}
		e.Countdown.Synchronize(now)
		return e.Countdown.IsRunning()
	case EnablerByPassword:
		return !e.Unlocked
	}
	return false
}

// CheckPassword reports whether password matches the stored hash.
func (e *Enabler) CheckPassword(password string) bool {
	if e.Kind != EnablerByPassword || e.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(password)) == nil
}

func (e Enabler) Clone() Enabler {
	e.Countdown = e.Countdown.Clone()
	return e
}

// Rule pairs an activator with an optional enabler of its own.
type Rule struct {
	ID        string
	Activator Activator
	Enabler   *Enabler
}

// IsEffective is true when the activator holds and the enabler, if any, is
// effective too.
func (r *Rule) IsEffective(now timing.DateTime) bool {
	if !r.Activator.IsEffective(now) {
		return false
	}
	return r.Enabler == nil || r.Enabler.IsEffective(now)
}

// IsProtected reports whether the rule's own enabler is effective.
func (r *Rule) IsProtected(now timing.DateTime) bool {
	return r.Enabler != nil && r.Enabler.IsEffective(now)
}

func (r Rule) Clone() Rule {
	r.Activator = r.Activator.Clone()
	if r.Enabler != nil {
		e := r.Enabler.Clone()
		r.Enabler = &e
	}
	return r
}

// Policy is a named, protected, ordered collection of rules.
type Policy struct {
	ID        string
	Name      string
	Enabled   bool
	Protector Protector
	Rules     []Rule
}

// IsEnabled is true when the policy is switched on and its protector is
// still effective.
func (p *Policy) IsEnabled(now timing.DateTime) bool {
	return p.Enabled && p.Protector.IsEffective(now)
}

// IsProtected reports whether the protector forbids weakening the policy.
func (p *Policy) IsProtected(now timing.DateTime) bool {
	return p.Protector.IsEffective(now)
}

// FindRule returns the index of the rule with id, or -1.
func (p *Policy) FindRule(id string) int {
	return findRule(p.Rules, id)
}

func (p Policy) Clone() Policy {
	p.Protector = p.Protector.Clone()
	p.Rules = cloneRules(p.Rules)
	return p
}

// Regulation is the per-account aggregate deciding screen access.
type Regulation struct {
	Policies        []Policy
	ApplyingEnabled bool
	BlockState      BlockState
}

// CalculateAction returns Block iff some enabled policy has an effective rule.
func (r *Regulation) CalculateAction(now timing.DateTime) Action {
	for i := range r.Policies {
		p := &r.Policies[i]
		if !p.IsEnabled(now) {
			continue
		}
		for j := range p.Rules {
			if p.Rules[j].IsEffective(now) {
				return ActionBlock
			}
		}
	}
	return ActionAllow
}

// IsProtected reports whether any policy is protected.
func (r *Regulation) IsProtected(now timing.DateTime) bool {
	for i := range r.Policies {
		if r.Policies[i].IsProtected(now) {
			return true
		}
	}
	return false
}

// FindPolicy returns the index of the policy with id, or -1.
func (r *Regulation) FindPolicy(id string) int {
	for i := range r.Policies {
		if r.Policies[i].ID == id {
			return i
		}
	}
	return -1
}

func (r Regulation) Clone() Regulation {
	policies := make([]Policy, len(r.Policies))
	for i := range r.Policies {
		policies[i] = r.Policies[i].Clone()
	}
	r.Policies = policies
	return r
}

// User is an OS account whose screen access is regulated. Password is the
// account's real password, restored whenever access is allowed.
type User struct {
	ID         string
	Username   string
	Password   string
	Regulation Regulation
}

func (u User) Clone() User {
	u.Regulation = u.Regulation.Clone()
	return u
}

// NetworkEnforcer regulates the network access of one OS account. Its rules
// carry their own enablers instead of a policy layer.
type NetworkEnforcer struct {
	ID         string
	OSUserID   uint32
	Username   string
	Rules      []Rule
	Enabled    bool
	BlockState BlockState
}

// CalculateAction returns Block iff the enforcer is enabled and some rule is effective.
func (n *NetworkEnforcer) CalculateAction(now timing.DateTime) Action {
	if !n.Enabled {
		return ActionAllow
	}
	for i := range n.Rules {
		if n.Rules[i].IsEffective(now) {
			return ActionBlock
		}
	}
	return ActionAllow
}

// IsProtected reports whether any rule is protected.
func (n *NetworkEnforcer) IsProtected(now timing.DateTime) bool {
	for i := range n.Rules {
		if n.Rules[i].IsProtected(now) {
			return true
		}
	}
	return false
}

// FindRule returns the index of the rule with id, or -1.
func (n *NetworkEnforcer) FindRule(id string) int {
	return findRule(n.Rules, id)
}

func (n NetworkEnforcer) Clone() NetworkEnforcer {
	n.Rules = cloneRules(n.Rules)
	return n
}

// State is everything one daemon regulates, keyed by id.
type State struct {
	Users     map[string]*User
	Enforcers map[string]*NetworkEnforcer
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Users:     make(map[string]*User),
		Enforcers: make(map[string]*NetworkEnforcer),
	}
}

// Clone returns a deep copy that shares nothing with s.
func (s *State) Clone() *State {
	cp := NewState()
	for id, u := range s.Users {
		c := u.Clone()
		cp.Users[id] = &c
	}
	for id, n := range s.Enforcers {
		c := n.Clone()
		cp.Enforcers[id] = &c
	}
	return cp
}

// FindPolicy locates a policy by id across all users.
func (s *State) FindPolicy(id string) (*User, int) {
	for _, u := range s.Users {
		if i := u.Regulation.FindPolicy(id); i >= 0 {
			return u, i
		}
	}
	return nil, -1
}

// HasRule reports whether any policy or enforcer owns a rule with id.
func (s *State) HasRule(id string) bool {
	for _, u := range s.Users {
		for i := range u.Regulation.Policies {
			if u.Regulation.Policies[i].FindRule(id) >= 0 {
				return true
			}
		}
	}
	for _, n := range s.Enforcers {
		if n.FindRule(id) >= 0 {
			return true
		}
	}
	return false
}

// UserByName returns the user regulating username, if any.
func (s *State) UserByName(username string) *User {
	for _, u := range s.Users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

// EnforcerByOSUser returns the enforcer regulating uid, if any.
func (s *State) EnforcerByOSUser(uid uint32) *NetworkEnforcer {
	for _, n := range s.Enforcers {
		if n.OSUserID == uid {
			return n
		}
	}
	return nil
}

func findRule(rules []Rule, id string) int {
	for i := range rules {
		if rules[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}
	out := make([]Rule, len(rules))
	for i := range rules {
		out[i] = rules[i].Clone()
	}
	return out
}
