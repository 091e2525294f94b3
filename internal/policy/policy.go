// Package policy implements the guarded operations on users, policies, rules
// and network enforcers. Each operation is a value decoded from JSON that
// checks every guard before it mutates the state it is applied to.
package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// Capacity and sanity limits.
const (
	MaxPolicies          = 5
	MaxRules             = 10
	MinNameLength        = 3
	MaxNameLength        = 25
	MaxIDLength          = 64
	MaxEffectiveDuration = 3 * timing.Week
)

// Operation is one guarded mutation.
//
// Apply runs every guard before touching state, so a rejected operation
// leaves state unchanged. Callers apply operations to a clone and only keep
// it when the returned outcome is Success and the changes were persisted.
type Operation interface {
	// Kind returns the identifier the transport uses to look the operation up.
	Kind() string

	// Apply mutates state and reports the outcome with the row changes.
	Apply(state *domain.State, now timing.DateTime) domain.Result
}

// Throttled operations are rate limited per key by the caller.
type Throttled interface {
	ThrottleKey() string
}

var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// ValidName reports whether name is an acceptable policy name.
func ValidName(name string) bool {
	if strings.TrimSpace(name) != name {
		return false
	}
	n := utf8.RuneCountInString(name)
	return n >= MinNameLength && n <= MaxNameLength
}

// ValidUsername reports whether name is a plausible OS account name.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// resolveID returns provided when it is free, or a fresh UUID when it is empty.
func resolveID(provided string, taken func(string) bool) (string, domain.Outcome) {
	if provided == "" {
		return uuid.NewString(), domain.OutcomeSuccess
	}
	if len(provided) > MaxIDLength || strings.ContainsAny(provided, " \t\r\n") {
		return "", domain.OutcomeInvalidArgument
	}
	if taken(provided) {
		return "", domain.OutcomeIDUnavailable
	}
	return provided, domain.OutcomeSuccess
}

func checkDuration(d timing.Duration) domain.Outcome {
	if d <= 0 {
		return domain.OutcomeInvalidArgument
	}
	if d > MaxEffectiveDuration {
		return domain.OutcomeWouldBeEffectiveForTooLong
	}
	return domain.OutcomeSuccess
}

func lookupUser(s *domain.State, id string) (*domain.User, domain.Outcome) {
	u, ok := s.Users[id]
	if !ok {
		return nil, domain.OutcomeNoSuchUser
	}
	return u, domain.OutcomeSuccess
}

func lookupPolicy(s *domain.State, userID, policyID string) (*domain.User, *domain.Policy, domain.Outcome) {
	u, outcome := lookupUser(s, userID)
	if outcome != domain.OutcomeSuccess {
		return nil, nil, outcome
	}
	i := u.Regulation.FindPolicy(policyID)
	if i < 0 {
		return nil, nil, domain.OutcomeNoSuchPolicy
	}
	return u, &u.Regulation.Policies[i], domain.OutcomeSuccess
}

func lookupPolicyRule(s *domain.State, userID, policyID, ruleID string) (*domain.User, *domain.Policy, *domain.Rule, domain.Outcome) {
	u, p, outcome := lookupPolicy(s, userID, policyID)
	if outcome != domain.OutcomeSuccess {
		return nil, nil, nil, outcome
	}
	i := p.FindRule(ruleID)
	if i < 0 {
		return nil, nil, nil, domain.OutcomeNoSuchRule
	}
	return u, p, &p.Rules[i], domain.OutcomeSuccess
}

func lookupEnforcer(s *domain.State, id string) (*domain.NetworkEnforcer, domain.Outcome) {
	n, ok := s.Enforcers[id]
	if !ok {
		return nil, domain.OutcomeNoSuchEnforcer
	}
	return n, domain.OutcomeSuccess
}

func lookupEnforcerRule(s *domain.State, enforcerID, ruleID string) (*domain.NetworkEnforcer, *domain.Rule, domain.Outcome) {
	n, outcome := lookupEnforcer(s, enforcerID)
	if outcome != domain.OutcomeSuccess {
		return nil, nil, outcome
	}
	i := n.FindRule(ruleID)
	if i < 0 {
		return nil, nil, domain.OutcomeNoSuchRule
	}
	return n, &n.Rules[i], domain.OutcomeSuccess
}

func removeRule(rules []domain.Rule, id string) []domain.Rule {
	out := rules[:0]
	for _, r := range rules {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func screen(userID string) []domain.AccountRef {
	return []domain.AccountRef{{Kind: domain.AccountScreen, ID: userID}}
}

func network(enforcerID string) []domain.AccountRef {
	return []domain.AccountRef{{Kind: domain.AccountNetwork, ID: enforcerID}}
}
