package domain

import (
	"encoding/json"
	"fmt"

	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// Column names shared by the store rows.
const (
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldApplyingEnabled = "applying_enabled"
	FieldBlockState      = "block_state"
	FieldPolicyIDs       = "policy_ids"
	FieldUserID          = "user_id"
	FieldName            = "name"
	FieldEnabled         = "enabled"
	FieldProtector       = "protector"
	FieldRuleIDs         = "rule_ids"
	FieldOwnerID         = "owner_id"
	FieldActivator       = "activator"
	FieldEnabler         = "enabler"
	FieldOSUserID        = "os_user_id"
)

// UserFields returns the full row of u.
func UserFields(u *User) Fields {
	return Fields{
		FieldUsername:        u.Username,
		FieldPassword:        u.Password,
		FieldApplyingEnabled: u.Regulation.ApplyingEnabled,
		FieldBlockState:      u.Regulation.BlockState,
		FieldPolicyIDs:       PolicyIDs(&u.Regulation),
	}
}

// PolicyFields returns the full row of p owned by userID.
func PolicyFields(userID string, p *Policy) Fields {
	return Fields{
		FieldUserID:    userID,
		FieldName:      p.Name,
		FieldEnabled:   p.Enabled,
		FieldProtector: p.Protector,
		FieldRuleIDs:   RuleIDs(p.Rules),
	}
}

// RuleFields returns the full row of r owned by a policy or an enforcer.
func RuleFields(ownerID string, r *Rule) Fields {
	return Fields{
		FieldOwnerID:   ownerID,
		FieldActivator: r.Activator,
		FieldEnabler:   r.Enabler,
	}
}

// EnforcerFields returns the full row of n.
func EnforcerFields(n *NetworkEnforcer) Fields {
	return Fields{
		FieldOSUserID:   n.OSUserID,
		FieldUsername:   n.Username,
		FieldEnabled:    n.Enabled,
		FieldBlockState: n.BlockState,
		FieldRuleIDs:    RuleIDs(n.Rules),
	}
}

// PolicyIDs returns the ordered policy ids of r.
func PolicyIDs(r *Regulation) []string {
	ids := make([]string, len(r.Policies))
	for i := range r.Policies {
		ids[i] = r.Policies[i].ID
	}
	return ids
}

// RuleIDs returns the ordered ids of rules.
func RuleIDs(rules []Rule) []string {
	ids := make([]string, len(rules))
	for i := range rules {
		ids[i] = rules[i].ID
	}
	return ids
}

type activatorJSON struct {
	Kind         ActivatorKind          `json:"kind"`
	Weekday      *timing.Weekday        `json:"weekday,omitempty"`
	Hour         *uint8                 `json:"hour,omitempty"`
	TimeRange    *timing.TimeRange      `json:"time_range,omitempty"`
	WeekdayRange *timing.WeekdayRange   `json:"weekday_range,omitempty"`
	Countdown    *timing.CountdownTimer `json:"countdown,omitempty"`
}

func (a Activator) MarshalJSON() ([]byte, error) {
	raw := activatorJSON{Kind: a.Kind}
	switch a.Kind {
	case ActivatorAtWeekday, ActivatorNotAtWeekday:
		raw.Weekday = &a.Weekday
	case ActivatorAtHour, ActivatorNotAtHour:
		raw.Hour = &a.Hour
	case ActivatorInTimeRange, ActivatorNotInTimeRange:
		raw.TimeRange = &a.TimeRange
	case ActivatorInWeekdayRange, ActivatorNotInWeekdayRange:
		raw.WeekdayRange = &a.WeekdayRange
	case ActivatorForDuration:
		raw.Countdown = a.Countdown
	}
	return json.Marshal(raw)
}

func (a *Activator) UnmarshalJSON(data []byte) error {
	var raw activatorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Activator{Kind: raw.Kind}
	if raw.Weekday != nil {
		out.Weekday = *raw.Weekday
	}
	if raw.Hour != nil {
		out.Hour = *raw.Hour
	}
	if raw.TimeRange != nil {
		out.TimeRange = *raw.TimeRange
	}
	if raw.WeekdayRange != nil {
		out.WeekdayRange = *raw.WeekdayRange
	}
	out.Countdown = raw.Countdown
	if !out.Valid() {
		return fmt.Errorf("invalid activator %q", raw.Kind)
	}
	*a = out
	return nil
}

type enablerJSON struct {
	Kind         EnablerKind            `json:"kind"`
	Countdown    *timing.CountdownTimer `json:"countdown,omitempty"`
	PasswordHash string                 `json:"password_hash,omitempty"`
	Unlocked     bool                   `json:"unlocked,omitempty"`
}

func (e Enabler) MarshalJSON() ([]byte, error) {
	return json.Marshal(enablerJSON{
		Kind:         e.Kind,
		Countdown:    e.Countdown,
		PasswordHash: e.PasswordHash,
		Unlocked:     e.Unlocked,
	})
}

func (e *Enabler) UnmarshalJSON(data []byte) error {
	var raw enablerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case EnablerForDuration:
		if raw.Countdown == nil {
			return fmt.Errorf("enabler %q without countdown", raw.Kind)
		}
	case EnablerByPassword:
		if raw.PasswordHash == "" {
			return fmt.Errorf("enabler %q without password hash", raw.Kind)
		}
	default:
		return fmt.Errorf("invalid enabler %q", raw.Kind)
	}
	*e = Enabler{
		Kind:         raw.Kind,
		Countdown:    raw.Countdown,
		PasswordHash: raw.PasswordHash,
		Unlocked:     raw.Unlocked,
	}
	return nil
}
