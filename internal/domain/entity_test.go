package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// monday10 is Monday 2026-03-02 10:00 local time.
var monday10 = timing.FromTime(time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local))

func TestActivator_IsEffective(t *testing.T) {
	tests := []struct {
		name      string
		activator Activator
		want      bool
	}{
		{"always on", AlwaysOn(), true},
		{"at weekday match", AtWeekday(timing.Monday), true},
		{"at weekday miss", AtWeekday(timing.Tuesday), false},
		{"not at weekday", NotAtWeekday(timing.Tuesday), true},
		{"at hour", AtHour(10), true},
		{"not at hour", NotAtHour(10), false},
		{"in time range", InTimeRange(timing.NewTimeRange(timing.MustTime(9, 0), timing.MustTime(11, 0))), true},
		{"in time range across midnight", InTimeRange(timing.NewTimeRange(timing.MustTime(22, 0), timing.MustTime(6, 0))), false},
		{"not in time range", NotInTimeRange(timing.NewTimeRange(timing.MustTime(22, 0), timing.MustTime(6, 0))), true},
		{"in weekday range wrap", InWeekdayRange(timing.NewWeekdayRange(timing.Friday, timing.Monday)), true},
		{"not in weekday range", NotInWeekdayRange(timing.NewWeekdayRange(timing.Friday, timing.Monday)), false},
		{"for duration running", ActivateForDuration(timing.Hour, monday10), true},
		{"for duration zero", ActivateForDuration(0, monday10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.activator.IsEffective(monday10))
		})
	}
}

func TestActivator_ForDurationExpires(t *testing.T) {
	a := ActivateForDuration(timing.FromMinutes(30), monday10)

	assert.True(t, a.IsEffective(monday10.Add(timing.FromMinutes(29))))
	assert.False(t, a.IsEffective(monday10.Add(timing.FromMinutes(30))))
	// A later clock rollback cannot revive it.
	assert.False(t, a.IsEffective(monday10))
}

func TestEnabler_PasswordIsEffectiveWhileLocked(t *testing.T) {
	e, err := EnableByPassword("hunter22", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, e.IsEffective(monday10))
	assert.True(t, e.CheckPassword("hunter22"))
	assert.False(t, e.CheckPassword("hunter23"))

	e.Unlocked = true
	assert.False(t, e.IsEffective(monday10))
}

func TestPolicy_EnabledRequiresRunningProtector(t *testing.T) {
	p := Policy{
		ID:        "p1",
		Name:      "evenings",
		Enabled:   true,
		Protector: EnableForDuration(timing.Hour, monday10),
		Rules:     []Rule{{ID: "r1", Activator: AlwaysOn()}},
	}

	assert.True(t, p.IsEnabled(monday10))
	assert.True(t, p.IsProtected(monday10))

	later := monday10.Add(2 * timing.Hour)
	assert.False(t, p.IsEnabled(later))
	assert.False(t, p.IsProtected(later))

	p.Enabled = false
	assert.False(t, p.IsEnabled(monday10))
}

func TestRegulation_CalculateAction(t *testing.T) {
	enabled := Policy{
		ID: "p1", Name: "school", Enabled: true,
		Protector: EnableForDuration(timing.Day, monday10),
		Rules:     []Rule{{ID: "r1", Activator: AtWeekday(timing.Tuesday)}},
	}
	disabled := Policy{
		ID: "p2", Name: "weekdays", Enabled: false,
		Protector: EnableForDuration(timing.Day, monday10),
		Rules:     []Rule{{ID: "r2", Activator: AlwaysOn()}},
	}
	r := Regulation{Policies: []Policy{enabled, disabled}, ApplyingEnabled: true}

	assert.Equal(t, ActionAllow, r.CalculateAction(monday10))

	r.Policies[0].Rules = append(r.Policies[0].Rules, Rule{ID: "r3", Activator: AtHour(10)})
	assert.Equal(t, ActionBlock, r.CalculateAction(monday10))
	assert.True(t, r.IsProtected(monday10))
}

func TestNetworkEnforcer_CalculateAction(t *testing.T) {
	finished := EnableForDuration(0, monday10)
	n := NetworkEnforcer{
		ID: "e1", OSUserID: 1001, Username: "kid", Enabled: true,
		Rules: []Rule{{ID: "r1", Activator: AlwaysOn(), Enabler: &finished}},
	}
	assert.Equal(t, ActionAllow, n.CalculateAction(monday10))
	assert.False(t, n.IsProtected(monday10))

	running := EnableForDuration(timing.Hour, monday10)
	n.Rules = append(n.Rules, Rule{ID: "r2", Activator: AlwaysOn(), Enabler: &running})
	assert.Equal(t, ActionBlock, n.CalculateAction(monday10))
	assert.True(t, n.IsProtected(monday10))

	n.Enabled = false
	assert.Equal(t, ActionAllow, n.CalculateAction(monday10))
}

func TestState_CloneIsDeep(t *testing.T) {
	s := NewState()
	s.Users["u1"] = &User{
		ID: "u1", Username: "kid",
		Regulation: Regulation{Policies: []Policy{{
			ID: "p1", Name: "nights",
			Protector: EnableForDuration(timing.Hour, monday10),
			Rules:     []Rule{{ID: "r1", Activator: ActivateForDuration(timing.Hour, monday10)}},
		}}},
	}
	running := EnableForDuration(timing.Hour, monday10)
	s.Enforcers["e1"] = &NetworkEnforcer{ID: "e1", Rules: []Rule{{ID: "r2", Activator: AlwaysOn(), Enabler: &running}}}

	cp := s.Clone()
	cp.Users["u1"].Regulation.Policies[0].Name = "changed"
	cp.Users["u1"].Regulation.Policies[0].Protector.Countdown.ChangeRemainingDuration(0)
	cp.Users["u1"].Regulation.Policies[0].Rules[0].Activator.Countdown.ChangeRemainingDuration(0)
	cp.Enforcers["e1"].Rules[0].Enabler.Countdown.ChangeRemainingDuration(0)

	p := s.Users["u1"].Regulation.Policies[0]
	assert.Equal(t, "nights", p.Name)
	assert.Equal(t, timing.Hour, p.Protector.Countdown.RemainingDuration())
	assert.Equal(t, timing.Hour, p.Rules[0].Activator.Countdown.RemainingDuration())
	assert.Equal(t, timing.Hour, s.Enforcers["e1"].Rules[0].Enabler.Countdown.RemainingDuration())

	assert.True(t, s.HasRule("r1"))
	assert.True(t, s.HasRule("r2"))
	assert.False(t, s.HasRule("r3"))
	u, idx := s.FindPolicy("p1")
	require.NotNil(t, u)
	assert.Equal(t, 0, idx)
}

func TestActivatorJSON(t *testing.T) {
	tests := []Activator{
		AlwaysOn(),
		AtWeekday(timing.Saturday),
		NotAtHour(7),
		InTimeRange(timing.NewTimeRange(timing.MustTime(22, 0), timing.MustTime(6, 0))),
		NotInWeekdayRange(timing.NewWeekdayRange(timing.Saturday, timing.Sunday)),
		ActivateForDuration(timing.FromMinutes(45), monday10),
	}
	for _, a := range tests {
		t.Run(string(a.Kind), func(t *testing.T) {
			data, err := json.Marshal(a)
			require.NoError(t, err)

			var decoded Activator
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, a.Kind, decoded.Kind)
			assert.Equal(t, a.IsEffective(monday10), decoded.IsEffective(monday10))
		})
	}

	var bad Activator
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"at_hour","hour":30}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"sometimes"}`), &bad))
}

func TestEnablerJSON(t *testing.T) {
	var e Enabler
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"for_duration"}`), &e))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"by_password"}`), &e))

	locked, err := EnableByPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)
	data, err := json.Marshal(locked)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &e))
	assert.True(t, e.CheckPassword("secret"))
	assert.False(t, e.Unlocked)
}

func TestRowFields(t *testing.T) {
	p := Policy{ID: "p1", Name: "nights", Rules: []Rule{{ID: "r1"}, {ID: "r2"}}}
	f := PolicyFields("u1", &p)
	assert.Equal(t, "u1", f[FieldUserID])
	assert.Equal(t, []string{"r1", "r2"}, f[FieldRuleIDs])

	r := Rule{ID: "r1", Activator: AlwaysOn()}
	data, err := json.Marshal(RuleFields("p1", &r))
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner_id":"p1","activator":{"kind":"always_on"},"enabler":null}`, string(data))
}
