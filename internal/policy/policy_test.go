package policy

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// t0 is Monday 2026-03-02 10:00 local time.
var t0 = timing.FromTime(time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local))

func TestMain(m *testing.M) {
	PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func ms(d timing.Duration) *int64 {
	v := d.Milliseconds()
	return &v
}

func countdown(d timing.Duration) EnablerSpec {
	return EnablerSpec{Kind: domain.EnablerForDuration, DurationMs: ms(d)}
}

// newState returns a state with user u1 ("kid") and no policies.
func newState(t *testing.T) *domain.State {
	t.Helper()
	s := domain.NewState()
	res := (&CreateUser{ID: "u1", Username: "kid", Password: "real-pass"}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	return s
}

// withPolicy adds policy p1 to u1 with the given protector.
func withPolicy(t *testing.T, s *domain.State, enabled bool, protector EnablerSpec) *domain.Policy {
	t.Helper()
	res := (&CreatePolicy{UserID: "u1", ID: "p1", Name: "bedtime", Enabled: enabled, Protector: protector}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	_, p, outcome := lookupPolicy(s, "u1", "p1")
	require.Equal(t, domain.OutcomeSuccess, outcome)
	return p
}

func TestCreateUser(t *testing.T) {
	s := newState(t)

	tests := []struct {
		name string
		op   CreateUser
		want domain.Outcome
	}{
		{"duplicate id", CreateUser{ID: "u1", Username: "other", Password: "x"}, domain.OutcomeIDUnavailable},
		{"duplicate username", CreateUser{Username: "kid", Password: "x"}, domain.OutcomeIDUnavailable},
		{"bad username", CreateUser{Username: "Kid:1", Password: "x"}, domain.OutcomeInvalidName},
		{"missing password", CreateUser{Username: "other"}, domain.OutcomeInvalidArgument},
		{"bad id", CreateUser{ID: "has space", Username: "other", Password: "x"}, domain.OutcomeInvalidArgument},
		{"generated id", CreateUser{Username: "other", Password: "x"}, domain.OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.op.Apply(s, t0)
			assert.Equal(t, tt.want, res.Outcome)
			if tt.want == domain.OutcomeSuccess {
				assert.NotEmpty(t, res.CreatedID)
				require.Len(t, res.Changes, 1)
				assert.Equal(t, domain.ChangeAdd, res.Changes[0].Op)
				assert.Equal(t, domain.TableUsers, res.Changes[0].Table)
			} else {
				assert.Empty(t, res.Changes)
			}
		})
	}
}

func TestCreatePolicy_Guards(t *testing.T) {
	s := newState(t)

	res := (&CreatePolicy{UserID: "nobody", Name: "bedtime", Protector: countdown(timing.Hour)}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeNoSuchUser, res.Outcome)

	res = (&CreatePolicy{UserID: "u1", Name: "ab", Protector: countdown(timing.Hour)}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeInvalidName, res.Outcome)

	res = (&CreatePolicy{UserID: "u1", Name: "way too long for a policy name", Protector: countdown(timing.Hour)}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeInvalidName, res.Outcome)

	res = (&CreatePolicy{UserID: "u1", Name: "bedtime", Protector: countdown(4 * timing.Week)}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeWouldBeEffectiveForTooLong, res.Outcome)

	res = (&CreatePolicy{UserID: "u1", Name: "bedtime", Protector: EnablerSpec{Kind: "sometimes"}}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeInvalidArgument, res.Outcome)

	for i := 0; i < MaxPolicies; i++ {
		res = (&CreatePolicy{UserID: "u1", Name: "policy", Protector: countdown(timing.Hour)}).Apply(s, t0)
		require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	}
	res = (&CreatePolicy{UserID: "u1", Name: "policy", Protector: countdown(timing.Hour)}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeTooManyPolicies, res.Outcome)
	assert.Len(t, s.Users["u1"].Regulation.Policies, MaxPolicies)
}

func TestCreatePolicy_IDCollisionAcrossUsers(t *testing.T) {
	s := newState(t)
	withPolicy(t, s, true, countdown(timing.Hour))
	require.Equal(t, domain.OutcomeSuccess,
		(&CreateUser{ID: "u2", Username: "teen", Password: "x"}).Apply(s, t0).Outcome)

	res := (&CreatePolicy{UserID: "u2", ID: "p1", Name: "bedtime", Protector: countdown(timing.Hour)}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeIDUnavailable, res.Outcome)
}

func TestIncrementProtector_Ceiling(t *testing.T) {
	s := newState(t)
	withPolicy(t, s, true, countdown(2*timing.Week))

	res := (&IncrementProtector{UserID: "u1", PolicyID: "p1", DurationMs: (2 * timing.Week).Milliseconds()}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeWouldBeEffectiveForTooLong, res.Outcome)

	res = (&IncrementProtector{UserID: "u1", PolicyID: "p1", DurationMs: timing.Week.Milliseconds()}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	_, p, _ := lookupPolicy(s, "u1", "p1")
	assert.Equal(t, 3*timing.Week, p.Protector.Countdown.RemainingDuration())
	require.Len(t, res.Changes, 1)
	assert.Contains(t, res.Changes[0].Fields, domain.FieldProtector)

	res = (&IncrementProtector{UserID: "u1", PolicyID: "p1", DurationMs: 0}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeInvalidArgument, res.Outcome)
}

func TestIncrementProtector_CountsElapsedTime(t *testing.T) {
	s := newState(t)
	withPolicy(t, s, true, countdown(2*timing.Week))

	later := t0.Add(timing.Week)
	res := (&IncrementProtector{UserID: "u1", PolicyID: "p1", DurationMs: (2 * timing.Week).Milliseconds()}).Apply(s, later)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	_, p, _ := lookupPolicy(s, "u1", "p1")
	assert.Equal(t, 3*timing.Week, p.Protector.Countdown.RemainingDuration())
}

func TestProtectedPolicy_MonotonicRestriction(t *testing.T) {
	for _, remaining := range []timing.Duration{timing.Millisecond, timing.Minute, timing.Week, 3 * timing.Week} {
		t.Run(remaining.String(), func(t *testing.T) {
			s := newState(t)
			withPolicy(t, s, true, countdown(remaining))

			assert.Equal(t, domain.OutcomeMayNotDeleteWhileEnabled,
				(&DeletePolicy{UserID: "u1", PolicyID: "p1"}).Apply(s, t0).Outcome)
			assert.Equal(t, domain.OutcomeMayNotMakeRuleLessRestrictive,
				(&DisablePolicy{UserID: "u1", PolicyID: "p1"}).Apply(s, t0).Outcome)
			assert.Equal(t, domain.OutcomeMayNotDeleteWhileEnabled,
				(&DeleteUser{UserID: "u1"}).Apply(s, t0).Outcome)
			assert.Equal(t, domain.OutcomeMayNotMakeRuleLessRestrictive,
				(&DisableApplying{UserID: "u1"}).Apply(s, t0).Outcome)
			assert.Equal(t, domain.OutcomeWouldMakeRuleLessRestrictive,
				(&DecrementProtector{UserID: "u1", PolicyID: "p1", DurationMs: 1}).Apply(s, t0).Outcome)
			assert.Len(t, s.Users["u1"].Regulation.Policies, 1)
			assert.True(t, s.Users["u1"].Regulation.Policies[0].Enabled)
		})
	}
}

func TestExpiredProtector_AllowsWeakening(t *testing.T) {
	s := newState(t)
	withPolicy(t, s, true, countdown(timing.Hour))
	later := t0.Add(timing.Hour)

	res := (&DisablePolicy{UserID: "u1", PolicyID: "p1"}).Apply(s, later)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, []domain.AccountRef{{Kind: domain.AccountScreen, ID: "u1"}}, res.Touched)

	res = (&DeletePolicy{UserID: "u1", PolicyID: "p1"}).Apply(s, later)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Empty(t, s.Users["u1"].Regulation.Policies)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, domain.DeleteRow(domain.TablePolicies, "p1"), res.Changes[0])
	assert.Equal(t, []string{}, res.Changes[1].Fields[domain.FieldPolicyIDs])

	res = (&DeleteUser{UserID: "u1"}).Apply(s, later)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, []domain.AccountRef{{Kind: domain.AccountScreen, ID: "u1"}}, res.Released)
	assert.Empty(t, s.Users)
}

func TestDecrementProtector_DisabledPolicy(t *testing.T) {
	s := newState(t)
	p := withPolicy(t, s, false, countdown(2*timing.Hour))

	res := (&DecrementProtector{UserID: "u1", PolicyID: "p1", DurationMs: timing.Hour.Milliseconds()}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, timing.Hour, p.Protector.Countdown.RemainingDuration())

	res = (&DecrementProtector{UserID: "u1", PolicyID: "p1", DurationMs: (5 * timing.Hour).Milliseconds()}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.True(t, p.Protector.Countdown.IsFinished())
}

func TestPasswordProtector_LockAndUnlock(t *testing.T) {
	s := newState(t)
	p := withPolicy(t, s, true, EnablerSpec{Kind: domain.EnablerByPassword, Password: "parent-secret"})
	assert.True(t, p.IsProtected(t0))

	assert.Equal(t, domain.OutcomeWrongEnablerType,
		(&IncrementProtector{UserID: "u1", PolicyID: "p1", DurationMs: 1000}).Apply(s, t0).Outcome)
	assert.Equal(t, domain.OutcomeMayNotMakeRuleLessRestrictive,
		(&LockPolicy{UserID: "u1", PolicyID: "p1", Password: "new"}).Apply(s, t0).Outcome)
	assert.Equal(t, domain.OutcomeWrongPassword,
		(&UnlockPolicy{UserID: "u1", PolicyID: "p1", Password: "guess"}).Apply(s, t0).Outcome)
	assert.True(t, p.IsProtected(t0))

	res := (&UnlockPolicy{UserID: "u1", PolicyID: "p1", Password: "parent-secret"}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.False(t, p.IsProtected(t0))
	assert.False(t, p.IsEnabled(t0))

	res = (&LockPolicy{UserID: "u1", PolicyID: "p1", Password: "rotated"}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.True(t, p.IsProtected(t0))
	assert.True(t, p.Protector.CheckPassword("rotated"))
	assert.False(t, p.Protector.CheckPassword("parent-secret"))

	assert.Equal(t, "unlock:u1", (&UnlockPolicy{UserID: "u1"}).ThrottleKey())
}

func TestRenamePolicy_AllowedWhileProtected(t *testing.T) {
	s := newState(t)
	p := withPolicy(t, s, true, countdown(timing.Week))

	res := (&RenamePolicy{UserID: "u1", PolicyID: "p1", Name: "lights out"}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "lights out", p.Name)

	res = (&RenamePolicy{UserID: "u1", PolicyID: "p1", Name: " x"}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeInvalidName, res.Outcome)

	res = (&RenamePolicy{UserID: "u1", PolicyID: "nope", Name: "whatever"}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeNoSuchPolicy, res.Outcome)
}

func TestPolicyRules(t *testing.T) {
	s := newState(t)
	p := withPolicy(t, s, true, countdown(timing.Week))
	night := ActivatorSpec{
		Kind:      domain.ActivatorInTimeRange,
		TimeRange: ptr(timing.NewTimeRange(timing.MustTime(22, 0), timing.MustTime(6, 0))),
	}

	res := (&AddPolicyRule{UserID: "u1", PolicyID: "p1", RuleID: "r1", Activator: night}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "r1", res.CreatedID)
	assert.Equal(t, domain.TableRules, res.Changes[0].Table)

	res = (&AddPolicyRule{UserID: "u1", PolicyID: "p1", RuleID: "r1", Activator: night}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeProvidedIDIsUsedByAnotherRule, res.Outcome)

	res = (&AddPolicyRule{UserID: "u1", PolicyID: "p1", Activator: ActivatorSpec{Kind: domain.ActivatorAtHour}}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeInvalidArgument, res.Outcome)

	narrower := ActivatorSpec{
		Kind:      domain.ActivatorInTimeRange,
		TimeRange: ptr(timing.NewTimeRange(timing.MustTime(23, 0), timing.MustTime(6, 0))),
	}
	res = (&ChangePolicyRuleActivator{UserID: "u1", PolicyID: "p1", RuleID: "r1", Activator: narrower}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeMayNotMakeRuleLessRestrictive, res.Outcome)

	res = (&ChangePolicyRuleActivator{UserID: "u1", PolicyID: "p1", RuleID: "r1", Activator: ActivatorSpec{Kind: domain.ActivatorAlwaysOn}}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeWrongActivatorType, res.Outcome)

	wider := ActivatorSpec{
		Kind:      domain.ActivatorInTimeRange,
		TimeRange: ptr(timing.NewTimeRange(timing.MustTime(21, 0), timing.MustTime(7, 0))),
	}
	res = (&ChangePolicyRuleActivator{UserID: "u1", PolicyID: "p1", RuleID: "r1", Activator: wider}).Apply(s, t0)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, timing.MustTime(21, 0), p.Rules[0].Activator.TimeRange.From())

	res = (&DeletePolicyRule{UserID: "u1", PolicyID: "p1", RuleID: "r1"}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeMayNotDeleteWhileEnabled, res.Outcome)

	res = (&DeletePolicyRule{UserID: "u1", PolicyID: "p1", RuleID: "r9"}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeNoSuchRule, res.Outcome)

	// Once the protector runs out the narrower window is accepted.
	later := t0.Add(timing.Week)
	res = (&ChangePolicyRuleActivator{UserID: "u1", PolicyID: "p1", RuleID: "r1", Activator: narrower}).Apply(s, later)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	res = (&DeletePolicyRule{UserID: "u1", PolicyID: "p1", RuleID: "r1"}).Apply(s, later)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Empty(t, p.Rules)
}

func TestAddPolicyRule_TooManyRules(t *testing.T) {
	s := newState(t)
	withPolicy(t, s, true, countdown(timing.Hour))
	for i := 0; i < MaxRules; i++ {
		res := (&AddPolicyRule{UserID: "u1", PolicyID: "p1", Activator: ActivatorSpec{Kind: domain.ActivatorAlwaysOn}}).Apply(s, t0)
		require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	}
	res := (&AddPolicyRule{UserID: "u1", PolicyID: "p1", Activator: ActivatorSpec{Kind: domain.ActivatorAlwaysOn}}).Apply(s, t0)
	assert.Equal(t, domain.OutcomeTooManyRules, res.Outcome)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("abc"))
	assert.True(t, ValidName("schlafenszeit für kinder"))
	assert.False(t, ValidName("ab"))
	assert.False(t, ValidName("trailing "))
	assert.True(t, ValidName("ééé"))
}

func ptr[T any](v T) *T { return &v }
