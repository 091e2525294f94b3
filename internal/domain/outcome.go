package domain

import "time"

// Outcome is the closed result set of every guarded operation.
type Outcome string

const (
	OutcomeSuccess                       Outcome = "Success"
	OutcomeNoSuchUser                    Outcome = "NoSuchUser"
	OutcomeNoSuchPolicy                  Outcome = "NoSuchPolicy"
	OutcomeNoSuchRule                    Outcome = "NoSuchRule"
	OutcomeNoSuchEnforcer                Outcome = "NoSuchEnforcer"
	OutcomeIDUnavailable                 Outcome = "IdUnavailable"
	OutcomeProvidedIDIsUsedByAnotherRule Outcome = "ProvidedIdIsUsedByAnotherRule"
	OutcomeMayNotDeleteWhileEnabled      Outcome = "MayNotDeleteWhileEnabled"
	OutcomeMayNotMakeRuleLessRestrictive Outcome = "MayNotMakeRuleLessRestrictive"
	OutcomeWouldMakeRuleLessRestrictive  Outcome = "WouldMakeRuleLessRestrictive"
	OutcomeWouldBeEffectiveForTooLong    Outcome = "WouldBeEffectiveForTooLong"
	OutcomeWrongActivatorType            Outcome = "WrongActivatorType"
	OutcomeWrongEnablerType              Outcome = "WrongEnablerType"
	OutcomeTooManyRules                  Outcome = "TooManyRules"
	OutcomeTooManyPolicies               Outcome = "TooManyPolicies"
	OutcomeInvalidName                   Outcome = "InvalidName"
	OutcomeInvalidArgument               Outcome = "InvalidArgument"
	OutcomeWrongPassword                 Outcome = "WrongPassword"
	OutcomeTooManyAttempts               Outcome = "TooManyAttempts"
	OutcomeInternalError                 Outcome = "InternalError"
)

// IsSuccess reports whether o is OutcomeSuccess.
func (o Outcome) IsSuccess() bool { return o == OutcomeSuccess }

// Action is the decision an enforcer acts on.
type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// BlockState is the last OS state an enforcer successfully applied.
type BlockState string

const (
	BlockStateUnknown BlockState = "unknown"
	BlockStateAllowed BlockState = "allowed"
	BlockStateBlocked BlockState = "blocked"
)

// Target returns the block state that realizes a.
func (a Action) Target() BlockState {
	if a == ActionBlock {
		return BlockStateBlocked
	}
	return BlockStateAllowed
}

// AccountKind distinguishes the two regulated domains.
type AccountKind string

const (
	AccountScreen  AccountKind = "screen"
	AccountNetwork AccountKind = "network"
)

// AccountRef names a user (screen) or an enforcer (network).
type AccountRef struct {
	Kind AccountKind
	ID   string
}

// Result is what an operation produced when applied to a state.
type Result struct {
	Outcome Outcome
	// CreatedID is set by create operations.
	CreatedID string
	Changes   []Change
	// Touched accounts are re-evaluated right after the commit.
	Touched []AccountRef
	// Released accounts are removed by the operation; their OS state must be
	// returned to allowed before the commit.
	Released []AccountRef
}

// Reject returns a Result carrying only a rejection outcome.
func Reject(o Outcome) Result {
	return Result{Outcome: o}
}

// EnforcementResult captures what happened during a single enforcement pass.
type EnforcementResult struct {
	Account    AccountRef
	Action     Action
	Previous   BlockState
	Current    BlockState
	Actuated   bool
	ExecutedAt time.Time
	DurationMs int64
}
