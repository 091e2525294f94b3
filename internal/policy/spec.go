package policy

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// PasswordCost is the bcrypt cost used for password protectors.
var PasswordCost = bcrypt.DefaultCost

// ActivatorSpec is the wire form of an activator. Only the field matching
// Kind is read.
//
//	{"kind":"in_time_range","time_range":{"from":"22:00","till":"06:00"}}
//	{"kind":"for_duration","duration_ms":3600000}
type ActivatorSpec struct {
	Kind         domain.ActivatorKind `json:"kind"`
	Weekday      *timing.Weekday      `json:"weekday,omitempty"`
	Hour         *uint8               `json:"hour,omitempty"`
	TimeRange    *timing.TimeRange    `json:"time_range,omitempty"`
	WeekdayRange *timing.WeekdayRange `json:"weekday_range,omitempty"`
	DurationMs   *int64               `json:"duration_ms,omitempty"`
}

// Build turns the spec into an activator starting at now.
func (s ActivatorSpec) Build(now timing.DateTime) (domain.Activator, domain.Outcome) {
	invalid := domain.OutcomeInvalidArgument
	switch s.Kind {
	case domain.ActivatorAlwaysOn:
		return domain.AlwaysOn(), domain.OutcomeSuccess
	case domain.ActivatorAtWeekday, domain.ActivatorNotAtWeekday:
		if s.Weekday == nil || !s.Weekday.Valid() {
			return domain.Activator{}, invalid
		}
		return domain.Activator{Kind: s.Kind, Weekday: *s.Weekday}, domain.OutcomeSuccess
	case domain.ActivatorAtHour, domain.ActivatorNotAtHour:
		if s.Hour == nil || *s.Hour > 23 {
			return domain.Activator{}, invalid
		}
		return domain.Activator{Kind: s.Kind, Hour: *s.Hour}, domain.OutcomeSuccess
	case domain.ActivatorInTimeRange, domain.ActivatorNotInTimeRange:
		// Equal bounds would cover a single millisecond, never a whole day.
		if s.TimeRange == nil || s.TimeRange.Span() == 0 {
			return domain.Activator{}, invalid
		}
		return domain.Activator{Kind: s.Kind, TimeRange: *s.TimeRange}, domain.OutcomeSuccess
	case domain.ActivatorInWeekdayRange, domain.ActivatorNotInWeekdayRange:
		if s.WeekdayRange == nil {
			return domain.Activator{}, invalid
		}
		return domain.Activator{Kind: s.Kind, WeekdayRange: *s.WeekdayRange}, domain.OutcomeSuccess
	case domain.ActivatorForDuration:
		if s.DurationMs == nil {
			return domain.Activator{}, invalid
		}
		d := timing.FromMilliseconds(*s.DurationMs)
		if outcome := checkDuration(d); outcome != domain.OutcomeSuccess {
			return domain.Activator{}, outcome
		}
		return domain.ActivateForDuration(d, now), domain.OutcomeSuccess
	}
	return domain.Activator{}, invalid
}

// EnablerSpec is the wire form of an enabler or protector.
//
//	{"kind":"for_duration","duration_ms":604800000}
//	{"kind":"by_password","password":"..."}
type EnablerSpec struct {
	Kind       domain.EnablerKind `json:"kind"`
	DurationMs *int64             `json:"duration_ms,omitempty"`
	Password   string             `json:"password,omitempty"`
}

// Build turns the spec into an enabler. Passwords are hashed immediately.
func (s EnablerSpec) Build(now timing.DateTime) (domain.Enabler, domain.Outcome) {
	switch s.Kind {
	case domain.EnablerForDuration:
		if s.DurationMs == nil {
			return domain.Enabler{}, domain.OutcomeInvalidArgument
		}
		d := timing.FromMilliseconds(*s.DurationMs)
		if outcome := checkDuration(d); outcome != domain.OutcomeSuccess {
			return domain.Enabler{}, outcome
		}
		return domain.EnableForDuration(d, now), domain.OutcomeSuccess
	case domain.EnablerByPassword:
		if s.Password == "" {
			return domain.Enabler{}, domain.OutcomeInvalidArgument
		}
		e, err := domain.EnableByPassword(s.Password, PasswordCost)
		if err != nil {
			// bcrypt only fails for passwords over 72 bytes.
			return domain.Enabler{}, domain.OutcomeInvalidArgument
		}
		return e, domain.OutcomeSuccess
	}
	return domain.Enabler{}, domain.OutcomeInvalidArgument
}
