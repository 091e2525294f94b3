package policy

import (
	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// IsLessRestrictive reports whether replacing current with next (of the same
// kind) could let the rule hold at fewer instants.
//
// Ranges are compared by their bounds only: an In* range must not narrow and
// a NotIn* range must not widen. Point activators may not change at all. A
// countdown may not lose remaining time.
func IsLessRestrictive(current, next *domain.Activator, now timing.DateTime) bool {
	if current.Kind != next.Kind {
		return true
	}
	switch current.Kind {
	case domain.ActivatorAlwaysOn:
		return false
	case domain.ActivatorAtWeekday, domain.ActivatorNotAtWeekday:
		return next.Weekday != current.Weekday
	case domain.ActivatorAtHour, domain.ActivatorNotAtHour:
		return next.Hour != current.Hour
	case domain.ActivatorInTimeRange:
		return !next.TimeRange.IsWiderThanOrEqual(current.TimeRange)
	case domain.ActivatorNotInTimeRange:
		return !next.TimeRange.IsNarrowerThanOrEqual(current.TimeRange)
	case domain.ActivatorInWeekdayRange:
		return !next.WeekdayRange.IsWiderThanOrEqual(current.WeekdayRange)
	case domain.ActivatorNotInWeekdayRange:
		return !next.WeekdayRange.IsNarrowerThanOrEqual(current.WeekdayRange)
	case domain.ActivatorForDuration:
		if current.Countdown == nil {
			return false
		}
		current.Countdown.Synchronize(now)
		return next.Countdown.RemainingDuration() < current.Countdown.RemainingDuration()
	}
	return true
}

// guardActivatorChange checks a replacement activator. The kind may never
// change; while protected the replacement must not be less restrictive.
func guardActivatorChange(current, next *domain.Activator, protected bool, now timing.DateTime) domain.Outcome {
	if current.Kind != next.Kind {
		return domain.OutcomeWrongActivatorType
	}
	if protected && IsLessRestrictive(current, next, now) {
		return domain.OutcomeMayNotMakeRuleLessRestrictive
	}
	return domain.OutcomeSuccess
}

// extendCountdown adds d to the remaining time of c, refusing to go past the ceiling.
func extendCountdown(c *timing.CountdownTimer, d timing.Duration, now timing.DateTime) domain.Outcome {
	if d <= 0 {
		return domain.OutcomeInvalidArgument
	}
	c.Synchronize(now)
	next, ok := c.RemainingDuration().CheckedAdd(d)
	if !ok || next > MaxEffectiveDuration {
		return domain.OutcomeWouldBeEffectiveForTooLong
	}
	c.ChangeRemainingDuration(next)
	return domain.OutcomeSuccess
}

// shortenCountdown removes d from the remaining time of c. Callers check
// that the shortening is allowed first.
func shortenCountdown(c *timing.CountdownTimer, d timing.Duration, now timing.DateTime) domain.Outcome {
	if d <= 0 {
		return domain.OutcomeInvalidArgument
	}
	c.Synchronize(now)
	c.ChangeRemainingDuration(c.RemainingDuration().SaturatingSub(d))
	return domain.OutcomeSuccess
}
