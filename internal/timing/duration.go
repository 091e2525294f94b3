// Package timing contains the calendar and duration value types used by the
// regulation engine: durations, wall-clock instants, times of day, weekdays,
// cyclic ranges over both, and the countdown timer built on top of them.
//
// All types are immutable values except CountdownTimer.
package timing

import (
	"math"
	"time"
)

// Duration is a non-negative elapsed time with millisecond resolution.
type Duration int64

const (
	Millisecond Duration = 1
	Second               = 1000 * Millisecond
	Minute               = 60 * Second
	Hour                 = 60 * Minute
	Day                  = 24 * Hour
	Week                 = 7 * Day
)

// FromMilliseconds returns a Duration; negative input is clamped to zero.
func FromMilliseconds(ms int64) Duration {
	if ms < 0 {
		return 0
	}
	return Duration(ms)
}

// FromMinutes returns a Duration of n minutes (clamped at zero and at the
// representable maximum).
func FromMinutes(n int64) Duration {
	if n <= 0 {
		return 0
	}
	if n > math.MaxInt64/int64(Minute) {
		return Duration(math.MaxInt64)
	}
	return Duration(n) * Minute
}

// FromHours returns a Duration of n hours.
func FromHours(n int64) Duration {
	return FromMinutes(n).SaturatingMul(60)
}

// FromWeeks returns a Duration of n weeks.
func FromWeeks(n int64) Duration {
	return FromHours(n).SaturatingMul(24 * 7)
}

// FromStd converts a time.Duration, truncating to milliseconds.
func FromStd(d time.Duration) Duration {
	return FromMilliseconds(d.Milliseconds())
}

// Std converts to time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// Milliseconds returns the duration as an integer millisecond count.
func (d Duration) Milliseconds() int64 {
	return int64(d)
}

// CheckedAdd returns d+o, or false on overflow.
func (d Duration) CheckedAdd(o Duration) (Duration, bool) {
	if o > 0 && d > Duration(math.MaxInt64)-o {
		return 0, false
	}
	return d + o, true
}

// SaturatingAdd returns d+o, saturating at the maximum representable value.
func (d Duration) SaturatingAdd(o Duration) Duration {
	sum, ok := d.CheckedAdd(o)
	if !ok {
		return Duration(math.MaxInt64)
	}
	return sum
}

// CheckedSub returns d-o, or false when o is larger than d.
func (d Duration) CheckedSub(o Duration) (Duration, bool) {
	if o > d {
		return 0, false
	}
	return d - o, true
}

// SaturatingSub returns d-o, saturating at zero.
func (d Duration) SaturatingSub(o Duration) Duration {
	diff, ok := d.CheckedSub(o)
	if !ok {
		return 0
	}
	return diff
}

// SaturatingMul returns d*n for non-negative n.
func (d Duration) SaturatingMul(n int64) Duration {
	if n <= 0 || d == 0 {
		return 0
	}
	if int64(d) > math.MaxInt64/n {
		return Duration(math.MaxInt64)
	}
	return d * Duration(n)
}

// TotalWeeks returns the number of complete weeks in d.
func (d Duration) TotalWeeks() int64 {
	return int64(d / Week)
}

// IsZero reports whether d is zero.
func (d Duration) IsZero() bool {
	return d == 0
}

func (d Duration) String() string {
	return d.Std().String()
}
