package timing

import (
	"fmt"
	"strings"
	"time"
)

// MillisecondsPerDay is the length of the Time cycle.
const MillisecondsPerDay = uint32(Day)

// Time is a time of day in milliseconds since midnight, in [0, MillisecondsPerDay).
type Time uint32

// NewTime builds a Time from clock components.
func NewTime(hour, minute, second int) (Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("invalid time of day %02d:%02d:%02d", hour, minute, second)
	}
	return Time(((hour*60+minute)*60 + second) * 1000), nil
}

// MustTime is NewTime for constants; it panics on invalid input.
func MustTime(hour, minute int) Time {
	t, err := NewTime(hour, minute, 0)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTime parses "HH:MM" or "HH:MM:SS".
func ParseTime(s string) (Time, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTime(t.Hour(), t.Minute(), t.Second())
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

// Add returns t advanced by d, wrapping modulo one day.
func (t Time) Add(d Duration) Time {
	day := int64(MillisecondsPerDay)
	return Time((int64(t)%day + int64(d)%day) % day)
}

// Hour returns the hour component.
func (t Time) Hour() uint8 {
	return uint8(uint32(t) / uint32(Hour))
}

func (t Time) String() string {
	ms := uint32(t)
	h := ms / uint32(Hour)
	m := ms % uint32(Hour) / uint32(Minute)
	s := ms % uint32(Minute) / uint32(Second)
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Time) UnmarshalText(text []byte) error {
	parsed, err := ParseTime(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Weekday is a day of the week, Monday=0 through Sunday=6.
type Weekday uint8

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// DaysPerWeek is the length of the Weekday cycle.
const DaysPerWeek = 7

var weekdayNames = [DaysPerWeek]string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// WeekdayFromStd converts from time.Weekday (Sunday=0).
func WeekdayFromStd(w time.Weekday) Weekday {
	return Weekday((int(w) + 6) % DaysPerWeek)
}

// ParseWeekday parses a lower- or mixed-case English weekday name.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range weekdayNames {
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// Valid reports whether w is one of the seven weekdays.
func (w Weekday) Valid() bool {
	return w < DaysPerWeek
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("weekday(%d)", uint8(w))
	}
	return weekdayNames[w]
}

func (w Weekday) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", uint8(w))
	}
	return []byte(w.String()), nil
}

func (w *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
