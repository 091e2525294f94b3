package timing

import "encoding/json"

// TimeRange is an inclusive [from, till] interval of times of day.
//
// A range crossing midnight stores till above MillisecondsPerDay, so every
// comparison below is a plain integer comparison. The span is always shorter
// than one day.
type TimeRange struct {
	from uint32
	till uint32
}

// NewTimeRange returns the range from..till, crossing midnight when till is
// earlier than from. Both bounds are inclusive, so equal bounds give a range
// of one millisecond rather than a full day.
func NewTimeRange(from, till Time) TimeRange {
	f := uint32(from) % MillisecondsPerDay
	t := uint32(till) % MillisecondsPerDay
	if t < f {
		t += MillisecondsPerDay
	}
	return TimeRange{from: f, till: t}
}

// From returns the start of the range.
func (r TimeRange) From() Time { return Time(r.from) }

// Till returns the inclusive end of the range as a time of day.
func (r TimeRange) Till() Time { return Time(r.till % MillisecondsPerDay) }

// Span returns till - from.
func (r TimeRange) Span() Duration { return Duration(r.till - r.from) }

// CrossesMidnight reports whether the range wraps into the next day.
func (r TimeRange) CrossesMidnight() bool { return r.till >= MillisecondsPerDay }

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t Time) bool {
	v := uint32(t) % MillisecondsPerDay
	if v >= r.from && v <= r.till {
		return true
	}
	v += MillisecondsPerDay
	return v >= r.from && v <= r.till
}

func (r TimeRange) Equal(o TimeRange) bool { return r == o }

func (r TimeRange) IsWiderThanOrEqual(o TimeRange) bool {
	return r.from <= o.from && r.till >= o.till
}

func (r TimeRange) IsWiderThan(o TimeRange) bool {
	return r.IsWiderThanOrEqual(o) && r != o
}

func (r TimeRange) IsNarrowerThanOrEqual(o TimeRange) bool {
	return o.IsWiderThanOrEqual(r)
}

func (r TimeRange) IsNarrowerThan(o TimeRange) bool {
	return o.IsWiderThan(r)
}

type timeRangeJSON struct {
	From Time `json:"from"`
	Till Time `json:"till"`
}

func (r TimeRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeRangeJSON{From: r.From(), Till: r.Till()})
}

func (r *TimeRange) UnmarshalJSON(data []byte) error {
	var raw timeRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = NewTimeRange(raw.From, raw.Till)
	return nil
}

// WeekdayRange is an inclusive [from, till] interval of weekdays. Like
// TimeRange, a range crossing Sunday→Monday stores till above Sunday.
type WeekdayRange struct {
	from uint8
	till uint8
}

// NewWeekdayRange returns the range from..till on the weekly cycle, e.g.
// Friday..Monday covers four days.
func NewWeekdayRange(from, till Weekday) WeekdayRange {
	f := uint8(from) % DaysPerWeek
	t := uint8(till) % DaysPerWeek
	if t < f {
		t += DaysPerWeek
	}
	return WeekdayRange{from: f, till: t}
}

func (r WeekdayRange) From() Weekday { return Weekday(r.from) }
func (r WeekdayRange) Till() Weekday { return Weekday(r.till % DaysPerWeek) }

// SpanDays returns the number of weekdays covered, between 1 and 7.
func (r WeekdayRange) SpanDays() int { return int(r.till-r.from) + 1 }

// ContainsWeekday reports whether w lies on the cyclic path from..till.
func (r WeekdayRange) ContainsWeekday(w Weekday) bool {
	v := uint8(w) % DaysPerWeek
	if v >= r.from && v <= r.till {
		return true
	}
	v += DaysPerWeek
	return v >= r.from && v <= r.till
}

func (r WeekdayRange) Equal(o WeekdayRange) bool { return r == o }

func (r WeekdayRange) IsWiderThanOrEqual(o WeekdayRange) bool {
	return r.from <= o.from && r.till >= o.till
}

func (r WeekdayRange) IsWiderThan(o WeekdayRange) bool {
	return r.IsWiderThanOrEqual(o) && r != o
}

func (r WeekdayRange) IsNarrowerThanOrEqual(o WeekdayRange) bool {
	return o.IsWiderThanOrEqual(r)
}

func (r WeekdayRange) IsNarrowerThan(o WeekdayRange) bool {
	return o.IsWiderThan(r)
}

type weekdayRangeJSON struct {
	From Weekday `json:"from"`
	Till Weekday `json:"till"`
}

func (r WeekdayRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(weekdayRangeJSON{From: r.From(), Till: r.Till()})
}

func (r *WeekdayRange) UnmarshalJSON(data []byte) error {
	var raw weekdayRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = NewWeekdayRange(raw.From, raw.Till)
	return nil
}
