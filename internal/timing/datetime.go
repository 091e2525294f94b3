package timing

import (
	"encoding/json"
	"time"
)

// DateTime is an absolute wall-clock instant.
//
// The monotonic clock reading is always stripped: differences are computed
// from the wall clock, so an OS clock rollback is visible to Since.
type DateTime struct {
	t time.Time
}

// Now returns the current wall-clock instant.
func Now() DateTime {
	return FromTime(time.Now())
}

// FromTime wraps t, dropping its monotonic reading.
func FromTime(t time.Time) DateTime {
	return DateTime{t: t.Round(0)}
}

// Time returns the underlying time.Time.
func (d DateTime) Time() time.Time {
	return d.t
}

// IsZero reports whether d is the zero instant.
func (d DateTime) IsZero() bool {
	return d.t.IsZero()
}

// Add returns d shifted forward by dur.
func (d DateTime) Add(dur Duration) DateTime {
	return DateTime{t: d.t.Add(dur.Std())}
}

// Since returns the time elapsed from earlier to d. It fails when earlier is
// later than d, which signals that the wall clock moved backwards.
func (d DateTime) Since(earlier DateTime) (Duration, bool) {
	if earlier.t.After(d.t) {
		return 0, false
	}
	return FromStd(d.t.Sub(earlier.t)), true
}

func (d DateTime) Before(o DateTime) bool { return d.t.Before(o.t) }
func (d DateTime) After(o DateTime) bool  { return d.t.After(o.t) }
func (d DateTime) Equal(o DateTime) bool  { return d.t.Equal(o.t) }

// Weekday returns the local weekday of d.
func (d DateTime) Weekday() Weekday {
	return WeekdayFromStd(d.t.Local().Weekday())
}

// Hour returns the local hour of d in [0, 24).
func (d DateTime) Hour() uint8 {
	return uint8(d.t.Local().Hour())
}

// TimeOfDay returns the local time elapsed since midnight.
func (d DateTime) TimeOfDay() Time {
	l := d.t.Local()
	ms := ((l.Hour()*60+l.Minute())*60+l.Second())*1000 + l.Nanosecond()/int(time.Millisecond)
	return Time(ms)
}

func (d DateTime) String() string {
	return d.t.Format(time.RFC3339Nano)
}

// MarshalJSON encodes d as an RFC 3339 string.
func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.t.Format(time.RFC3339Nano))
}

// UnmarshalJSON decodes an RFC 3339 string.
func (d *DateTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*d = FromTime(t)
	return nil
}
