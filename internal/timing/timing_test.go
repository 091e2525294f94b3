package timing

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day, hour, minute int) DateTime {
	return FromTime(time.Date(year, month, day, hour, minute, 0, 0, time.Local))
}

func TestDuration_Arithmetic(t *testing.T) {
	d := FromMinutes(10)
	assert.Equal(t, int64(600_000), d.Milliseconds())

	sum, ok := d.CheckedAdd(FromMinutes(5))
	require.True(t, ok)
	assert.Equal(t, FromMinutes(15), sum)

	_, ok = Duration(math.MaxInt64).CheckedAdd(Millisecond)
	assert.False(t, ok)
	assert.Equal(t, Duration(math.MaxInt64), Duration(math.MaxInt64).SaturatingAdd(Hour))

	_, ok = d.CheckedSub(FromMinutes(11))
	assert.False(t, ok)
	assert.Equal(t, Duration(0), d.SaturatingSub(FromMinutes(11)))

	assert.Equal(t, int64(3), FromWeeks(3).TotalWeeks())
	assert.Equal(t, int64(2), (FromWeeks(3) - Millisecond).TotalWeeks())
	assert.Equal(t, Duration(0), FromMilliseconds(-5))
	assert.Equal(t, 90*time.Second, FromStd(90*time.Second).Std())
}

func TestDateTime_SinceDetectsRollback(t *testing.T) {
	t0 := at(2026, 3, 2, 10, 0)
	later := t0.Add(FromMinutes(3))

	elapsed, ok := later.Since(t0)
	require.True(t, ok)
	assert.Equal(t, FromMinutes(3), elapsed)

	_, ok = t0.Since(later)
	assert.False(t, ok)
}

func TestDateTime_Projections(t *testing.T) {
	// 2026-03-02 is a Monday.
	dt := FromTime(time.Date(2026, 3, 2, 21, 15, 30, 250_000_000, time.Local))

	assert.Equal(t, Monday, dt.Weekday())
	assert.Equal(t, uint8(21), dt.Hour())
	assert.Equal(t, Time(((21*60+15)*60+30)*1000+250), dt.TimeOfDay())
	assert.Equal(t, Sunday, at(2026, 3, 8, 12, 0).Weekday())
}

func TestTime_WrapsOnAdd(t *testing.T) {
	t23 := MustTime(23, 0)
	assert.Equal(t, MustTime(1, 0), t23.Add(2*Hour))
	assert.Equal(t, t23, t23.Add(Day))
	assert.Equal(t, uint8(23), t23.Hour())
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    Time
		wantErr bool
	}{
		{in: "22:00", want: MustTime(22, 0)},
		{in: "06:30:15", want: MustTime(6, 30) + 15*Time(Second)},
		{in: "24:00", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	w, err := ParseWeekday("Friday")
	require.NoError(t, err)
	assert.Equal(t, Friday, w)

	w, err = ParseWeekday("sun")
	require.NoError(t, err)
	assert.Equal(t, Sunday, w)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}

func TestTimeRange_CrossingMidnight(t *testing.T) {
	r := NewTimeRange(MustTime(22, 0), MustTime(6, 0))

	assert.True(t, r.CrossesMidnight())
	assert.Equal(t, 8*Hour, r.Span())
	assert.True(t, r.Contains(MustTime(23, 30)))
	assert.True(t, r.Contains(MustTime(0, 0)))
	assert.True(t, r.Contains(MustTime(6, 0)))
	assert.False(t, r.Contains(MustTime(6, 1)))
	assert.False(t, r.Contains(MustTime(12, 0)))
	assert.Equal(t, MustTime(6, 0), r.Till())
}

func TestTimeRange_WidthComparison(t *testing.T) {
	outer := NewTimeRange(MustTime(8, 0), MustTime(18, 0))
	inner := NewTimeRange(MustTime(9, 0), MustTime(17, 0))
	shifted := NewTimeRange(MustTime(7, 0), MustTime(17, 0))

	assert.True(t, outer.IsWiderThan(inner))
	assert.True(t, inner.IsNarrowerThan(outer))
	assert.False(t, outer.IsWiderThan(outer))
	assert.True(t, outer.IsWiderThanOrEqual(outer))
	assert.True(t, outer.IsNarrowerThanOrEqual(outer))
	assert.False(t, outer.IsWiderThanOrEqual(shifted))
	assert.False(t, shifted.IsWiderThanOrEqual(outer))
}

func TestWeekdayRange_Wrap(t *testing.T) {
	r := NewWeekdayRange(Friday, Monday)

	assert.Equal(t, 4, r.SpanDays())
	for _, w := range []Weekday{Friday, Saturday, Sunday, Monday} {
		assert.True(t, r.ContainsWeekday(w), w.String())
	}
	for _, w := range []Weekday{Tuesday, Wednesday, Thursday} {
		assert.False(t, r.ContainsWeekday(w), w.String())
	}

	full := NewWeekdayRange(Monday, Sunday)
	assert.Equal(t, 7, full.SpanDays())
	assert.True(t, full.IsWiderThan(NewWeekdayRange(Tuesday, Friday)))
}

func TestRanges_JSONRoundTripKeepsWrap(t *testing.T) {
	r := NewTimeRange(MustTime(22, 0), MustTime(6, 0))
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"22:00","till":"06:00"}`, string(data))

	var decoded TimeRange
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r, decoded)

	var wr WeekdayRange
	require.NoError(t, json.Unmarshal([]byte(`{"from":"saturday","till":"tuesday"}`), &wr))
	assert.Equal(t, NewWeekdayRange(Saturday, Tuesday), wr)
}

func TestCountdownTimer_RollbackScenario(t *testing.T) {
	t0 := at(2026, 3, 2, 10, 0)
	c := NewCountdownTimer(FromMinutes(10), t0)
	require.True(t, c.IsRunning())

	c.Synchronize(t0.Add(FromMinutes(4)))
	assert.Equal(t, FromMinutes(6), c.RemainingDuration())

	// Clock rolled back: nothing changes.
	c.Synchronize(t0.Add(FromMinutes(2)))
	assert.Equal(t, FromMinutes(6), c.RemainingDuration())
	assert.True(t, c.PreviousSynchronizationTime().Equal(t0.Add(FromMinutes(4))))

	c.Synchronize(t0.Add(FromMinutes(11)))
	assert.Equal(t, Duration(0), c.RemainingDuration())
	assert.True(t, c.IsFinished())
	assert.False(t, c.IsRunning())
}

func TestCountdownTimer_ChangeRemainingDuration(t *testing.T) {
	c := NewCountdownTimer(FromMinutes(10), at(2026, 3, 2, 10, 0))

	c.ChangeRemainingDuration(FromMinutes(3))
	assert.Equal(t, FromMinutes(3), c.RemainingDuration())
	assert.Equal(t, FromMinutes(10), c.Duration())

	c.ChangeRemainingDuration(FromMinutes(30))
	assert.Equal(t, FromMinutes(30), c.Duration())
}

func TestCountdownTimer_JSONAndClone(t *testing.T) {
	c := NewCountdownTimer(FromMinutes(10), at(2026, 3, 2, 10, 0))
	c.Synchronize(at(2026, 3, 2, 10, 1))

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded CountdownTimer
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c.RemainingDuration(), decoded.RemainingDuration())
	assert.Equal(t, c.Duration(), decoded.Duration())
	assert.True(t, c.PreviousSynchronizationTime().Equal(decoded.PreviousSynchronizationTime()))

	cp := c.Clone()
	cp.ChangeRemainingDuration(0)
	assert.True(t, c.IsRunning())
}
