package timing

import "encoding/json"

// CountdownTimer is a decrementing timer synchronized against wall-clock reads.
//
// The timer never extends itself: when the clock is observed to move
// backwards, Synchronize leaves it untouched until time catches up again.
// Invariant: 0 <= remaining <= duration.
type CountdownTimer struct {
	duration  Duration
	remaining Duration
	syncedAt  DateTime
}

// NewCountdownTimer returns a timer with the full duration remaining.
func NewCountdownTimer(duration Duration, now DateTime) *CountdownTimer {
	if duration < 0 {
		duration = 0
	}
	return &CountdownTimer{
		duration:  duration,
		remaining: duration,
		syncedAt:  now,
	}
}

// IsRunning reports whether time remains.
func (c *CountdownTimer) IsRunning() bool {
	return c.remaining > 0
}

// IsFinished reports whether the countdown reached zero.
func (c *CountdownTimer) IsFinished() bool {
	return c.remaining == 0
}

// Duration returns the total duration of the timer.
func (c *CountdownTimer) Duration() Duration {
	return c.duration
}

// RemainingDuration returns the time left as of the last synchronization.
func (c *CountdownTimer) RemainingDuration() Duration {
	return c.remaining
}

// PreviousSynchronizationTime returns the instant of the last successful sync.
func (c *CountdownTimer) PreviousSynchronizationTime() DateTime {
	return c.syncedAt
}

// ChangeRemainingDuration sets the remaining time. The total duration is
// raised when the new value exceeds it.
func (c *CountdownTimer) ChangeRemainingDuration(v Duration) {
	if v < 0 {
		v = 0
	}
	c.remaining = v
	if v > c.duration {
		c.duration = v
	}
}

// Synchronize consumes the wall-clock time elapsed since the previous
// synchronization. A now earlier than the stored synchronization time is
// ignored entirely.
func (c *CountdownTimer) Synchronize(now DateTime) {
	elapsed, ok := now.Since(c.syncedAt)
	if !ok {
		return
	}
	c.remaining = c.remaining.SaturatingSub(elapsed)
	c.syncedAt = now
}

// Clone returns an independent copy.
func (c *CountdownTimer) Clone() *CountdownTimer {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

type countdownJSON struct {
	DurationMs  int64    `json:"duration_ms"`
	RemainingMs int64    `json:"remaining_ms"`
	SyncedAt    DateTime `json:"synchronized_at"`
}

func (c *CountdownTimer) MarshalJSON() ([]byte, error) {
	return json.Marshal(countdownJSON{
		DurationMs:  c.duration.Milliseconds(),
		RemainingMs: c.remaining.Milliseconds(),
		SyncedAt:    c.syncedAt,
	})
}

func (c *CountdownTimer) UnmarshalJSON(data []byte) error {
	var raw countdownJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.duration = FromMilliseconds(raw.DurationMs)
	c.remaining = FromMilliseconds(raw.RemainingMs)
	if c.remaining > c.duration {
		c.duration = c.remaining
	}
	c.syncedAt = raw.SyncedAt
	return nil
}
