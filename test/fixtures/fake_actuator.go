// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// FakeActuator records the OS state the daemon asks for instead of
// touching real accounts and firewall rules.
type FakeActuator struct {
	mu         sync.Mutex
	passwords  map[string]string
	blocked    map[uint32]bool
	terminated map[string]int
	calls      int
	failNext   error
}

// NewFakeActuator creates an actuator where every account is allowed.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{
		passwords:  make(map[string]string),
		blocked:    make(map[uint32]bool),
		terminated: make(map[string]int),
	}
}

// FailNext makes the next actuation return err.
func (f *FakeActuator) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

func (f *FakeActuator) fail() error {
	f.calls++
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *FakeActuator) BlockTraffic(_ context.Context, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.blocked[uid] = true
	return nil
}

func (f *FakeActuator) AllowTraffic(_ context.Context, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	delete(f.blocked, uid)
	return nil
}

func (f *FakeActuator) ChangePassword(_ context.Context, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.passwords[username] = password
	return nil
}

func (f *FakeActuator) TerminateSessions(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.terminated[username]++
	return nil
}

// Password returns the password last set for username.
func (f *FakeActuator) Password(username string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passwords[username]
}

// TrafficBlocked reports whether uid's traffic is dropped.
func (f *FakeActuator) TrafficBlocked(uid uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked[uid]
}

// Terminations returns how often username's sessions were ended.
func (f *FakeActuator) Terminations(username string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated[username]
}

// Calls returns the number of actuations attempted.
func (f *FakeActuator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ManualClock is a domain.Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now timing.DateTime
}

// NewManualClock creates a clock stopped at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: timing.FromTime(t)}
}

func (c *ManualClock) Now() timing.DateTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(timing.FromStd(d))
}

// Set moves the clock to t, which may be in the past.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = timing.FromTime(t)
}

// StaticPasswords generates the same lock password every time.
type StaticPasswords string

func (p StaticPasswords) Generate() (string, error) { return string(p), nil }

// Ensure fakes implement domain interfaces
var (
	_ domain.Actuator          = (*FakeActuator)(nil)
	_ domain.Clock             = (*ManualClock)(nil)
	_ domain.PasswordGenerator = StaticPasswords("")
)
