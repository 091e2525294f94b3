package daemon

import (
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// Status is a point-in-time copy of the daemon's health.
type Status struct {
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	LastPassAt    time.Time `json:"last_pass_at,omitempty"`
	Passes        int64     `json:"passes"`
	Actuations    int64     `json:"actuations"`
	Failures      int64     `json:"failures"`
	LastError     string    `json:"last_error,omitempty"`
	Pending       int       `json:"pending_tasks"`
}

// StatusHandle is shared between the regulator loop and whoever reports
// on it (the HTTP health endpoint).
type StatusHandle struct {
	mu     sync.Mutex
	status Status
}

// NewStatusHandle creates a handle for the process pid.
func NewStatusHandle(pid int) *StatusHandle {
	return &StatusHandle{status: Status{PID: pid}}
}

func (h *StatusHandle) markStarted(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.StartedAt = at
	h.status.LastHeartbeat = at
}

func (h *StatusHandle) heartbeat(at time.Time, pending int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.LastHeartbeat = at
	h.status.Pending = pending
}

func (h *StatusHandle) recordPass(result *domain.EnforcementResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Passes++
	h.status.LastPassAt = result.ExecutedAt
	if result.Actuated {
		h.status.Actuations++
	}
}

func (h *StatusHandle) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Failures++
	h.status.LastError = err.Error()
}

// Snapshot returns a copy of the current status.
func (h *StatusHandle) Snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}
