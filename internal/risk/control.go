package risk

import (
	"fmt"
	"sync"
	"time"
)

// EmergencyAction is one of the operator kill-switch actions.
type EmergencyAction string

const (
	ActionPauseTrading EmergencyAction = "pauseTrading"
	ActionCancelAll    EmergencyAction = "cancelAll"
	ActionCloseAll     EmergencyAction = "closeAll"
	ActionDisableLive  EmergencyAction = "disableLive"
)

// ParseEmergencyAction validates a wire action string.
func ParseEmergencyAction(raw string) (EmergencyAction, error) {
	switch EmergencyAction(raw) {
	case ActionPauseTrading, ActionCancelAll, ActionCloseAll, ActionDisableLive:
		return EmergencyAction(raw), nil
	}
	return "", fmt.Errorf("risk: unknown emergency action %q", raw)
}

// ControlStatus is the public snapshot of the kill-switch state.
type ControlStatus struct {
	EmergencyStopActive bool           `json:"emergencyStopActive"`
	LastAction          *string        `json:"lastAction"`
	LastReason          *string        `json:"lastReason"`
	UpdatedAt           *string        `json:"updatedAt"`
	ActionCounts        map[string]int `json:"actionCounts"`
}

// ControlState is the process-wide emergency-stop gate. It starts armed
// (trading permitted) and is safe for concurrent use.
type ControlState struct {
	mu           sync.Mutex
	stopActive   bool
	lastAction   *EmergencyAction
	lastReason   *string
	updatedAt    *string
	actionCounts map[EmergencyAction]int
	now          func() time.Time
}

// NewControlState returns an armed control state with zeroed counters.
func NewControlState() *ControlState {
	return &ControlState{
		actionCounts: map[EmergencyAction]int{
			ActionPauseTrading: 0,
			ActionCancelAll:    0,
			ActionCloseAll:     0,
			ActionDisableLive:  0,
		},
		now: time.Now,
	}
}

// Activate engages the emergency stop, records the action and reason, and
// increments the action counter.
func (c *ControlState) Activate(action EmergencyAction, reason *string) ControlStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopActive = true
	c.lastAction = &action
	c.lastReason = reason
	ts := c.now().UTC().Format(time.RFC3339Nano)
	c.updatedAt = &ts
	c.actionCounts[action]++
	return c.statusLocked()
}

// Resume disengages the emergency stop. Counters and last action are
// preserved; the reason is overwritten only when provided.
func (c *ControlState) Resume(reason *string) ControlStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopActive = false
	if reason != nil {
		c.lastReason = reason
	}
	ts := c.now().UTC().Format(time.RFC3339Nano)
	c.updatedAt = &ts
	return c.statusLocked()
}

// Status returns the current public snapshot.
func (c *ControlState) Status() ControlStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Active reports whether the emergency stop is engaged.
func (c *ControlState) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopActive
}

func (c *ControlState) statusLocked() ControlStatus {
	counts := make(map[string]int, len(c.actionCounts))
	for action, count := range c.actionCounts {
		counts[string(action)] = count
	}

	var lastAction *string
	if c.lastAction != nil {
		s := string(*c.lastAction)
		lastAction = &s
	}
	return ControlStatus{
		EmergencyStopActive: c.stopActive,
		LastAction:          lastAction,
		LastReason:          c.lastReason,
		UpdatedAt:           c.updatedAt,
		ActionCounts:        counts,
	}
}
