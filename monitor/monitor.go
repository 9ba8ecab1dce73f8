package monitor

import (
	"sync"
	"sync/atomic"

	"swapflow/connector"
	"swapflow/logger"
)

// State is the connector health as seen by the monitor.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDown     State = "down"
)

const (
	// DefaultDegradedThreshold is the consecutive network-failure count at
	// which the connector is considered degraded.
	DefaultDegradedThreshold = 3
	// DefaultDownThreshold marks the connector down.
	DefaultDownThreshold = 10
)

// Monitor tracks consecutive connector failures and successes across all
// runs sharing one connector. One instance per connector; every counter
// update is atomic, state transitions are serialized. Only network-classified
// errors count toward failure streaks; any success resets to healthy
// immediately, there is no gradual recovery.
type Monitor struct {
	name              string
	degradedThreshold int64
	downThreshold     int64

	consecutiveFailures  atomic.Int64
	consecutiveSuccesses atomic.Int64
	totalAttempts        atomic.Int64
	totalFailures        atomic.Int64

	mu            sync.Mutex
	state         State
	lastErrorKind connector.Kind

	onChange func(State)
	log      *logger.Log
}

// New creates a Monitor. Thresholds at or below zero fall back to defaults.
// onChange, when non-nil, is invoked for every state transition.
func New(name string, degradedThreshold, downThreshold int, onChange func(State)) *Monitor {
	if degradedThreshold <= 0 {
		degradedThreshold = DefaultDegradedThreshold
	}
	if downThreshold <= degradedThreshold {
		downThreshold = DefaultDownThreshold
	}
	return &Monitor{
		name:              name,
		degradedThreshold: int64(degradedThreshold),
		downThreshold:     int64(downThreshold),
		state:             StateHealthy,
		onChange:          onChange,
		log:               logger.GetLogger(),
	}
}

// RecordSuccess notes a successful connector call and resets the failure
// streak. A monitor not in the healthy state transitions back immediately.
func (m *Monitor) RecordSuccess() {
	m.totalAttempts.Add(1)
	m.consecutiveFailures.Store(0)
	m.consecutiveSuccesses.Add(1)

	m.mu.Lock()
	if m.state == StateHealthy {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = StateHealthy
	onChange := m.onChange
	m.mu.Unlock()

	m.log.WithComponent("monitor").WithFields(logger.Fields{
		"connector": m.name,
		"from":      string(prev),
	}).Info("connection restored")
	if onChange != nil {
		onChange(StateHealthy)
	}
}

// RecordFailure notes a failed connector call. Non-network errors are
// recorded in totals and as the last error kind but do not advance the
// failure streak.
func (m *Monitor) RecordFailure(err error) {
	m.totalAttempts.Add(1)
	m.totalFailures.Add(1)

	kind := connector.ClassifyKind(err)

	m.mu.Lock()
	m.lastErrorKind = kind
	m.mu.Unlock()

	if kind != connector.KindNetwork {
		return
	}

	m.consecutiveSuccesses.Store(0)
	streak := m.consecutiveFailures.Add(1)

	var next State
	switch {
	case streak >= m.downThreshold:
		next = StateDown
	case streak >= m.degradedThreshold:
		next = StateDegraded
	default:
		return
	}

	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	onChange := m.onChange
	m.mu.Unlock()

	m.log.WithComponent("monitor").WithFields(logger.Fields{
		"connector":            m.name,
		"state":                string(next),
		"consecutive_failures": streak,
	}).Warn("connection health changed")
	if onChange != nil {
		onChange(next)
	}
}

// Healthy reports whether the connector can be used without concern.
func (m *Monitor) Healthy() bool {
	return m.State() == StateHealthy
}

// State returns the current health state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastErrorKind returns the classification of the most recent failure.
func (m *Monitor) LastErrorKind() connector.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErrorKind
}

// ConsecutiveFailures returns the current network-failure streak.
func (m *Monitor) ConsecutiveFailures() int64 {
	return m.consecutiveFailures.Load()
}

// Stats is a point-in-time summary for reporting.
type Stats struct {
	Name                 string  `json:"name"`
	State                State   `json:"state"`
	TotalAttempts        int64   `json:"total_attempts"`
	TotalFailures        int64   `json:"total_failures"`
	ConsecutiveFailures  int64   `json:"consecutive_failures"`
	ConsecutiveSuccesses int64   `json:"consecutive_successes"`
	SuccessRate          float64 `json:"success_rate"`
}

// Snapshot returns current statistics.
func (m *Monitor) Snapshot() Stats {
	attempts := m.totalAttempts.Load()
	failures := m.totalFailures.Load()
	rate := 0.0
	if attempts > 0 {
		rate = float64(attempts-failures) / float64(attempts) * 100
	}
	return Stats{
		Name:                 m.name,
		State:                m.State(),
		TotalAttempts:        attempts,
		TotalFailures:        failures,
		ConsecutiveFailures:  m.consecutiveFailures.Load(),
		ConsecutiveSuccesses: m.consecutiveSuccesses.Load(),
		SuccessRate:          rate,
	}
}
