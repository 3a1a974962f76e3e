package transport

import "sync"

// Status represents the lifecycle state of one robot connection.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusError        Status = "ERROR"
)

// StatusTracker holds the current connection status and broadcasts every
// transition on an events channel. Both connection variants embed one.
//
// Each external event produces exactly one transition; equal consecutive
// values are not deduplicated. Emission never blocks the transport: if the
// consumer lags past the buffer, transitions are dropped.
type StatusTracker struct {
	mu     sync.RWMutex
	status Status
	closed bool

	events chan Status
}

// NewStatusTracker starts at StatusDisconnected.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		status: StatusDisconnected,
		events: make(chan Status, 16),
	}
}

// Status returns the current value.
func (t *StatusTracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Set records a transition and broadcasts it.
func (t *StatusTracker) Set(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
	if t.closed {
		return
	}
	select {
	case t.events <- status:
	default:
	}
}

// Events returns the transition stream.
func (t *StatusTracker) Events() <-chan Status {
	return t.events
}

// CloseEvents closes the transition stream permanently.
func (t *StatusTracker) CloseEvents() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	close(t.events)
}
