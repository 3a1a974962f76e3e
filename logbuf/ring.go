// Package logbuf holds the bounded rolling log of robot responses: a
// fixed-capacity ring of classified entries where inserting into a full
// ring evicts the oldest entry.
package logbuf

import "errors"

// DefaultCapacity is the ring size used when no override is configured.
const DefaultCapacity = 50

// ErrInvalidCapacity is returned by New for a non-positive capacity.
var ErrInvalidCapacity = errors.New("logbuf: capacity must be positive")

// Ring is a fixed-capacity circular store of log entries.
//
// Ring is not synchronized; callers serialize access. In this application the
// orchestrator is the only writer and guards the ring with its own lock.
type Ring struct {
	entries []Entry
	next    int
	count   int
}

// New creates an empty ring holding at most capacity entries.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}, nil
}

// Insert appends entry, evicting the oldest retained entry once full.
func (r *Ring) Insert(entry Entry) {
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// All returns the retained entries oldest-first.
//
// When the ring has wrapped, the oldest entry sits at the write cursor, so
// the chronological order is reconstructed by reading cursor-first and
// wrapping around; no elements are ever shifted on insert.
func (r *Ring) All() []Entry {
	out := make([]Entry, 0, r.count)
	if r.count < len(r.entries) {
		return append(out, r.entries[:r.count]...)
	}
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Clear empties the ring.
func (r *Ring) Clear() {
	clear(r.entries)
	r.next = 0
	r.count = 0
}

// Len returns the number of retained entries.
func (r *Ring) Len() int { return r.count }

// Capacity returns the fixed maximum number of retained entries.
func (r *Ring) Capacity() int { return len(r.entries) }

// IsEmpty reports whether no entries are retained.
func (r *Ring) IsEmpty() bool { return r.count == 0 }

// IsFull reports whether the next insert will evict.
func (r *Ring) IsFull() bool { return r.count == len(r.entries) }
