package frame

import (
	"sync/atomic"
)

// Mailbox is a single-slot hand-off. Put overwrites any value that has not
// been taken yet, so a slow consumer sees only the newest value and older
// ones are dropped instead of queued.
//
// Safe for concurrent use. The zero value is an empty mailbox.
type Mailbox[T any] struct {
	slot  atomic.Pointer[T]
	puts  atomic.Uint64
	drops atomic.Uint64
}

// Put stores v, replacing any pending value. It reports whether a pending
// value was overwritten.
func (m *Mailbox[T]) Put(v *T) bool {
	m.puts.Add(1)
	if old := m.slot.Swap(v); old != nil {
		m.drops.Add(1)
		return true
	}
	return false
}

// Take removes and returns the pending value, or nil if there is none.
func (m *Mailbox[T]) Take() *T {
	return m.slot.Swap(nil)
}

// Puts is the number of values ever stored.
func (m *Mailbox[T]) Puts() uint64 { return m.puts.Load() }

// Drops is the number of values overwritten before being taken.
func (m *Mailbox[T]) Drops() uint64 { return m.drops.Load() }
