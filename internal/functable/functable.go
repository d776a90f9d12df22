// Package functable implements the bounded arena behind script-side function
// references.
//
// The script side assigns ids from a counter that wraps back to zero once it
// exceeds a limit, so ids 0..limit are valid and old slots are overwritten.
// Each overwrite bumps the slot's generation and replaces its recorded
// source, which lets the host reject a reference whose slot has since been
// reused for a different function.
package functable

import (
	"sync"
)

// DefaultLimit is the largest id the script-side counter produces before it
// wraps.
const DefaultLimit = 200

// Table is a fixed-capacity, generation-tracked slot array. It is safe for
// concurrent use.
type Table[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
}

type slot[T any] struct {
	fn         T
	source     string
	generation uint64
	used       bool
}

// New returns a table holding ids 0..limit. A negative limit is treated as 0.
func New[T any](limit int) *Table[T] {
	t := new(Table[T])
	t.Reset(limit)
	return t
}

// Reset drops every slot and resizes the table for ids 0..limit.
func (t *Table[T]) Reset(limit int) {
	if limit < 0 {
		limit = 0
	}
	t.mu.Lock()
	t.slots = make([]slot[T], limit+1)
	t.mu.Unlock()
}

// Cap returns the number of slots.
func (t *Table[T]) Cap() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots)
}

// Len returns the number of occupied slots.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].used {
			n++
		}
	}
	return n
}

// Store places fn in slot id, overwriting any previous occupant. It returns
// false when id is out of range.
func (t *Table[T]) Store(id uint64, fn T, source string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id >= uint64(len(t.slots)) {
		return false
	}
	s := &t.slots[id]
	s.fn = fn
	s.source = source
	s.generation++
	s.used = true
	return true
}

// Load returns the occupant of slot id.
func (t *Table[T]) Load(id uint64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id >= uint64(len(t.slots)) || !t.slots[id].used {
		var zero T
		return zero, false
	}
	return t.slots[id].fn, true
}

// Generation returns how many times slot id has been written. Zero means the
// slot was never used or id is out of range.
func (t *Table[T]) Generation(id uint64) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id >= uint64(len(t.slots)) {
		return 0
	}
	return t.slots[id].generation
}

// Live reports whether slot id currently holds a function with the given
// source text. References to an overwritten slot are stale unless the new
// occupant has identical source.
//
// Source is the only thing a reference carries, so a different closure with
// the same text in a reused slot still counts as live. Generation can tell
// the two apart only for callers that recorded it when the slot was written.
func (t *Table[T]) Live(id uint64, source string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id >= uint64(len(t.slots)) {
		return false
	}
	s := t.slots[id]
	return s.used && s.source == source
}

// Delete clears slot id. The generation is kept, so refs to the old occupant
// stay stale.
func (t *Table[T]) Delete(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id >= uint64(len(t.slots)) {
		return false
	}
	var zero T
	t.slots[id].fn = zero
	t.slots[id].source = ""
	t.slots[id].used = false
	return true
}

// IDs returns the occupied slot ids in ascending order.
func (t *Table[T]) IDs() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]uint64, 0, len(t.slots))
	for i := range t.slots {
		if t.slots[i].used {
			ids = append(ids, uint64(i))
		}
	}
	return ids
}
