// Package cache provides the in-memory, ordered collection held by one mounted
// screen. It applies optimistic mutations and the server's reconciliation.
package cache

import (
	"sync"

	"orgsync/backend"
)

// tombstone remembers where a removed entity used to be
type tombstone struct {
	index int
}

// ListCache holds the collection of one resource kind in server order.
//
// Identifiers are unique after every operation. An entity removed and later
// re-inserted under the same identifier returns to its former position.
// Every method is safe for concurrent use; a closed cache ignores writes.
type ListCache[E backend.Entity] struct {
	mu      sync.RWMutex
	items   []E
	order   []backend.ID // every identifier since Load, removed ones included
	removed map[backend.ID]tombstone
	closed  bool
}

// New creates an empty cache
func New[E backend.Entity]() *ListCache[E] {
	return &ListCache[E]{removed: make(map[backend.ID]tombstone)}
}

// Load replaces the collection wholesale and forgets removal positions.
// When items repeats an identifier, the first position keeps the last value.
func (c *ListCache[E]) Load(items []E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	pos := make(map[backend.ID]int, len(items))
	next := make([]E, 0, len(items))
	for _, e := range items {
		if i, ok := pos[e.GetID()]; ok {
			next[i] = e
			continue
		}
		pos[e.GetID()] = len(next)
		next = append(next, e)
	}

	c.items = next
	c.order = make([]backend.ID, len(next))
	for i, e := range next {
		c.order[i] = e.GetID()
	}
	c.removed = make(map[backend.ID]tombstone)
}

// Insert appends e, or replaces the entity with the same identifier in place.
// An identifier removed earlier is put back at its former position.
func (c *ListCache[E]) Insert(e E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	id := e.GetID()
	if i := c.indexOf(id); i >= 0 {
		c.items[i] = e
		return
	}

	if ts, ok := c.removed[id]; ok {
		delete(c.removed, id)
		c.insertAt(c.restoreIndex(id, ts), e)
		return
	}
	c.insertAt(len(c.items), e)
	c.track(len(c.items) - 1)
}

// Restore puts e back where it was removed from. Rows restored in any order
// after several removals regain their original relative order. An identifier
// never removed goes to index, clamped to the collection bounds. If the
// identifier is already present the entity is replaced in place, so applying
// the same restore twice has the effect of applying it once.
func (c *ListCache[E]) Restore(e E, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	id := e.GetID()
	if i := c.indexOf(id); i >= 0 {
		c.items[i] = e
		return
	}
	if ts, ok := c.removed[id]; ok {
		delete(c.removed, id)
		c.insertAt(c.restoreIndex(id, ts), e)
		return
	}
	at := clamp(index, len(c.items))
	c.insertAt(at, e)
	c.track(at)
}

// Replace swaps the entity stored under id for e. It is a no-op returning
// false when id is absent, since the row may have been removed meanwhile.
func (c *ListCache[E]) Replace(id backend.ID, e E) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.items[i] = e

	// Keep identifiers unique if the replacement carries another one
	if newID := e.GetID(); newID != id {
		for j := range c.items {
			if j != i && c.items[j].GetID() == newID {
				c.items = append(c.items[:j], c.items[j+1:]...)
				break
			}
		}
		c.rename(id, newID)
	}
	return true
}

// RemoveByID removes the entity stored under id and returns it with its
// former index. ok is false when id is absent.
func (c *ListCache[E]) RemoveByID(id backend.ID) (removed E, index int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return removed, -1, false
	}

	i := c.indexOf(id)
	if i < 0 {
		return removed, -1, false
	}

	removed = c.items[i]
	c.removed[id] = tombstone{index: i}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return removed, i, true
}

// Get returns the entity stored under id
func (c *ListCache[E]) Get(id backend.ID) (E, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	var zero E
	return zero, false
}

// IndexOf returns the position of id, or -1
func (c *ListCache[E]) IndexOf(id backend.ID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexOf(id)
}

// Snapshot returns a copy of the collection in order
func (c *ListCache[E]) Snapshot() []E {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]E, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of entities
func (c *ListCache[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close discards the collection. Later writes, including late network
// results, are ignored.
func (c *ListCache[E]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items = nil
	c.order = nil
	c.removed = nil
}

// Closed reports whether Close was called
func (c *ListCache[E]) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *ListCache[E]) indexOf(id backend.ID) int {
	for i, e := range c.items {
		if e.GetID() == id {
			return i
		}
	}
	return -1
}

func (c *ListCache[E]) orderOf(id backend.ID) int {
	for i, o := range c.order {
		if o == id {
			return i
		}
	}
	return -1
}

// restoreIndex places a removed identifier before the nearest live identifier
// that followed it, or after the nearest live one that preceded it. The
// former index is used when the identifier is not tracked.
func (c *ListCache[E]) restoreIndex(id backend.ID, ts tombstone) int {
	pos := c.orderOf(id)
	if pos < 0 {
		return ts.index
	}
	for j := pos + 1; j < len(c.order); j++ {
		if i := c.indexOf(c.order[j]); i >= 0 {
			return i
		}
	}
	for j := pos - 1; j >= 0; j-- {
		if i := c.indexOf(c.order[j]); i >= 0 {
			return i + 1
		}
	}
	return 0
}

// track records the identifier just inserted at items[at] in the order,
// ahead of the live identifier that now follows it
func (c *ListCache[E]) track(at int) {
	id := c.items[at].GetID()
	if c.orderOf(id) >= 0 {
		return
	}
	pos := len(c.order)
	if at+1 < len(c.items) {
		if p := c.orderOf(c.items[at+1].GetID()); p >= 0 {
			pos = p
		}
	}
	c.order = append(c.order, 0)
	copy(c.order[pos+1:], c.order[pos:])
	c.order[pos] = id
}

// rename moves id's place in the order to newID
func (c *ListCache[E]) rename(id, newID backend.ID) {
	delete(c.removed, newID)
	if p := c.orderOf(newID); p >= 0 {
		c.order = append(c.order[:p], c.order[p+1:]...)
	}
	if p := c.orderOf(id); p >= 0 {
		c.order[p] = newID
		return
	}
	c.track(c.indexOf(newID))
}

func clamp(at, n int) int {
	if at < 0 {
		return 0
	}
	if at > n {
		return n
	}
	return at
}

func (c *ListCache[E]) insertAt(at int, e E) {
	at = clamp(at, len(c.items))
	var zero E
	c.items = append(c.items, zero)
	copy(c.items[at+1:], c.items[at:])
	c.items[at] = e
}
