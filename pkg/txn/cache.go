// Package txn remembers recently processed transaction ids so redelivered
// transactions are acknowledged without being handled twice.
package txn

import "sync"

// DefaultCapacity is the number of ids remembered.
const DefaultCapacity = 128

// Cache is a fixed-capacity ring of ids. When full, the oldest eighth of the
// ring is forgotten in one block before the next insert.
type Cache struct {
	mu    sync.RWMutex
	ids   map[string]struct{}
	ring  []string
	next  int
	count int
}

// NewCache returns a cache holding up to capacity ids; capacity <= 0 uses
// DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Cache{
		ids:  make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

// IsProcessed reports whether id was marked and not yet evicted.
func (c *Cache) IsProcessed(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.ids[id]
	return ok
}

// MarkProcessed records id and reports whether it was new. Exactly one of
// several concurrent callers marking the same id gets true.
func (c *Cache) MarkProcessed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[id]; ok {
		return false
	}

	if c.count == len(c.ring) {
		c.evictBlock()
	}

	c.ring[c.next] = id
	c.ids[id] = struct{}{}
	c.next = (c.next + 1) % len(c.ring)
	c.count++
	return true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.count
}

// evictBlock drops the oldest len/8 ids, at least one.
func (c *Cache) evictBlock() {
	n := max(len(c.ring)/8, 1)
	oldest := (c.next - c.count + len(c.ring)) % len(c.ring)
	for i := range n {
		slot := (oldest + i) % len(c.ring)
		delete(c.ids, c.ring[slot])
		c.ring[slot] = ""
	}
	c.count -= n
}
