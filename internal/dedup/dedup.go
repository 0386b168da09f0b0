// Package dedup implements the bounded exec-id de-duplicator shared by a
// venue adapter's WS stream and its REST catch-up path, guaranteeing each
// exec_id/trade_id is admitted at most once.
package dedup

import (
	"container/list"
	"sync"
)

// Deduplicator is a bounded (queue, set) pair. Capacity defaults match the
// spec's WS (10000) and catch-up (50000) recommendations; callers pick the
// capacity appropriate to the stream they're guarding.
type Deduplicator struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	seen     map[string]*list.Element
}

// New creates a Deduplicator with the given capacity.
func New(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Deduplicator{
		capacity: capacity,
		order:    list.New(),
		seen:     make(map[string]*list.Element),
	}
}

// TryAdmit returns true exactly once per id; on overflow the oldest id is
// evicted to make room.
func (d *Deduplicator) TryAdmit(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	elem := d.order.PushBack(id)
	d.seen[id] = elem
	for d.order.Len() > d.capacity {
		oldest := d.order.Front()
		if oldest == nil {
			break
		}
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	return true
}

// Len reports the number of currently admitted ids.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
