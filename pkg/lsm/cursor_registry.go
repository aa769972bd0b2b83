package lsm

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// CursorHandle identifies a live, registered Cursor for RPC callers
// (pkg/rpc's LSMTreeService).
type CursorHandle uint64

// CursorRegistry is an LRU map of open cursors keyed by handle, each
// carrying a TTL that a background sweep (or lazy access-time eviction)
// expires and that refreshes on access. Evicts by deadline rather than
// by capacity.
type CursorRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[CursorHandle]*list.Element
	order   *list.List // front = most recently touched
}

// handleCounter mints process-wide unique cursor handles, so a handle
// identifies its cursor unambiguously even across registries (one registry
// exists per managed LSM tree).
var handleCounter uint64

type registryEntry struct {
	handle   CursorHandle
	cursor   *Cursor
	deadline time.Time
}

// NewCursorRegistry builds a registry that expires cursors ttl after
// their last access.
func NewCursorRegistry(ttl time.Duration) *CursorRegistry {
	return &CursorRegistry{
		ttl:     ttl,
		entries: make(map[CursorHandle]*list.Element),
		order:   list.New(),
	}
}

// Register takes ownership of c and returns a fresh handle for it.
func (r *CursorRegistry) Register(c *Cursor) CursorHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := CursorHandle(atomic.AddUint64(&handleCounter, 1))
	e := &registryEntry{handle: h, cursor: c, deadline: time.Now().Add(r.ttl)}
	r.entries[h] = r.order.PushFront(e)
	return h
}

// Get returns the cursor for handle, refreshing its TTL. Returns false if
// handle is unknown or expired.
func (r *CursorRegistry) Get(handle CursorHandle) (*Cursor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpiredLocked()

	elem, ok := r.entries[handle]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*registryEntry)
	e.deadline = time.Now().Add(r.ttl)
	r.order.MoveToFront(elem)
	return e.cursor, true
}

// Renew extends handle's TTL without reading its cursor.
func (r *CursorRegistry) Renew(handle CursorHandle) bool {
	_, ok := r.Get(handle)
	return ok
}

// Dispose removes handle immediately.
func (r *CursorRegistry) Dispose(handle CursorHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elem, ok := r.entries[handle]; ok {
		r.order.Remove(elem)
		delete(r.entries, handle)
	}
}

// Sweep evicts every cursor whose TTL has elapsed, for a caller that
// wants to drive expiry from its own ticker instead of relying on lazy
// eviction inside Get.
func (r *CursorRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictExpiredLocked()
}

func (r *CursorRegistry) evictExpiredLocked() int {
	now := time.Now()
	evicted := 0
	for elem := r.order.Back(); elem != nil; {
		e := elem.Value.(*registryEntry)
		if e.deadline.After(now) {
			// TTL is uniform, so the back of the LRU list (least
			// recently touched) always has the earliest deadline.
			break
		}
		prev := elem.Prev()
		r.order.Remove(elem)
		delete(r.entries, e.handle)
		evicted++
		elem = prev
	}
	return evicted
}

// Len reports how many cursors are currently registered (including any
// not yet lazily swept past their deadline).
func (r *CursorRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
