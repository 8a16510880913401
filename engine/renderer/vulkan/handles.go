package vulkan

import "sync"

// handleTable hands out the opaque ids behind every hal handle. Ids start
// at 1 and are never reused, so a stale id misses instead of aliasing.
type handleTable[T any] struct {
	mu    sync.RWMutex
	next  uint64
	items map[uint64]T
}

func newHandleTable[T any]() *handleTable[T] {
	return &handleTable[T]{items: make(map[uint64]T)}
}

func (t *handleTable[T]) put(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *handleTable[T]) get(id uint64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[id]
	return v, ok
}

// take removes id and returns what it held.
func (t *handleTable[T]) take(id uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[id]
	if ok {
		delete(t.items, id)
	}
	return v, ok
}

func (t *handleTable[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// drain empties the table, calling fn for every leftover entry.
func (t *handleTable[T]) drain(fn func(T)) {
	t.mu.Lock()
	items := t.items
	t.items = make(map[uint64]T)
	t.mu.Unlock()
	for _, v := range items {
		fn(v)
	}
}

// removeIf drops every entry matching fn without destroying anything.
func (t *handleTable[T]) removeIf(fn func(T) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, v := range t.items {
		if fn(v) {
			delete(t.items, id)
		}
	}
}
