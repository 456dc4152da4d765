package cache

import (
	"time"

	"github.com/tiercache/tiercache/internal/eviction"
	"github.com/tiercache/tiercache/pkg/types"
)

// memoryStore is the in-process tier. It is not synchronized on its own;
// every call happens under the coordinator lock.
type memoryStore struct {
	items       map[string]*types.Entry
	currentSize int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[string]*types.Entry)}
}

func (m *memoryStore) get(key string) (*types.Entry, bool) {
	e, ok := m.items[key]
	return e, ok
}

// put stores e, replacing any entry with the same key.
func (m *memoryStore) put(e *types.Entry) {
	if old, ok := m.items[e.Key]; ok {
		m.currentSize -= old.SizeBytes
	}
	m.items[e.Key] = e
	m.currentSize += e.SizeBytes
}

func (m *memoryStore) remove(key string) (*types.Entry, bool) {
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	delete(m.items, key)
	m.currentSize -= e.SizeBytes
	return e, true
}

// clear drops every entry and returns how many there were.
func (m *memoryStore) clear() int {
	n := len(m.items)
	m.items = make(map[string]*types.Entry)
	m.currentSize = 0
	return n
}

func (m *memoryStore) entries() []*types.Entry {
	out := make([]*types.Entry, 0, len(m.items))
	for _, e := range m.items {
		out = append(out, e)
	}
	return out
}

func (m *memoryStore) len() int { return len(m.items) }

func (m *memoryStore) size() int64 { return m.currentSize }

// removeExpired drops entries the strategy considers expired.
func (m *memoryStore) removeExpired(strategy types.Strategy, now time.Time) int {
	if !strategy.HasTTL() {
		return 0
	}
	expired := eviction.Expired(m.entries(), strategy, now)
	for _, e := range expired {
		m.remove(e.Key)
	}
	return len(expired)
}

// overflows reports whether adding an entry of size bytes would break the
// byte limit or the strategy's entry capacity.
func (m *memoryStore) overflows(size, limit int64, capacity int) bool {
	if limit > 0 && m.currentSize+size > limit {
		return true
	}
	return capacity > 0 && len(m.items)+1 > capacity
}

// evictFor removes entries in policy order until an entry of size bytes
// fits, or nothing is left. Expired entries go first and are not counted.
func (m *memoryStore) evictFor(size, limit int64, strategy types.Strategy, now time.Time) (expired, evicted int) {
	if !m.overflows(size, limit, strategy.Capacity) {
		return 0, 0
	}
	expired = m.removeExpired(strategy, now)

	for _, e := range eviction.Order(m.entries(), strategy, now) {
		if !m.overflows(size, limit, strategy.Capacity) {
			break
		}
		m.remove(e.Key)
		evicted++
	}
	return expired, evicted
}

// trim shrinks the store to capacity entries in policy order.
func (m *memoryStore) trim(strategy types.Strategy, now time.Time) int {
	if strategy.Capacity <= 0 || len(m.items) <= strategy.Capacity {
		return 0
	}
	excess := len(m.items) - strategy.Capacity
	for _, e := range eviction.Order(m.entries(), strategy, now)[:excess] {
		m.remove(e.Key)
	}
	return excess
}
