// Package chunkcache holds the bounded set of recently loaded chunks the
// store keeps warm for repeated access. Capacity is measured in chunk
// count, not bytes — chunk size is fixed at store-open time (spec.md
// §6's chunk_size knob), so bounding by count already bounds memory to
// roughly chunkSize*capacity, and a count-based cache never needs to
// estimate per-record size.
package chunkcache

import (
	"container/list"
	"sync"

	"github.com/opnsense-tools/fwlogstore/record"
)

// entry is the value stored behind each list element.
type entry struct {
	chunkID int
	records []record.Record
}

// Cache is a thread-safe least-recently-used cache from chunk ID to its
// decoded records.
type Cache struct {
	capacity int

	mu    sync.Mutex
	items map[int]*list.Element
	order *list.List

	hits   int64
	misses int64
}

// New creates a Cache holding at most capacity chunks. A non-positive
// capacity is treated as 1 — a cache that never retains anything still
// has to behave like a cache, not a no-op.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[int]*list.Element),
		order:    list.New(),
	}
}

// Get returns the records for chunkID, marking it most-recently-used.
func (c *Cache) Get(chunkID int) ([]record.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[chunkID]
	if !ok {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return elem.Value.(*entry).records, true
}

// Put inserts or refreshes chunkID's records, evicting the
// least-recently-used chunk if the cache is over capacity.
func (c *Cache) Put(chunkID int, records []record.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[chunkID]; ok {
		elem.Value.(*entry).records = records
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&entry{chunkID: chunkID, records: records})
	c.items[chunkID] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).chunkID)
		}
	}
}

// Invalidate drops every cached chunk. Called whenever a resolver is
// swapped: cached records carry resolver-derived fields
// (interface_display) baked in at decode time, and a new resolver
// invalidates all of them at once rather than selectively.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[int]*list.Element)
	c.order = list.New()
	c.hits = 0
	c.misses = 0
}

// Len returns the number of chunks currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// MemoryInfo summarizes the cache's current footprint and hit ratio, the
// data behind the store facade's memory_info operation (spec.md §4.7).
type MemoryInfo struct {
	ChunksCached  int
	CachedRecords int
	Capacity      int
	Hits          int64
	Misses        int64
}

// MemoryInfo reports the cache's current state.
func (c *Cache) MemoryInfo() MemoryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := MemoryInfo{
		ChunksCached: c.order.Len(),
		Capacity:     c.capacity,
		Hits:         c.hits,
		Misses:       c.misses,
	}
	for e := c.order.Front(); e != nil; e = e.Next() {
		info.CachedRecords += len(e.Value.(*entry).records)
	}
	return info
}
