package impl

import (
	"strconv"
	"strings"
	"sync"

	"opdag/backend/types"
)

// OrderCache holds the topological orders computed for one store generation.
// Any other generation misses, so a mutation implicitly drops the cache.
type OrderCache struct {
	mu         sync.Mutex
	generation uint64
	orders     map[string][]types.Index
}

func newOrderCache() *OrderCache {
	return &OrderCache{orders: make(map[string][]types.Index)}
}

// Get returns the order cached for start at the given generation.
func (c *OrderCache) Get(start []types.Index, generation uint64) ([]types.Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return nil, false
	}
	order, ok := c.orders[startKey(start)]
	return order, ok
}

// Set caches order for start. Entries of other generations are dropped.
func (c *OrderCache) Set(start []types.Index, generation uint64, order []types.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.orders = make(map[string][]types.Index)
		c.generation = generation
	}
	c.orders[startKey(start)] = order
}

// Reset drops every entry. Needed when the store itself is replaced, since a
// new store may reach the same generation.
func (c *OrderCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.orders = make(map[string][]types.Index)
	c.generation = 0
}

// Len returns the number of cached orders.
func (c *OrderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.orders)
}

// startKey keeps the start order: the traversal result depends on it.
func startKey(start []types.Index) string {
	var b strings.Builder
	for i, idx := range start {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(idx)))
	}
	return b.String()
}
