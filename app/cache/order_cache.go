package cache

import (
	"sync"
	"time"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
)

// OrderCache is a best-effort TTL cache for order snapshots. It is never a
// source of truth: every successful mutation invalidates the affected entry
// synchronously, and entries otherwise expire passively.
type OrderCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[uint64]cacheEntry
	nowFunc func() time.Time
}

type cacheEntry struct {
	order     entity.Order
	expiresAt time.Time
}

func NewOrderCache(ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &OrderCache{
		ttl:     ttl,
		entries: map[uint64]cacheEntry{},
		nowFunc: time.Now,
	}
}

func (c *OrderCache) Get(id uint64) (*entity.Order, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.nowFunc().After(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.entries[id]; ok && c.nowFunc().After(current.expiresAt) {
			delete(c.entries, id)
		}
		c.mu.Unlock()
		return nil, false
	}

	snapshot := cloneOrder(&entry.order)
	return snapshot, true
}

func (c *OrderCache) Set(order *entity.Order) {
	if order == nil {
		return
	}
	snapshot := cloneOrder(order)

	c.mu.Lock()
	c.entries[order.ID] = cacheEntry{
		order:     *snapshot,
		expiresAt: c.nowFunc().Add(c.ttl),
	}
	c.mu.Unlock()
}

func (c *OrderCache) Invalidate(id uint64) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

func (c *OrderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneOrder(order *entity.Order) *entity.Order {
	clone := *order
	clone.Items = make([]entity.OrderItem, len(order.Items))
	copy(clone.Items, order.Items)
	return &clone
}
