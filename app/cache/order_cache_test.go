package cache

import (
	"testing"
	"time"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
)

func TestCacheReturnsStoredOrder(t *testing.T) {
	c := NewOrderCache(30 * time.Second)
	c.Set(&entity.Order{ID: 1, Status: entity.OrderStatusPending, Version: 1})

	got, ok := c.Get(1)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ID != 1 || got.Status != entity.OrderStatusPending {
		t.Fatalf("unexpected cached order: %+v", got)
	}
}

func TestCacheMissAfterTTL(t *testing.T) {
	now := time.Now()
	c := NewOrderCache(30 * time.Second)
	c.nowFunc = func() time.Time { return now }

	c.Set(&entity.Order{ID: 1, Status: entity.OrderStatusPending})

	now = now.Add(29 * time.Second)
	if _, ok := c.Get(1); !ok {
		t.Fatal("expected hit before ttl")
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected miss after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped, len=%d", c.Len())
	}
}

func TestCacheInvalidateRemovesEntry(t *testing.T) {
	c := NewOrderCache(30 * time.Second)
	c.Set(&entity.Order{ID: 1, Status: entity.OrderStatusPending})
	c.Invalidate(1)

	if _, ok := c.Get(1); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewOrderCache(30 * time.Second)
	c.Set(&entity.Order{ID: 1, Status: entity.OrderStatusPending, Items: []entity.OrderItem{{SKU: "sku-1", Qty: 2}}})

	first, _ := c.Get(1)
	first.Status = entity.OrderStatusPaid
	first.Items[0].Qty = 99

	second, _ := c.Get(1)
	if second.Status != entity.OrderStatusPending {
		t.Fatalf("cached order mutated through returned copy: %s", second.Status)
	}
	if second.Items[0].Qty != 2 {
		t.Fatalf("cached items mutated through returned copy: %d", second.Items[0].Qty)
	}
}
