package metrics

import "sync/atomic"

// Counters is the single process-wide observability object. It is created at
// startup and injected into the components that increment it.
type Counters struct {
	OrdersCreated      atomic.Int64
	StatusUpdates      atomic.Int64
	WebhooksProcessed  atomic.Int64
	WebhookReplays     atomic.Int64
	WebhookRetries     atomic.Int64
	WebhookDeadLetters atomic.Int64
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"orders_created_total":       c.OrdersCreated.Load(),
		"status_updates_total":       c.StatusUpdates.Load(),
		"webhooks_processed_total":   c.WebhooksProcessed.Load(),
		"webhook_replays_total":      c.WebhookReplays.Load(),
		"webhook_retries_total":      c.WebhookRetries.Load(),
		"webhook_dead_letters_total": c.WebhookDeadLetters.Load(),
		"cache_hits_total":           c.CacheHits.Load(),
		"cache_misses_total":         c.CacheMisses.Load(),
	}
}
