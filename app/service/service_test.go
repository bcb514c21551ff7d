package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/metrics"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/repository"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/config"
)

type serviceOrderRepo struct {
	mu     sync.Mutex
	orders map[uint64]*entity.Order
	nextID uint64
}

func newServiceOrderRepo() *serviceOrderRepo {
	return &serviceOrderRepo{
		orders: map[uint64]*entity.Order{},
		nextID: 1,
	}
}

func (r *serviceOrderRepo) Create(_ context.Context, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.orders {
		if item.UserID == order.UserID && item.ClientToken == order.ClientToken {
			return repository.ErrOrderAlreadyExists
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := cloneOrderForTest(order)
	copyItem.ID = id
	r.orders[id] = copyItem
	order.ID = id
	return nil
}

func (r *serviceOrderRepo) FindByID(_ context.Context, id uint64) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrderForTest(item), nil
}

func (r *serviceOrderRepo) FindByUserToken(_ context.Context, userID uint64, clientToken string) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.orders {
		if item.UserID == userID && item.ClientToken == clientToken {
			return cloneOrderForTest(item), nil
		}
	}
	return nil, nil
}

func (r *serviceOrderRepo) UpdateStatusIfVersion(_ context.Context, id uint64, expectedVersion int64, newStatus string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.orders[id]
	if !ok || item.Version != expectedVersion {
		return false, nil
	}
	item.Status = newStatus
	item.Version++
	item.UpdatedAt = now
	return true, nil
}

func (r *serviceOrderRepo) List(_ context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	items := r.filtered(filter)
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })

	start := int(filter.Offset)
	if start > len(items) {
		return []*entity.Order{}, nil
	}
	end := start + int(filter.Limit)
	if filter.Limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

func (r *serviceOrderRepo) Count(_ context.Context, filter repository.OrderFilter) (int64, error) {
	return int64(len(r.filtered(filter))), nil
}

func (r *serviceOrderRepo) filtered(filter repository.OrderFilter) []*entity.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Order, 0)
	for _, item := range r.orders {
		if filter.UserID != 0 && item.UserID != filter.UserID {
			continue
		}
		if filter.HasStatus && item.Status != filter.Status {
			continue
		}
		if filter.Query != "" {
			match := false
			for _, it := range item.Items {
				if strings.Contains(it.SKU, filter.Query) {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		items = append(items, cloneOrderForTest(item))
	}
	return items
}

func cloneOrderForTest(order *entity.Order) *entity.Order {
	clone := *order
	clone.Items = make([]entity.OrderItem, len(order.Items))
	copy(clone.Items, order.Items)
	return &clone
}

type serviceEventRepo struct {
	mu     sync.Mutex
	events []*entity.OrderEvent
}

func (r *serviceEventRepo) Create(_ context.Context, event *entity.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

func (r *serviceEventRepo) byType(eventType string) []*entity.OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]*entity.OrderEvent, 0)
	for _, event := range r.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type serviceIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*entity.IdempotencyRecord
}

func newServiceIdempotencyRepo() *serviceIdempotencyRepo {
	return &serviceIdempotencyRepo{records: map[string]*entity.IdempotencyRecord{}}
}

func idemKey(scope, key string) string { return scope + "|" + key }

func (r *serviceIdempotencyRepo) Reserve(_ context.Context, scope, key string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[idemKey(scope, key)]; ok {
		return false, nil
	}
	r.records[idemKey(scope, key)] = &entity.IdempotencyRecord{
		Scope:     scope,
		Key:       key,
		Status:    entity.IdempotencyReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (r *serviceIdempotencyRepo) Get(_ context.Context, scope, key string) (*entity.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.records[idemKey(scope, key)]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *serviceIdempotencyRepo) Complete(_ context.Context, scope, key, resultJSON string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.records[idemKey(scope, key)]
	if !ok {
		return repository.ErrIdempotencyRecordNotFound
	}
	item.Status = entity.IdempotencyCompleted
	item.ResultJSON = &resultJSON
	item.UpdatedAt = now
	return nil
}

func (r *serviceIdempotencyRepo) ReclaimStale(_ context.Context, scope, key string, cutoff, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.records[idemKey(scope, key)]
	if !ok || item.Status != entity.IdempotencyReserved || item.UpdatedAt.After(cutoff) {
		return false, nil
	}
	item.UpdatedAt = now
	return true, nil
}

func (r *serviceIdempotencyRepo) Release(_ context.Context, scope, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.records[idemKey(scope, key)]
	if ok && item.Status == entity.IdempotencyReserved {
		delete(r.records, idemKey(scope, key))
	}
	return nil
}

func (r *serviceIdempotencyRepo) DeleteCompletedBefore(_ context.Context, cutoff time.Time, limit int32) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for key, item := range r.records {
		if deleted >= int64(limit) {
			break
		}
		if item.Status == entity.IdempotencyCompleted && item.UpdatedAt.Before(cutoff) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted, nil
}

type serviceCache struct {
	mu            sync.Mutex
	entries       map[uint64]*entity.Order
	invalidations int
}

func newServiceCache() *serviceCache {
	return &serviceCache{entries: map[uint64]*entity.Order{}}
}

func (c *serviceCache) Get(id uint64) (*entity.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return cloneOrderForTest(item), true
}

func (c *serviceCache) Set(order *entity.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[order.ID] = cloneOrderForTest(order)
}

func (c *serviceCache) Invalidate(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidations++
}

type serviceDeadLetterRepo struct {
	mu      sync.Mutex
	records []*entity.WebhookDeadLetter
	nextID  uint64
}

func newServiceDeadLetterRepo() *serviceDeadLetterRepo {
	return &serviceDeadLetterRepo{nextID: 1}
}

func (r *serviceDeadLetterRepo) Create(_ context.Context, record *entity.WebhookDeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *record
	copyItem.ID = r.nextID
	r.nextID++
	r.records = append(r.records, &copyItem)
	record.ID = copyItem.ID
	return nil
}

func (r *serviceDeadLetterRepo) List(_ context.Context, limit, offset int32) ([]*entity.WebhookDeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.WebhookDeadLetter, 0)
	for _, record := range r.records {
		copyItem := *record
		items = append(items, &copyItem)
	}
	start := int(offset)
	if start > len(items) {
		return []*entity.WebhookDeadLetter{}, nil
	}
	end := start + int(limit)
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

func (r *serviceDeadLetterRepo) all() []*entity.WebhookDeadLetter {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.WebhookDeadLetter, 0, len(r.records))
	for _, record := range r.records {
		copyItem := *record
		items = append(items, &copyItem)
	}
	return items
}

func configForShortWait() config.IdempotencyConfig {
	return config.IdempotencyConfig{
		WaitTimeout:  30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
}

func newLedgerForTest(repo *serviceIdempotencyRepo) *Ledger {
	return NewLedger(repo, config.IdempotencyConfig{
		WaitTimeout:  2 * time.Second,
		PollInterval: 5 * time.Millisecond,
	})
}

func newOrderServiceForTest(repo *serviceOrderRepo, eventRepo *serviceEventRepo, cache *serviceCache) (*OrderService, *metrics.Counters) {
	counters := metrics.NewCounters()
	ledger := newLedgerForTest(newServiceIdempotencyRepo())
	svc := NewOrderService(repo, eventRepo, ledger, cache, counters, config.OrdersConfig{
		UnitPriceCents:         1000,
		PaymentRedirectBaseURL: "https://provider.example/pay",
	})
	return svc, counters
}

func newOrderServiceWithRepo(repo orderRepository, ledger *Ledger) *OrderService {
	return NewOrderService(repo, &serviceEventRepo{}, ledger, newServiceCache(), metrics.NewCounters(), config.OrdersConfig{
		UnitPriceCents: 1000,
	})
}

func newWebhookServiceForTest(
	repo *serviceOrderRepo,
	deadRepo *serviceDeadLetterRepo,
	retryCfg config.RetryConfig,
) (*WebhookService, *RetryScheduler, *metrics.Counters, *serviceIdempotencyRepo) {
	counters := metrics.NewCounters()
	idemRepo := newServiceIdempotencyRepo()
	ledger := newLedgerForTest(idemRepo)
	cache := newServiceCache()
	orders := NewOrderService(repo, &serviceEventRepo{}, ledger, cache, counters, config.OrdersConfig{UnitPriceCents: 1000})
	scheduler := NewRetryScheduler(deadRepo, retryCfg, counters)
	webhooks := NewWebhookService(orders, ledger, scheduler, deadRepo, config.WebhookConfig{
		Secret:          "test-secret",
		ConflictRetries: 3,
	}, counters)
	return webhooks, scheduler, counters, idemRepo
}
