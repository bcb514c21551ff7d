package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/metrics"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/repository"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/config"
)

const (
	defaultPageSize = int32(10)
	maxPageSize     = int32(100)
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

type orderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	FindByID(ctx context.Context, id uint64) (*entity.Order, error)
	FindByUserToken(ctx context.Context, userID uint64, clientToken string) (*entity.Order, error)
	UpdateStatusIfVersion(ctx context.Context, id uint64, expectedVersion int64, newStatus string, now time.Time) (bool, error)
	List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error)
	Count(ctx context.Context, filter repository.OrderFilter) (int64, error)
}

type orderEventRepository interface {
	Create(ctx context.Context, event *entity.OrderEvent) error
}

type orderCache interface {
	Get(id uint64) (*entity.Order, bool)
	Set(order *entity.Order)
	Invalidate(id uint64)
}

type ListOrdersQuery struct {
	UserID uint64
	Role   string
	Status string
	Query  string
	Page   int32
	Limit  int32
}

type PaymentIntent struct {
	PaymentID   string
	OrderID     uint64
	AmountCents int64
	RedirectURL string
}

type orderCreateResult struct {
	OrderID uint64 `json:"order_id"`
}

type OrderService struct {
	orderRepo orderRepository
	eventRepo orderEventRepository
	ledger    *Ledger
	cache     orderCache
	counters  *metrics.Counters
	ordersCfg config.OrdersConfig
}

func NewOrderService(
	orderRepo orderRepository,
	eventRepo orderEventRepository,
	ledger *Ledger,
	cache orderCache,
	counters *metrics.Counters,
	ordersCfg config.OrdersConfig,
) *OrderService {
	if ordersCfg.UnitPriceCents <= 0 {
		ordersCfg.UnitPriceCents = 1000
	}

	return &OrderService{
		orderRepo: orderRepo,
		eventRepo: eventRepo,
		ledger:    ledger,
		cache:     cache,
		counters:  counters,
		ordersCfg: ordersCfg,
	}
}

// CreateOrder creates an order keyed by (userID, clientToken). A repeated
// token returns the order produced the first time; wasNew distinguishes the
// cases for telemetry only, the returned order is identical either way.
func (s *OrderService) CreateOrder(ctx context.Context, userID uint64, items []entity.OrderItem, clientToken string) (*entity.Order, bool, error) {
	clientToken = strings.TrimSpace(clientToken)
	if userID == 0 || clientToken == "" {
		return nil, false, fmt.Errorf("%w: user id and client token are required", ErrValidation)
	}
	if err := validateItems(items); err != nil {
		return nil, false, err
	}

	key := strconv.FormatUint(userID, 10) + ":" + clientToken
	result, wasNew, err := s.ledger.GetOrCreate(ctx, entity.ScopeOrderCreate, key, func(ctx context.Context) ([]byte, error) {
		return s.persistOrder(ctx, userID, items, clientToken)
	})
	if err != nil {
		return nil, false, err
	}

	var stored orderCreateResult
	if err := json.Unmarshal(result, &stored); err != nil {
		return nil, false, fmt.Errorf("%w: decode stored create result: %v", ErrTransient, err)
	}

	order, err := s.orderRepo.FindByID(ctx, stored.OrderID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: load order: %v", ErrTransient, err)
	}
	if order == nil {
		return nil, false, fmt.Errorf("%w: order %d", ErrNotFound, stored.OrderID)
	}

	if wasNew {
		s.counters.OrdersCreated.Add(1)
	}
	s.cache.Invalidate(order.ID)

	return order, wasNew, nil
}

func (s *OrderService) persistOrder(ctx context.Context, userID uint64, items []entity.OrderItem, clientToken string) ([]byte, error) {
	now := time.Now().UTC()

	var amount int64
	for _, item := range items {
		amount += int64(item.Qty) * s.ordersCfg.UnitPriceCents
	}

	order := &entity.Order{
		UserID:      userID,
		Items:       items,
		AmountCents: amount,
		Status:      entity.OrderStatusPending,
		Version:     1,
		ClientToken: clientToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrOrderAlreadyExists) {
			// the unique (user, token) index raced ahead of the ledger
			existing, findErr := s.orderRepo.FindByUserToken(ctx, userID, clientToken)
			if findErr == nil && existing != nil {
				return json.Marshal(orderCreateResult{OrderID: existing.ID})
			}
		}
		return nil, fmt.Errorf("%w: create order: %v", ErrTransient, err)
	}

	_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
		OrderID:   order.ID,
		EventType: "order_created",
		NewStatus: order.Status,
		CreatedAt: now,
	})

	return json.Marshal(orderCreateResult{OrderID: order.ID})
}

// UpdateStatus applies a conditional status transition. External callers must
// hold the ADMIN role; SYSTEM is the reconciler's internal bypass. Version
// conflicts are surfaced, never retried here.
func (s *OrderService) UpdateStatus(ctx context.Context, id uint64, expectedVersion int64, newStatus, actorRole string) (*entity.Order, error) {
	if actorRole != entity.RoleAdmin && actorRole != entity.RoleSystem {
		return nil, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	if !entity.ValidStatus(newStatus) || newStatus == entity.OrderStatusPending {
		return nil, fmt.Errorf("%w: invalid target status %q", ErrValidation, newStatus)
	}
	if expectedVersion < 1 {
		return nil, fmt.Errorf("%w: version must be >= 1", ErrValidation)
	}

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load order: %v", ErrTransient, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	if order.Version != expectedVersion {
		return nil, fmt.Errorf("%w: expected version %d, got %d", ErrVersionConflict, expectedVersion, order.Version)
	}
	if !entity.TransitionAllowed(order.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, newStatus)
	}

	now := time.Now().UTC()
	applied, err := s.orderRepo.UpdateStatusIfVersion(ctx, id, expectedVersion, newStatus, now)
	if err != nil {
		return nil, fmt.Errorf("%w: update order status: %v", ErrTransient, err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: version %d is stale", ErrVersionConflict, expectedVersion)
	}

	oldStatus := order.Status
	order.Status = newStatus
	order.Version = expectedVersion + 1
	order.UpdatedAt = now

	_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
		OrderID:   id,
		EventType: "status_updated",
		OldStatus: &oldStatus,
		NewStatus: newStatus,
		CreatedAt: now,
	})

	s.counters.StatusUpdates.Add(1)
	s.cache.Invalidate(id)

	return order, nil
}

// ApplyPaymentOutcome applies a payment result against the order's current
// version, re-reading and retrying the conditional update a bounded number of
// times. Unknown orders and terminal-state violations are permanent;
// exhausted conflicts surface as transient for the retry scheduler.
func (s *OrderService) ApplyPaymentOutcome(ctx context.Context, orderID uint64, paymentID, newStatus string, conflictRetries int) (*entity.Order, error) {
	if conflictRetries < 1 {
		conflictRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		order, err := s.orderRepo.FindByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("%w: load order: %v", ErrTransient, err)
		}
		if order == nil {
			return nil, fmt.Errorf("%w: order %d not found", ErrPermanent, orderID)
		}

		updated, err := s.UpdateStatus(ctx, orderID, order.Version, newStatus, entity.RoleSystem)
		if err == nil {
			oldStatus := order.Status
			_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
				OrderID:   orderID,
				EventType: "payment_applied",
				OldStatus: &oldStatus,
				NewStatus: newStatus,
				PaymentID: &paymentID,
				CreatedAt: time.Now().UTC(),
			})
			return updated, nil
		}
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			continue
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: conflict retries exhausted: %v", ErrTransient, lastErr)
}

// GetOrder serves reads through the TTL cache. Access control applies on
// cache hits as well: non-admin callers only see their own orders.
func (s *OrderService) GetOrder(ctx context.Context, id, userID uint64, role string) (*entity.Order, error) {
	if cached, ok := s.cache.Get(id); ok {
		s.counters.CacheHits.Add(1)
		if !canReadOrder(cached, userID, role) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
		}
		return cached, nil
	}
	s.counters.CacheMisses.Add(1)

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load order: %v", ErrTransient, err)
	}
	if order == nil || !canReadOrder(order, userID, role) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}

	s.cache.Set(order)
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, query ListOrdersQuery) ([]*entity.Order, int64, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		return nil, 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, maxPageSize)
	}

	status := strings.ToUpper(strings.TrimSpace(query.Status))
	if status != "" && !entity.ValidStatus(status) {
		return nil, 0, fmt.Errorf("%w: invalid status %q", ErrValidation, query.Status)
	}

	filter := repository.OrderFilter{
		HasStatus: status != "",
		Status:    status,
		Query:     strings.TrimSpace(query.Query),
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}
	if query.Role == entity.RoleUser {
		filter.UserID = query.UserID
	}

	total, err := s.orderRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count orders: %v", ErrTransient, err)
	}

	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list orders: %v", ErrTransient, err)
	}

	return orders, total, nil
}

// InitiatePayment hands out a provider payment reference for a pending order.
func (s *OrderService) InitiatePayment(ctx context.Context, orderID, userID uint64, role string) (*PaymentIntent, error) {
	order, err := s.GetOrder(ctx, orderID, userID, role)
	if err != nil {
		return nil, err
	}
	if order.Status != entity.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, order.ID, order.Status)
	}

	paymentID := "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	redirectURL := strings.TrimRight(s.ordersCfg.PaymentRedirectBaseURL, "/") + "/" + paymentID

	return &PaymentIntent{
		PaymentID:   paymentID,
		OrderID:     order.ID,
		AmountCents: order.AmountCents,
		RedirectURL: redirectURL,
	}, nil
}

func validateItems(items []entity.OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: items must not be empty", ErrValidation)
	}
	for i, item := range items {
		if strings.TrimSpace(item.SKU) == "" {
			return fmt.Errorf("%w: items[%d].sku is required", ErrValidation, i)
		}
		if !skuPattern.MatchString(item.SKU) {
			return fmt.Errorf("%w: items[%d].sku has invalid format", ErrValidation, i)
		}
		if item.Qty < 1 {
			return fmt.Errorf("%w: items[%d].qty must be >= 1", ErrValidation, i)
		}
	}
	return nil
}

func canReadOrder(order *entity.Order, userID uint64, role string) bool {
	if role == entity.RoleAdmin || role == entity.RoleSystem {
		return true
	}
	return order.UserID == userID
}
