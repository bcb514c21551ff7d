package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/factory"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/metrics"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/config"
)

// WebhookDelivery is the transient unit of work held by the retry scheduler
// between attempts. It never outlives the process; exhausted deliveries are
// persisted to the dead-letter sink instead.
type WebhookDelivery struct {
	PaymentID string
	OrderID   uint64
	Status    string
	Payload   []byte

	Attempt       int32
	NextAttemptAt time.Time
	LastError     string
}

type deadLetterWriter interface {
	Create(ctx context.Context, record *entity.WebhookDeadLetter) error
}

// RetryScheduler re-attempts failed webhook applications with bounded
// exponential backoff. The schedule is keyed by payment id, so a redelivery
// arriving while a retry is pending or in flight never duplicates work.
type RetryScheduler struct {
	mu       sync.Mutex
	pending  map[string]*WebhookDelivery
	inflight map[string]bool

	apply       func(ctx context.Context, d *WebhookDelivery) error
	onExhausted func(ctx context.Context, d *WebhookDelivery)

	deadRepo     deadLetterWriter
	baseDelay    time.Duration
	maxAttempts  int32
	pollInterval time.Duration

	counters *metrics.Counters
	logger   logrus.FieldLogger
	nowFunc  func() time.Time
}

func NewRetryScheduler(deadRepo deadLetterWriter, cfg config.RetryConfig, counters *metrics.Counters) *RetryScheduler {
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}

	return &RetryScheduler{
		pending:      map[string]*WebhookDelivery{},
		inflight:     map[string]bool{},
		deadRepo:     deadRepo,
		baseDelay:    baseDelay,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
		counters:     counters,
		logger:       factory.NewModuleLogger("retry-scheduler"),
		nowFunc:      time.Now,
	}
}

// Bind wires the apply step and the exhaustion hook. Called once during
// startup, before Run.
func (s *RetryScheduler) Bind(apply func(ctx context.Context, d *WebhookDelivery) error, onExhausted func(ctx context.Context, d *WebhookDelivery)) {
	s.apply = apply
	s.onExhausted = onExhausted
}

// Schedule enqueues a delivery for re-attempt after its backoff delay.
// A payment id already pending or in flight is left untouched.
func (s *RetryScheduler) Schedule(d *WebhookDelivery) {
	if d == nil || d.PaymentID == "" {
		return
	}
	if d.Attempt < 1 {
		d.Attempt = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[d.PaymentID]; ok {
		return
	}
	if s.inflight[d.PaymentID] {
		return
	}
	d.NextAttemptAt = s.nowFunc().Add(s.backoff(d.Attempt))
	s.pending[d.PaymentID] = d
}

// Cancel removes a pending delivery from the schedule. A delivery whose
// attempt is already in flight is unaffected.
func (s *RetryScheduler) Cancel(paymentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[paymentID]; !ok {
		return false
	}
	delete(s.pending, paymentID)
	return true
}

func (s *RetryScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run dispatches due deliveries until the context is cancelled.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.DispatchDue(ctx)
		}
	}
}

// DispatchDue runs one dispatch round for every delivery whose backoff has
// elapsed. Exposed for the worker loop and tests; Run calls it on a ticker.
func (s *RetryScheduler) DispatchDue(ctx context.Context) {
	now := s.nowFunc()

	s.mu.Lock()
	due := make([]*WebhookDelivery, 0, len(s.pending))
	for paymentID, d := range s.pending {
		if !d.NextAttemptAt.After(now) {
			due = append(due, d)
			delete(s.pending, paymentID)
			s.inflight[paymentID] = true
		}
	}
	s.mu.Unlock()

	for _, d := range due {
		s.attemptDelivery(ctx, d)
	}
}

func (s *RetryScheduler) attemptDelivery(ctx context.Context, d *WebhookDelivery) {
	err := s.apply(ctx, d)
	if err == nil {
		s.clearInflight(d.PaymentID)
		s.logger.WithField("payment_id", d.PaymentID).
			WithField("attempt", d.Attempt+1).
			Info("Webhook retry succeeded")
		return
	}

	d.Attempt++
	d.LastError = err.Error()

	if !errors.Is(err, ErrTransient) || d.Attempt >= s.maxAttempts {
		s.deadLetter(ctx, d)
		return
	}

	s.counters.WebhookRetries.Add(1)
	s.mu.Lock()
	d.NextAttemptAt = s.nowFunc().Add(s.backoff(d.Attempt))
	s.pending[d.PaymentID] = d
	delete(s.inflight, d.PaymentID)
	s.mu.Unlock()
}

func (s *RetryScheduler) deadLetter(ctx context.Context, d *WebhookDelivery) {
	record := &entity.WebhookDeadLetter{
		PaymentID:   d.PaymentID,
		OrderID:     d.OrderID,
		PayloadJSON: string(d.Payload),
		LastError:   d.LastError,
		Attempts:    d.Attempt,
		CreatedAt:   s.nowFunc().UTC(),
	}

	if err := s.deadRepo.Create(ctx, record); err != nil {
		// never drop a delivery: keep it scheduled until the sink accepts it
		s.logger.WithError(err).WithField("payment_id", d.PaymentID).Error("Failed to persist dead letter")
		s.mu.Lock()
		d.NextAttemptAt = s.nowFunc().Add(s.baseDelay)
		s.pending[d.PaymentID] = d
		delete(s.inflight, d.PaymentID)
		s.mu.Unlock()
		return
	}

	if s.onExhausted != nil {
		s.onExhausted(ctx, d)
	}
	s.counters.WebhookDeadLetters.Add(1)
	s.clearInflight(d.PaymentID)

	s.logger.WithField("payment_id", d.PaymentID).
		WithField("order_id", d.OrderID).
		WithField("attempts", d.Attempt).
		Error("Webhook delivery dead-lettered")
}

func (s *RetryScheduler) clearInflight(paymentID string) {
	s.mu.Lock()
	delete(s.inflight, paymentID)
	s.mu.Unlock()
}

func (s *RetryScheduler) backoff(attempt int32) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := uint(attempt - 1)
	if shift > 16 {
		shift = 16
	}
	return s.baseDelay * time.Duration(1<<shift)
}
