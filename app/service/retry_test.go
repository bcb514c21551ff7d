package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/metrics"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/config"
)

// failingDeadLetterSink rejects the first writes so tests can assert the
// scheduler keeps the delivery until the sink accepts it.
type failingDeadLetterSink struct {
	inner    *serviceDeadLetterRepo
	mu       sync.Mutex
	failures int
}

func (s *failingDeadLetterSink) Create(ctx context.Context, record *entity.WebhookDeadLetter) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return fmt.Errorf("sink unavailable")
	}
	s.mu.Unlock()
	return s.inner.Create(ctx, record)
}

func newSchedulerForTest(deadRepo deadLetterWriter, baseDelay time.Duration, maxAttempts int32) (*RetryScheduler, *metrics.Counters) {
	counters := metrics.NewCounters()
	s := NewRetryScheduler(deadRepo, config.RetryConfig{
		BaseDelay:    baseDelay,
		MaxAttempts:  maxAttempts,
		PollInterval: time.Millisecond,
	}, counters)
	return s, counters
}

func TestSchedulerBackoffDoubles(t *testing.T) {
	s, _ := newSchedulerForTest(newServiceDeadLetterRepo(), time.Second, 3)

	cases := []struct {
		attempt int32
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := s.backoff(tc.attempt); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestSchedulerDoesNotDispatchBeforeBackoff(t *testing.T) {
	s, _ := newSchedulerForTest(newServiceDeadLetterRepo(), time.Second, 3)

	now := time.Now()
	s.nowFunc = func() time.Time { return now }

	var applied atomic.Int32
	s.Bind(func(context.Context, *WebhookDelivery) error {
		applied.Add(1)
		return nil
	}, nil)

	s.Schedule(&WebhookDelivery{PaymentID: "pay_1", OrderID: 1, Status: "SUCCESS", Attempt: 1})

	s.DispatchDue(context.Background())
	if applied.Load() != 0 {
		t.Fatal("delivery dispatched before its backoff elapsed")
	}

	now = now.Add(999 * time.Millisecond)
	s.DispatchDue(context.Background())
	if applied.Load() != 0 {
		t.Fatal("delivery dispatched before its backoff elapsed")
	}

	now = now.Add(2 * time.Millisecond)
	s.DispatchDue(context.Background())
	if applied.Load() != 1 {
		t.Fatalf("expected 1 dispatch after backoff, got %d", applied.Load())
	}
	if s.PendingCount() != 0 {
		t.Fatalf("expected empty schedule after success, pending=%d", s.PendingCount())
	}
}

func TestSchedulerDeduplicatesByPaymentID(t *testing.T) {
	s, _ := newSchedulerForTest(newServiceDeadLetterRepo(), time.Second, 3)

	s.Schedule(&WebhookDelivery{PaymentID: "pay_1", OrderID: 1, Status: "SUCCESS", Attempt: 1})
	s.Schedule(&WebhookDelivery{PaymentID: "pay_1", OrderID: 1, Status: "SUCCESS", Attempt: 1})
	s.Schedule(&WebhookDelivery{PaymentID: "pay_2", OrderID: 2, Status: "SUCCESS", Attempt: 1})

	if s.PendingCount() != 2 {
		t.Fatalf("expected 2 pending deliveries, got %d", s.PendingCount())
	}
}

func TestSchedulerCancelRemovesPendingDelivery(t *testing.T) {
	s, _ := newSchedulerForTest(newServiceDeadLetterRepo(), time.Second, 3)

	s.Schedule(&WebhookDelivery{PaymentID: "pay_1", OrderID: 1, Status: "SUCCESS", Attempt: 1})

	if !s.Cancel("pay_1") {
		t.Fatal("expected cancel to remove the delivery")
	}
	if s.Cancel("pay_1") {
		t.Fatal("expected second cancel to report missing")
	}
	if s.PendingCount() != 0 {
		t.Fatalf("expected empty schedule, pending=%d", s.PendingCount())
	}
}

func TestSchedulerCountsRetriesAndDeadLetters(t *testing.T) {
	deadRepo := newServiceDeadLetterRepo()
	s, counters := newSchedulerForTest(deadRepo, time.Millisecond, 3)

	var exhausted atomic.Int32
	s.Bind(func(context.Context, *WebhookDelivery) error {
		return fmt.Errorf("%w: still failing", ErrTransient)
	}, func(context.Context, *WebhookDelivery) {
		exhausted.Add(1)
	})

	s.Schedule(&WebhookDelivery{PaymentID: "pay_1", OrderID: 1, Status: "SUCCESS", Payload: []byte(`{}`), Attempt: 1})

	for i := 0; i < 5 && s.PendingCount() > 0; i++ {
		time.Sleep(3 * time.Millisecond)
		s.DispatchDue(context.Background())
	}

	if counters.WebhookRetries.Load() != 1 {
		t.Fatalf("expected 1 counted retry, got %d", counters.WebhookRetries.Load())
	}
	if counters.WebhookDeadLetters.Load() != 1 {
		t.Fatalf("expected 1 dead letter, got %d", counters.WebhookDeadLetters.Load())
	}
	if exhausted.Load() != 1 {
		t.Fatalf("expected exhaustion hook once, got %d", exhausted.Load())
	}

	letters := deadRepo.all()
	if len(letters) != 1 || letters[0].Attempts != 3 {
		t.Fatalf("unexpected dead letters: %+v", letters)
	}
}

func TestSchedulerRequeuesWhenDeadLetterSinkFails(t *testing.T) {
	inner := newServiceDeadLetterRepo()
	sink := &failingDeadLetterSink{inner: inner, failures: 1}
	s, _ := newSchedulerForTest(sink, time.Millisecond, 1)

	s.Bind(func(context.Context, *WebhookDelivery) error {
		return fmt.Errorf("%w: still failing", ErrTransient)
	}, nil)

	s.Schedule(&WebhookDelivery{PaymentID: "pay_1", OrderID: 1, Status: "SUCCESS", Payload: []byte(`{}`), Attempt: 1})

	time.Sleep(3 * time.Millisecond)
	s.DispatchDue(context.Background())

	if len(inner.all()) != 0 {
		t.Fatal("sink failure must not produce a record")
	}
	if s.PendingCount() != 1 {
		t.Fatal("delivery must stay scheduled while the sink is down")
	}

	time.Sleep(3 * time.Millisecond)
	s.DispatchDue(context.Background())

	if len(inner.all()) != 1 {
		t.Fatalf("expected dead letter once the sink recovered, got %d", len(inner.all()))
	}
	if s.PendingCount() != 0 {
		t.Fatalf("expected empty schedule, pending=%d", s.PendingCount())
	}
}

func TestSchedulerDeadLettersNonTransientErrorImmediately(t *testing.T) {
	deadRepo := newServiceDeadLetterRepo()
	s, _ := newSchedulerForTest(deadRepo, time.Millisecond, 3)

	s.Bind(func(context.Context, *WebhookDelivery) error {
		return fmt.Errorf("%w: order vanished", ErrPermanent)
	}, nil)

	s.Schedule(&WebhookDelivery{PaymentID: "pay_1", OrderID: 1, Status: "SUCCESS", Payload: []byte(`{}`), Attempt: 1})

	time.Sleep(3 * time.Millisecond)
	s.DispatchDue(context.Background())

	letters := deadRepo.all()
	if len(letters) != 1 {
		t.Fatalf("expected immediate dead letter for permanent failure, got %d", len(letters))
	}
	if letters[0].Attempts != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", letters[0].Attempts)
	}
}
