package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/config"
)

type idempotencyRepository interface {
	Reserve(ctx context.Context, scope, key string, now time.Time) (bool, error)
	Get(ctx context.Context, scope, key string) (*entity.IdempotencyRecord, error)
	Complete(ctx context.Context, scope, key, resultJSON string, now time.Time) error
	ReclaimStale(ctx context.Context, scope, key string, cutoff, now time.Time) (bool, error)
	Release(ctx context.Context, scope, key string) error
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time, limit int32) (int64, error)
}

// Ledger resolves caller-supplied idempotency keys to the result produced the
// first time the key was processed. Racing callers on an unseen key resolve
// to exactly one compute execution; the losers wait for the winner's result.
type Ledger struct {
	repo           idempotencyRepository
	waitTimeout    time.Duration
	pollInterval   time.Duration
	reservationTTL time.Duration
	nowFunc        func() time.Time
}

func NewLedger(repo idempotencyRepository, cfg config.IdempotencyConfig) *Ledger {
	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 5 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	reservationTTL := cfg.ReservationTTL
	if reservationTTL <= 0 {
		reservationTTL = 5 * time.Minute
	}

	return &Ledger{
		repo:           repo,
		waitTimeout:    waitTimeout,
		pollInterval:   pollInterval,
		reservationTTL: reservationTTL,
		nowFunc:        time.Now,
	}
}

// GetOrCreate returns the stored result for (scope, key) when the key has
// been seen, without invoking compute. Otherwise it reserves the key, runs
// compute exactly once and stores the result.
//
// A compute failure wrapping ErrTransient keeps the reservation held: the
// caller owns the key (typically through the retry scheduler) until it
// completes or releases it. Any other compute failure releases the key so a
// later submission can execute again. A reservation whose holder vanished
// without completing, such as a crash between reserve and complete, is
// reclaimed once it is older than the reservation TTL; the TTL must exceed
// the retry scheduler's backoff horizon so held webhook keys are never stolen.
func (l *Ledger) GetOrCreate(ctx context.Context, scope, key string, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	deadline := l.nowFunc().Add(l.waitTimeout)

	for {
		reserved, err := l.repo.Reserve(ctx, scope, key, l.nowFunc().UTC())
		if err != nil {
			return nil, false, fmt.Errorf("%w: reserve idempotency key: %v", ErrTransient, err)
		}
		if reserved {
			return l.runCompute(ctx, scope, key, compute)
		}

		record, err := l.repo.Get(ctx, scope, key)
		if err != nil {
			return nil, false, fmt.Errorf("%w: load idempotency record: %v", ErrTransient, err)
		}
		if record == nil {
			// the previous holder released; try to reserve again
			continue
		}
		if record.Status == entity.IdempotencyCompleted && record.ResultJSON != nil {
			return []byte(*record.ResultJSON), false, nil
		}

		now := l.nowFunc().UTC()
		if record.UpdatedAt.Before(now.Add(-l.reservationTTL)) {
			reclaimed, err := l.repo.ReclaimStale(ctx, scope, key, now.Add(-l.reservationTTL), now)
			if err != nil {
				return nil, false, fmt.Errorf("%w: reclaim stale idempotency key: %v", ErrTransient, err)
			}
			if reclaimed {
				return l.runCompute(ctx, scope, key, compute)
			}
		}

		// another caller holds the reservation; wait for its result
		if l.nowFunc().After(deadline) {
			return nil, false, fmt.Errorf("%w: timed out waiting for idempotency key %s/%s", ErrTransient, scope, key)
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// runCompute executes compute while holding the reservation. Failing to store
// the result releases the key: compute for every scope is safe to re-run, so
// a later submission recomputing beats a key wedged in the reserved state.
func (l *Ledger) runCompute(ctx context.Context, scope, key string, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	result, err := compute(ctx)
	if err != nil {
		if !errors.Is(err, ErrTransient) {
			_ = l.repo.Release(ctx, scope, key)
		}
		return nil, false, err
	}
	if err := l.Complete(ctx, scope, key, result); err != nil {
		_ = l.repo.Release(ctx, scope, key)
		return nil, false, err
	}
	return result, true, nil
}

func (l *Ledger) Complete(ctx context.Context, scope, key string, result []byte) error {
	if err := l.repo.Complete(ctx, scope, key, string(result), l.nowFunc().UTC()); err != nil {
		return fmt.Errorf("%w: complete idempotency record: %v", ErrTransient, err)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, scope, key string) error {
	if err := l.repo.Release(ctx, scope, key); err != nil {
		return fmt.Errorf("%w: release idempotency record: %v", ErrTransient, err)
	}
	return nil
}

// RunPurgeBatch deletes completed records older than the retention window.
// Replay semantics are exact only within the window.
func (l *Ledger) RunPurgeBatch(ctx context.Context, retention time.Duration, batchSize int32) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := l.nowFunc().UTC().Add(-retention)
	return l.repo.DeleteCompletedBefore(ctx, cutoff, batchSize)
}
