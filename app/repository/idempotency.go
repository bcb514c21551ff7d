package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
)

var ErrIdempotencyRecordNotFound = errors.New("idempotency record not found")

type IdempotencyRepository struct {
	db DBTX
}

func NewIdempotencyRepository(db DBTX) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Reserve inserts a reserved record for (scope, key). It returns false when
// the key is already present; the unique index makes this an atomic
// insert-if-absent, so exactly one caller wins a race.
func (r *IdempotencyRepository) Reserve(ctx context.Context, scope, key string, now time.Time) (bool, error) {
	query := `
		INSERT INTO idempotency_records (scope, record_key, status, result_json, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, scope, key, entity.IdempotencyReserved, now, now)
	if err != nil {
		if isDuplicateEntryError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, scope, key string) (*entity.IdempotencyRecord, error) {
	query := `
		SELECT id, scope, record_key, status, result_json, created_at, updated_at
		FROM idempotency_records
		WHERE scope = ? AND record_key = ?
		LIMIT 1
	`

	record := &entity.IdempotencyRecord{}
	var resultJSON sql.NullString
	err := r.db.QueryRowContext(ctx, query, scope, key).Scan(
		&record.ID,
		&record.Scope,
		&record.Key,
		&record.Status,
		&resultJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	record.ResultJSON = stringPtrFromNull(resultJSON)
	return record, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, scope, key, resultJSON string, now time.Time) error {
	query := `
		UPDATE idempotency_records
		SET status = ?, result_json = ?, updated_at = ?
		WHERE scope = ? AND record_key = ?
	`

	result, err := r.db.ExecContext(ctx, query, entity.IdempotencyCompleted, resultJSON, now, scope, key)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrIdempotencyRecordNotFound
	}
	return nil
}

// ReclaimStale takes over a reservation whose holder never completed it, e.g.
// after a crash between reserve and complete. The conditional update makes the
// takeover atomic: among racing callers, exactly one sees an affected row.
func (r *IdempotencyRepository) ReclaimStale(ctx context.Context, scope, key string, cutoff, now time.Time) (bool, error) {
	query := `
		UPDATE idempotency_records
		SET updated_at = ?
		WHERE scope = ? AND record_key = ? AND status = ? AND updated_at <= ?
	`

	result, err := r.db.ExecContext(ctx, query, now, scope, key, entity.IdempotencyReserved, cutoff)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Release removes a reservation whose compute failed, so a later submission
// of the same key can execute again.
func (r *IdempotencyRepository) Release(ctx context.Context, scope, key string) error {
	query := `
		DELETE FROM idempotency_records
		WHERE scope = ? AND record_key = ? AND status = ?
	`

	_, err := r.db.ExecContext(ctx, query, scope, key, entity.IdempotencyReserved)
	return err
}

func (r *IdempotencyRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	query := `
		DELETE FROM idempotency_records
		WHERE status = ? AND updated_at <= ?
		LIMIT ?
	`

	result, err := r.db.ExecContext(ctx, query, entity.IdempotencyCompleted, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
