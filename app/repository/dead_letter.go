package repository

import (
	"context"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
)

type DeadLetterRepository struct {
	db DBTX
}

func NewDeadLetterRepository(db DBTX) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Create(ctx context.Context, record *entity.WebhookDeadLetter) error {
	query := `
		INSERT INTO webhook_dead_letters (
			payment_id, order_id, payload_json, last_error, attempts, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.PaymentID,
		record.OrderID,
		record.PayloadJSON,
		record.LastError,
		record.Attempts,
		record.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = uint64(id)

	return nil
}

func (r *DeadLetterRepository) List(ctx context.Context, limit, offset int32) ([]*entity.WebhookDeadLetter, error) {
	query := `
		SELECT id, payment_id, order_id, payload_json, last_error, attempts, created_at
		FROM webhook_dead_letters
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*entity.WebhookDeadLetter, 0)
	for rows.Next() {
		item := &entity.WebhookDeadLetter{}
		err := rows.Scan(
			&item.ID,
			&item.PaymentID,
			&item.OrderID,
			&item.PayloadJSON,
			&item.LastError,
			&item.Attempts,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
