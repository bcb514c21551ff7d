package repository

import (
	"context"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
)

type OrderEventRepository struct {
	db DBTX
}

func NewOrderEventRepository(db DBTX) *OrderEventRepository {
	return &OrderEventRepository{db: db}
}

func (r *OrderEventRepository) Create(ctx context.Context, event *entity.OrderEvent) error {
	query := `
		INSERT INTO order_events (
			order_id, event_type, old_status, new_status, payment_id, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.OrderID,
		event.EventType,
		nullableStringValue(event.OldStatus),
		event.NewStatus,
		nullableStringValue(event.PaymentID),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}
