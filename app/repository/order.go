package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
)

var ErrOrderAlreadyExists = errors.New("order already exists")

type OrderFilter struct {
	UserID    uint64
	HasStatus bool
	Status    string
	Query     string
	Limit     int32
	Offset    int32
}

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	itemsJSON, err := serializeItems(order.Items)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			user_id, items_json, amount_cents, status, version, client_token, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		order.UserID,
		itemsJSON,
		order.AmountCents,
		order.Status,
		order.Version,
		order.ClientToken,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	order.ID = uint64(id)
	return nil
}

// UpdateStatusIfVersion performs the conditional status update. It returns
// false when the stored version no longer equals expectedVersion, without
// touching the row. The version bump and the status write are one statement.
func (r *OrderRepository) UpdateStatusIfVersion(ctx context.Context, id uint64, expectedVersion int64, newStatus string, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query, newStatus, now, id, expectedVersion)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id uint64) (*entity.Order, error) {
	query := `
		SELECT id, user_id, items_json, amount_cents, status, version, client_token, created_at, updated_at
		FROM orders
		WHERE id = ?
	`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, id), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) FindByUserToken(ctx context.Context, userID uint64, clientToken string) (*entity.Order, error) {
	query := `
		SELECT id, user_id, items_json, amount_cents, status, version, client_token, created_at, updated_at
		FROM orders
		WHERE user_id = ? AND client_token = ?
		LIMIT 1
	`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, userID, clientToken), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter OrderFilter) ([]*entity.Order, error) {
	query := `
		SELECT id, user_id, items_json, amount_cents, status, version, client_token, created_at, updated_at
		FROM orders
	`

	where, args := buildOrderConditions(filter)
	if where != "" {
		query += " WHERE " + where
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*entity.Order, 0)
	for rows.Next() {
		item := &entity.Order{}
		if err := scanOrder(rows, item); err != nil {
			return nil, err
		}
		orders = append(orders, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *OrderRepository) Count(ctx context.Context, filter OrderFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM orders"

	where, args := buildOrderConditions(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func buildOrderConditions(filter OrderFilter) (string, []interface{}) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if filter.UserID > 0 {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if strings.TrimSpace(filter.Query) != "" {
		conditions = append(conditions, "items_json LIKE ?")
		args = append(args, "%"+filter.Query+"%")
	}

	return strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(scan rowScanner, order *entity.Order) error {
	var itemsJSON string

	err := scan.Scan(
		&order.ID,
		&order.UserID,
		&itemsJSON,
		&order.AmountCents,
		&order.Status,
		&order.Version,
		&order.ClientToken,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	items, err := parseItems(itemsJSON)
	if err != nil {
		return err
	}
	order.Items = items

	return nil
}
