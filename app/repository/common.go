package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isDuplicateEntryError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func nullableStringValue(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtrFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func serializeItems(items []entity.OrderItem) (string, error) {
	if items == nil {
		items = []entity.OrderItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func parseItems(raw string) ([]entity.OrderItem, error) {
	if raw == "" {
		return []entity.OrderItem{}, nil
	}
	var items []entity.OrderItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.OrderItem{}
	}
	return items, nil
}
