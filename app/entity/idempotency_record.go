package entity

import "time"

const (
	ScopeOrderCreate = "order-create"
	ScopeWebhook     = "webhook"
)

const (
	IdempotencyReserved  int32 = 1
	IdempotencyCompleted int32 = 10
)

// IdempotencyRecord maps a (scope, key) pair to the result produced the first
// time the key was processed. A reserved record marks an in-flight compute.
type IdempotencyRecord struct {
	ID uint64

	Scope string
	Key   string

	Status     int32
	ResultJSON *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
