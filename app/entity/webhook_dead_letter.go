package entity

import "time"

// WebhookDeadLetter is an append-only record of a webhook delivery that
// exhausted its retry budget. Reprocessing is manual.
type WebhookDeadLetter struct {
	ID uint64

	PaymentID string
	OrderID   uint64

	PayloadJSON string
	LastError   string
	Attempts    int32

	CreatedAt time.Time
}
