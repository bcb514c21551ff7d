package types

import "time"

type OrderResponse struct {
	ID          uint64             `json:"id"`
	UserID      uint64             `json:"user_id"`
	Items       []OrderItemPayload `json:"items"`
	AmountCents int64              `json:"amount_cents"`
	Status      string             `json:"status"`
	Version     int64              `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type OrderEnvelopeResponse struct {
	Order *OrderResponse `json:"order"`
}

type ListOrdersResponse struct {
	Orders []*OrderResponse `json:"orders"`
	Total  int64            `json:"total"`
	Page   int32            `json:"page"`
	Limit  int32            `json:"limit"`
	Pages  int64            `json:"pages"`
}

type PaymentIntentResponse struct {
	PaymentID   string `json:"payment_id"`
	OrderID     uint64 `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	RedirectURL string `json:"redirect_url"`
}

type WebhookAckResponse struct {
	Status string `json:"status"`
}

type DeadLetterResponse struct {
	ID        uint64    `json:"id"`
	PaymentID string    `json:"payment_id"`
	OrderID   uint64    `json:"order_id"`
	Payload   string    `json:"payload"`
	LastError string    `json:"last_error"`
	Attempts  int32     `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

type ListDeadLettersResponse struct {
	DeadLetters []*DeadLetterResponse `json:"dead_letters"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
