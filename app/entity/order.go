package entity

import "time"

const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusFailed    = "FAILED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	RoleUser   = "USER"
	RoleAdmin  = "ADMIN"
	RoleSystem = "SYSTEM"
)

type OrderItem struct {
	SKU string `json:"sku"`
	Qty int32  `json:"qty"`
}

type Order struct {
	ID uint64

	UserID      uint64
	Items       []OrderItem
	AmountCents int64

	Status  string
	Version int64

	ClientToken string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransitionAllowed reports whether an order may move from one status to
// another. PENDING is the only non-terminal status.
func TransitionAllowed(from, to string) bool {
	if from != OrderStatusPending {
		return false
	}
	switch to {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

func TerminalStatus(status string) bool {
	switch status {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

func ValidStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}
