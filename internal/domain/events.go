package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "order.created"
	OrderEventApproved  OrderEventType = "order.approved"
	OrderEventCancelled OrderEventType = "order.cancelled"
)

// OrderEvent is published after an order transition commits. It carries
// enough of the user to address an email without a lookup.
type OrderEvent struct {
	Type         OrderEventType  `json:"type"`
	OrderID      string          `json:"order_id"`
	UserID       string          `json:"user_id"`
	UserEmail    string          `json:"user_email"`
	UserName     string          `json:"user_name"`
	Items        []OrderItem     `json:"items"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PickupMethod PickupMethod    `json:"pickup_method"`
	Address      string          `json:"address"`
	Timestamp    time.Time       `json:"timestamp"`
}
