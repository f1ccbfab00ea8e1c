package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

type PickupMethod string

const (
	PickupMethodPickup   PickupMethod = "Pickup"
	PickupMethodDelivery PickupMethod = "Delivery"
)

func (m PickupMethod) Valid() bool {
	return m == PickupMethodPickup || m == PickupMethodDelivery
}

// StoreAddress is where Pickup orders are collected.
const StoreAddress = "175, Abeokuta Express Way, Iyana Ipaja, Lagos"

// ResolveAddress returns the address an order is persisted with. Pickup
// orders always use StoreAddress; Delivery orders keep the supplied one
// exactly as given.
func ResolveAddress(method PickupMethod, address string) string {
	if method == PickupMethodPickup {
		return StoreAddress
	}
	return address
}

type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Items        []OrderItem     `json:"items"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	OrderDate    time.Time       `json:"orderDate"`
	Status       OrderStatus     `json:"status"`
	PickupMethod PickupMethod    `json:"pickupMethod"`
	Address      string          `json:"address"`
}

// Active reports whether the order is still awaiting an admin decision.
func (o *Order) Active() bool {
	return o.Status == OrderStatusPending
}

func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		Active bool `json:"active"`
	}{order(o), o.Active()})
}

func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		OrderID:     o.ID,
		Items:       o.Items,
		TotalAmount: o.TotalAmount,
		OrderDate:   o.OrderDate,
		Status:      o.Status,
	}
}

// OrderSummary is the per-user order history entry.
type OrderSummary struct {
	OrderID     string          `json:"orderId"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OrderDate   time.Time       `json:"orderDate"`
	Status      OrderStatus     `json:"status"`
}

// ProductLine is an order line item joined with current catalog data.
type ProductLine struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description,omitempty"`
	Category    Category        `json:"category,omitempty"`
	Stock       *int            `json:"stock,omitempty"`
}

// OrderView is the read model returned by the order listing endpoints.
type OrderView struct {
	OrderID      string          `json:"orderId"`
	UserID       string          `json:"userId"`
	FullName     string          `json:"fullname,omitempty"`
	Products     []ProductLine   `json:"products"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Status       OrderStatus     `json:"status"`
	Active       bool            `json:"active"`
	OrderDate    time.Time       `json:"orderDate"`
	PickupMethod PickupMethod    `json:"pickupMethod,omitempty"`
	Address      string          `json:"address,omitempty"`
}
