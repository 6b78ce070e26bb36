package domain

import (
	"encoding/json"
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// PaymentTimeout is how long an order may stay pending before it reads as expired.
const PaymentTimeout = 15 * time.Minute

// MaxOrderAmount is the largest amount the gateway accepts for one order.
const MaxOrderAmount int64 = 100_000_000

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderCompleted, OrderFailed, OrderCancelled, OrderExpired:
		return true
	}
	return false
}

// Order is a single purchase attempt for a subscription plan.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	PlanID          string          `json:"planId"`
	PlanName        string          `json:"planName,omitempty"`
	PlanDuration    int             `json:"planDuration,omitempty"`
	Amount          int64           `json:"amount"`
	Status          OrderStatus     `json:"status"`
	TransactionNo   *string         `json:"transactionNo,omitempty"`
	TransactionInfo json.RawMessage `json:"transactionInfo,omitempty"`
	AdminNote       *string         `json:"adminNote,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
}

// EffectiveStatus is the status as seen at now: a pending order whose current
// payment attempt is older than PaymentTimeout reads as expired. UpdatedAt
// marks the start of the attempt because only creation and retry leave an
// order pending.
func (o *Order) EffectiveStatus(now time.Time) OrderStatus {
	if o.Status == OrderPending && now.Sub(o.UpdatedAt) > PaymentTimeout {
		return OrderExpired
	}
	return o.Status
}

// OwnedBy reports whether userID owns the order.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID != "" && o.UserID == userID
}

// OrderTransition is one conditional status change. It is applied only when
// the stored status is one of From.
type OrderTransition struct {
	OrderID         string
	From            []OrderStatus
	To              OrderStatus
	TransactionNo   *string
	TransactionInfo json.RawMessage
	AdminNote       *string
	Log             PaymentLog
}

// CreateOrderRequest is the validated input for starting a payment.
type CreateOrderRequest struct {
	PlanID string `json:"planId" validate:"required,max=64"`
}

// UpdateOrderStatusRequest is the validated input for an admin status change.
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=pending completed failed cancelled expired"`
	Note   string      `json:"note" validate:"max=500"`
}

// CheckoutResponse is returned when a payment URL is issued.
type CheckoutResponse struct {
	OrderID    string `json:"orderId"`
	PaymentURL string `json:"paymentUrl"`
	Amount     int64  `json:"amount"`
}
