package domain

import (
	"encoding/json"
	"time"
)

// PaymentEvent classifies an audit log entry.
type PaymentEvent string

const (
	EventPaymentSuccess    PaymentEvent = "payment_success"
	EventPaymentFailed     PaymentEvent = "payment_failed"
	EventIPNSuccess        PaymentEvent = "ipn_success"
	EventIPNFailed         PaymentEvent = "ipn_failed"
	EventAdminStatusChange PaymentEvent = "admin_status_change"
	EventPaymentCancelled  PaymentEvent = "payment_cancelled"
	EventPaymentPending    PaymentEvent = "payment_pending"

	// EventReturnReplayed records a Return callback for an order that had
	// already left pending. It never changes the order.
	EventReturnReplayed PaymentEvent = "payment_return_replayed"
)

// PaymentLog is an append-only audit entry. Entries are never updated.
type PaymentLog struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"orderId"`
	EventType PaymentEvent    `json:"eventType"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
