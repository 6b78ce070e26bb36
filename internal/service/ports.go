package service

import (
	"context"
	"net/url"

	"github.com/gymvietai/payment/internal/domain"
	"github.com/gymvietai/payment/pkg/payment"
)

// PlanStore reads the plan catalog.
type PlanStore interface {
	FindByID(ctx context.Context, id string) (*domain.Plan, error)
	ListActive(ctx context.Context) ([]*domain.Plan, error)
}

// UserStore looks users up in the auth database.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// OrderStore persists orders and their audit log. Transition must apply the
// status change and its log entry atomically, and only when the stored
// status is one of the transition's From states.
type OrderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	Transition(ctx context.Context, t domain.OrderTransition) (bool, error)
	AppendLog(ctx context.Context, l domain.PaymentLog) error
	ListLogs(ctx context.Context, orderID string) ([]*domain.PaymentLog, error)
}

// PaymentURLBuilder produces signed gateway redirects.
type PaymentURLBuilder interface {
	PaymentURL(req payment.Request) (string, error)
}

// CallbackVerifier checks the secure hash on a gateway callback.
type CallbackVerifier interface {
	VerifyValues(values url.Values) bool
}

// Fulfiller runs the best-effort steps that follow a payment outcome. Calls
// must return immediately; failures are the implementation's to log.
type Fulfiller interface {
	PaymentSucceeded(ctx context.Context, outcome domain.PaymentOutcome)
	PaymentFailed(ctx context.Context, outcome domain.PaymentOutcome)
}
