package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gymvietai/payment/internal/domain"
	"github.com/gymvietai/payment/pkg/payment"
	"go.uber.org/zap"
)

const maxCreateAttempts = 3

// OrderService owns the order record and every status change applied to it.
type OrderService struct {
	plans    PlanStore
	orders   OrderStore
	users    UserStore
	gateway  PaymentURLBuilder
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func(time.Time) string
}

// OrderOption customises an OrderService.
type OrderOption func(*OrderService)

// WithOrderClock overrides the service clock.
func WithOrderClock(now func() time.Time) OrderOption {
	return func(s *OrderService) { s.now = now }
}

// WithOrderIDs overrides order id generation.
func WithOrderIDs(gen func(time.Time) string) OrderOption {
	return func(s *OrderService) { s.newID = gen }
}

// NewOrderService creates a new OrderService.
func NewOrderService(plans PlanStore, orders OrderStore, users UserStore, gateway PaymentURLBuilder, logger *zap.Logger, opts ...OrderOption) *OrderService {
	s := &OrderService{
		plans:    plans,
		orders:   orders,
		users:    users,
		gateway:  gateway,
		log:      logger.Named("orders"),
		validate: validator.New(),
		now:      time.Now,
		newID:    NewOrderID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOrderID returns a time-prefixed id with a random suffix.
func NewOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("ORDER_%d_%s", now.UnixMilli(), suffix)
}

// ListPlans returns the active plans ordered by price.
func (s *OrderService) ListPlans(ctx context.Context) ([]*domain.Plan, error) {
	plans, err := s.plans.ListActive(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list plans", err)
	}
	if plans == nil {
		plans = []*domain.Plan{}
	}
	return plans, nil
}

// Create opens a pending order for the plan and returns its payment URL.
func (s *OrderService) Create(ctx context.Context, userID string, req *domain.CreateOrderRequest, clientIP string) (*domain.CheckoutResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	plan, err := s.plans.FindByID(ctx, req.PlanID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find plan", err)
	}
	if plan == nil || !plan.IsActive {
		return nil, domain.ErrNotFound("subscription plan not found or inactive")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}

	if err := ValidateAmount(plan.Price); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		now := s.now()
		order := &domain.Order{
			ID:           s.newID(now),
			UserID:       userID,
			PlanID:       plan.ID,
			PlanName:     plan.Name,
			PlanDuration: plan.Duration,
			Amount:       plan.Price,
			Status:       domain.OrderPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		paymentURL, err := s.gateway.PaymentURL(payment.Request{
			OrderID:   order.ID,
			Amount:    order.Amount,
			OrderInfo: "Thanh toan goi " + plan.Name,
			ClientIP:  clientIP,
		})
		if err != nil {
			return nil, domain.ErrInternal("failed to build payment URL", err)
		}

		err = s.orders.Create(ctx, order)
		if errors.Is(err, domain.ErrDuplicateOrderID) {
			s.log.Warn("order id collision, regenerating",
				zap.String("order_id", order.ID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, domain.ErrInternal("failed to create order", err)
		}

		s.log.Info("order created",
			zap.String("order_id", order.ID),
			zap.String("user_id", userID),
			zap.String("plan_id", plan.ID),
			zap.Int64("amount", order.Amount),
		)
		return &domain.CheckoutResponse{
			OrderID:    order.ID,
			PaymentURL: paymentURL,
			Amount:     order.Amount,
		}, nil
	}

	return nil, domain.ErrInternal("failed to allocate a unique order id", domain.ErrDuplicateOrderID)
}

// Find returns an order or nil, without access checks.
func (s *OrderService) Find(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find order", err)
	}
	return order, nil
}

// Get returns an order the caller owns (or any order, for admins), with its
// effective status.
func (s *OrderService) Get(ctx context.Context, orderID string, caller *domain.JWTClaims) (*domain.Order, error) {
	order, err := s.authorized(ctx, orderID, caller, "unauthorized")
	if err != nil {
		return nil, err
	}
	order.Status = order.EffectiveStatus(s.now())
	return order, nil
}

// Logs returns the audit trail of an order the caller may read.
func (s *OrderService) Logs(ctx context.Context, orderID string, caller *domain.JWTClaims) ([]*domain.PaymentLog, error) {
	if _, err := s.authorized(ctx, orderID, caller, "unauthorized"); err != nil {
		return nil, err
	}
	logs, err := s.orders.ListLogs(ctx, orderID)
	if err != nil {
		return nil, domain.ErrInternal("failed to list payment logs", err)
	}
	if logs == nil {
		logs = []*domain.PaymentLog{}
	}
	return logs, nil
}

// History returns the user's orders, newest first.
func (s *OrderService) History(ctx context.Context, userID string) ([]*domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to list orders", err)
	}
	now := s.now()
	for _, o := range orders {
		o.Status = o.EffectiveStatus(now)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return orders, nil
}

// Cancel moves a pending order owned by userID to cancelled.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	order, err := s.authorized(ctx, orderID, &domain.JWTClaims{Sub: userID}, "unauthorized to cancel this order")
	if err != nil {
		return nil, err
	}
	if order.EffectiveStatus(s.now()) != domain.OrderPending {
		return nil, domain.ErrConflict("can only cancel pending orders")
	}

	applied, err := s.Transition(ctx, domain.OrderTransition{
		OrderID: orderID,
		From:    []domain.OrderStatus{domain.OrderPending},
		To:      domain.OrderCancelled,
		Log: domain.PaymentLog{
			OrderID:   orderID,
			EventType: domain.EventPaymentCancelled,
			Data:      mustJSON(map[string]string{"cancelledBy": userID}),
		},
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrConflict("can only cancel pending orders")
	}

	s.log.Info("order cancelled", zap.String("order_id", orderID), zap.String("user_id", userID))
	return s.reload(ctx, orderID)
}

// Retry issues a fresh payment URL for a failed or expired order and resets
// it to pending. Order id and amount are unchanged.
func (s *OrderService) Retry(ctx context.Context, orderID, userID, clientIP string) (*domain.CheckoutResponse, error) {
	order, err := s.authorized(ctx, orderID, &domain.JWTClaims{Sub: userID}, "unauthorized to retry this order")
	if err != nil {
		return nil, err
	}

	effective := order.EffectiveStatus(s.now())
	if effective != domain.OrderFailed && effective != domain.OrderExpired {
		return nil, domain.ErrConflict("can only retry failed or expired orders")
	}
	if err := ValidateAmount(order.Amount); err != nil {
		return nil, err
	}

	paymentURL, err := s.gateway.PaymentURL(payment.Request{
		OrderID:   order.ID,
		Amount:    order.Amount,
		OrderInfo: "Thanh toan lai goi " + order.PlanName,
		ClientIP:  clientIP,
	})
	if err != nil {
		return nil, domain.ErrInternal("failed to build payment URL", err)
	}

	applied, err := s.Transition(ctx, domain.OrderTransition{
		OrderID: orderID,
		From:    []domain.OrderStatus{order.Status},
		To:      domain.OrderPending,
		Log: domain.PaymentLog{
			OrderID:   orderID,
			EventType: domain.EventPaymentPending,
			Data:      mustJSON(map[string]string{"retryFrom": string(effective)}),
		},
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrConflict("can only retry failed or expired orders")
	}

	s.log.Info("order payment retried", zap.String("order_id", orderID), zap.String("from", string(effective)))
	return &domain.CheckoutResponse{
		OrderID:    order.ID,
		PaymentURL: paymentURL,
		Amount:     order.Amount,
	}, nil
}

// UpdateStatus applies an admin status change along the allowed graph.
// Admin changes never trigger fulfillment.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, req *domain.UpdateOrderStatusRequest, adminID string) (*domain.Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	order, err := s.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound("order not found")
	}

	effective := order.EffectiveStatus(s.now())
	if !adminTransitionAllowed(effective, req.Status) {
		return nil, domain.ErrConflict(fmt.Sprintf("cannot change order from %s to %s", effective, req.Status))
	}

	var note *string
	if req.Note != "" {
		note = &req.Note
	}
	applied, err := s.Transition(ctx, domain.OrderTransition{
		OrderID:   orderID,
		From:      []domain.OrderStatus{order.Status},
		To:        req.Status,
		AdminNote: note,
		Log: domain.PaymentLog{
			OrderID:   orderID,
			EventType: domain.EventAdminStatusChange,
			Data: mustJSON(map[string]string{
				"status": string(req.Status),
				"note":   req.Note,
				"admin":  adminID,
			}),
		},
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrConflict("order status changed concurrently")
	}

	s.log.Info("order status changed by admin",
		zap.String("order_id", orderID),
		zap.String("from", string(effective)),
		zap.String("to", string(req.Status)),
		zap.String("admin_id", adminID),
	)
	return s.reload(ctx, orderID)
}

func adminTransitionAllowed(from, to domain.OrderStatus) bool {
	switch from {
	case domain.OrderPending:
		return to != domain.OrderPending
	case domain.OrderFailed, domain.OrderExpired:
		return to == domain.OrderPending
	}
	return false
}

// Transition is the single mutation point for order status. A false result
// means the order was no longer in any of t.From.
func (s *OrderService) Transition(ctx context.Context, t domain.OrderTransition) (bool, error) {
	applied, err := s.orders.Transition(ctx, t)
	if errors.Is(err, domain.ErrOrderVanished) {
		return false, domain.ErrNotFound("order not found")
	}
	if err != nil {
		return false, domain.ErrInternal("failed to update order status", err)
	}
	return applied, nil
}

// AppendLog writes an audit entry that accompanies no status change.
func (s *OrderService) AppendLog(ctx context.Context, l domain.PaymentLog) error {
	if err := s.orders.AppendLog(ctx, l); err != nil {
		return domain.ErrInternal("failed to append payment log", err)
	}
	return nil
}

func (s *OrderService) authorized(ctx context.Context, orderID string, caller *domain.JWTClaims, denied string) (*domain.Order, error) {
	order, err := s.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound("order not found")
	}
	if !order.OwnedBy(caller.Sub) && !caller.IsAdmin() {
		return nil, domain.ErrForbidden(denied)
	}
	return order, nil
}

func (s *OrderService) reload(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound("order not found")
	}
	return order, nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return b
}
