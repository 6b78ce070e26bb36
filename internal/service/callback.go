package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gymvietai/payment/internal/domain"
	"github.com/gymvietai/payment/pkg/payment"
	"go.uber.org/zap"
)

// CallbackService interprets gateway callbacks and drives the resulting
// order transitions. Both channels transition pending orders through the
// same conditional update, so only the first delivery fires fulfillment.
type CallbackService struct {
	orders         *OrderService
	verifier       CallbackVerifier
	fulfiller      Fulfiller
	log            *zap.Logger
	returnAdvisory bool
}

// NewCallbackService creates a new CallbackService. With returnAdvisory set,
// the Return channel only reports and logs, leaving transitions to IPN.
func NewCallbackService(orders *OrderService, verifier CallbackVerifier, fulfiller Fulfiller, logger *zap.Logger, returnAdvisory bool) *CallbackService {
	return &CallbackService{
		orders:         orders,
		verifier:       verifier,
		fulfiller:      fulfiller,
		log:            logger.Named("callback"),
		returnAdvisory: returnAdvisory,
	}
}

// ProcessReturn handles the browser redirect back from the gateway.
func (s *CallbackService) ProcessReturn(ctx context.Context, values url.Values) (*domain.ReturnResult, error) {
	if !s.verifier.VerifyValues(values) {
		s.log.Warn("return callback rejected: invalid signature",
			zap.String("txn_ref", values.Get(payment.FieldTxnRef)),
		)
		return nil, domain.ErrInvalidSignature()
	}

	cb, err := payment.ParseCallback(values)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	order, err := s.orders.Find(ctx, cb.TxnRef)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound("order not found")
	}
	if cb.Amount != order.Amount {
		s.log.Warn("return callback amount mismatch",
			zap.String("order_id", order.ID),
			zap.Int64("expected", order.Amount),
			zap.Int64("received", cb.Amount),
		)
		return nil, domain.ErrValidation("amount mismatch")
	}

	payload := mustJSON(cb.Params.Map())
	if order.Status != domain.OrderPending {
		s.recordReplay(ctx, order.ID, payload)
		return reportCurrent(order), nil
	}

	event := domain.EventPaymentFailed
	if cb.Succeeded() {
		event = domain.EventPaymentSuccess
	}
	entry := domain.PaymentLog{
		OrderID:   order.ID,
		EventType: event,
		Data:      payload,
	}

	if s.returnAdvisory {
		if err := s.orders.AppendLog(ctx, entry); err != nil {
			return nil, err
		}
		return outcomeResult(order.ID, cb.Succeeded(), order), nil
	}

	applied, err := s.apply(ctx, order, cb, entry)
	if err != nil {
		return nil, err
	}
	if !applied {
		// The IPN channel got there first.
		s.recordReplay(ctx, order.ID, payload)
		current, err := s.orders.Find(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, domain.ErrNotFound("order not found")
		}
		return reportCurrent(current), nil
	}

	s.fulfill(ctx, order, cb, domain.ChannelReturn)
	return outcomeResult(order.ID, cb.Succeeded(), order), nil
}

// ProcessIPN handles the gateway's server-to-server notification. It never
// returns an error; every failure maps to a gateway response code.
func (s *CallbackService) ProcessIPN(ctx context.Context, values url.Values) (rsp payment.IPNResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("ipn processing panicked", zap.Any("panic", r))
			rsp = payment.NewIPNResponse(payment.RspUnknownError)
		}
	}()

	if !s.verifier.VerifyValues(values) {
		s.log.Warn("ipn rejected: invalid signature",
			zap.String("txn_ref", values.Get(payment.FieldTxnRef)),
		)
		return payment.NewIPNResponse(payment.RspInvalidSignature)
	}

	cb, err := payment.ParseCallback(values)
	if cb.TxnRef == "" {
		return payment.NewIPNResponse(payment.RspOrderNotFound)
	}
	if err != nil {
		s.log.Warn("ipn rejected: unparsable amount", zap.String("order_id", cb.TxnRef), zap.Error(err))
		return payment.NewIPNResponse(payment.RspInvalidAmount)
	}

	order, err := s.orders.Find(ctx, cb.TxnRef)
	if err != nil {
		s.log.Error("ipn order lookup failed", zap.String("order_id", cb.TxnRef), zap.Error(err))
		return payment.NewIPNResponse(payment.RspUnknownError)
	}
	if order == nil {
		return payment.NewIPNResponse(payment.RspOrderNotFound)
	}
	if cb.Amount != order.Amount {
		s.log.Warn("ipn rejected: amount mismatch",
			zap.String("order_id", order.ID),
			zap.Int64("expected", order.Amount),
			zap.Int64("received", cb.Amount),
		)
		return payment.NewIPNResponse(payment.RspInvalidAmount)
	}

	if order.Status != domain.OrderPending {
		s.log.Info("ipn for settled order acknowledged",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
		)
		return payment.NewIPNResponse(payment.RspConfirmed)
	}

	event := domain.EventIPNFailed
	if cb.Succeeded() {
		event = domain.EventIPNSuccess
	}
	applied, err := s.apply(ctx, order, cb, domain.PaymentLog{
		OrderID:   order.ID,
		EventType: event,
		Data:      mustJSON(cb.Params.Map()),
	})
	if err != nil {
		s.log.Error("ipn transition failed", zap.String("order_id", order.ID), zap.Error(err))
		return payment.NewIPNResponse(payment.RspUnknownError)
	}
	if applied {
		s.fulfill(ctx, order, cb, domain.ChannelIPN)
	}
	return payment.NewIPNResponse(payment.RspConfirmed)
}

// recordReplay keeps a Return that arrived after settlement in the audit
// trail. A failed write does not change what the browser is shown.
func (s *CallbackService) recordReplay(ctx context.Context, orderID string, payload []byte) {
	err := s.orders.AppendLog(ctx, domain.PaymentLog{
		OrderID:   orderID,
		EventType: domain.EventReturnReplayed,
		Data:      payload,
	})
	if err != nil {
		s.log.Warn("return replay log failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

// apply moves a pending order to completed or failed. On success the order
// is updated in place to reflect the stored row.
func (s *CallbackService) apply(ctx context.Context, order *domain.Order, cb payment.Callback, entry domain.PaymentLog) (bool, error) {
	to := domain.OrderFailed
	if cb.Succeeded() {
		to = domain.OrderCompleted
	}
	var txnNo *string
	if cb.TransactionNo != "" {
		txnNo = &cb.TransactionNo
	}

	applied, err := s.orders.Transition(ctx, domain.OrderTransition{
		OrderID:         order.ID,
		From:            []domain.OrderStatus{domain.OrderPending},
		To:              to,
		TransactionNo:   txnNo,
		TransactionInfo: entry.Data,
		Log:             entry,
	})
	if err != nil || !applied {
		return applied, err
	}

	order.Status = to
	order.TransactionNo = txnNo
	order.TransactionInfo = entry.Data
	s.log.Info("order settled",
		zap.String("order_id", order.ID),
		zap.String("status", string(to)),
		zap.String("response_code", cb.ResponseCode),
		zap.String("event", string(entry.EventType)),
	)
	return true, nil
}

// fulfill hands the outcome to the best-effort steps. The fulfiller
// resolves the plan and user off the request path.
func (s *CallbackService) fulfill(ctx context.Context, order *domain.Order, cb payment.Callback, ch domain.Channel) {
	outcome := domain.PaymentOutcome{
		Order:        order,
		Channel:      ch,
		ResponseCode: cb.ResponseCode,
	}
	if cb.Succeeded() {
		s.fulfiller.PaymentSucceeded(ctx, outcome)
		return
	}
	s.fulfiller.PaymentFailed(ctx, outcome)
}

func outcomeResult(orderID string, succeeded bool, order *domain.Order) *domain.ReturnResult {
	if succeeded {
		return &domain.ReturnResult{
			Status:  domain.ReturnSuccess,
			Message: "Payment successful",
			OrderID: orderID,
			Order:   order,
		}
	}
	return &domain.ReturnResult{
		Status:  domain.ReturnFailure,
		Message: "Payment failed",
		OrderID: orderID,
		Order:   order,
	}
}

func reportCurrent(order *domain.Order) *domain.ReturnResult {
	if order.Status == domain.OrderCompleted {
		return outcomeResult(order.ID, true, order)
	}
	res := outcomeResult(order.ID, false, order)
	res.Message = fmt.Sprintf("Order is %s", order.Status)
	return res
}
