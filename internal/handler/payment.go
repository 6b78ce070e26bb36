package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gymvietai/payment/internal/domain"
)

// OrderAPI is the order operations exposed over HTTP.
type OrderAPI interface {
	Create(ctx context.Context, userID string, req *domain.CreateOrderRequest, clientIP string) (*domain.CheckoutResponse, error)
	Get(ctx context.Context, orderID string, caller *domain.JWTClaims) (*domain.Order, error)
	Logs(ctx context.Context, orderID string, caller *domain.JWTClaims) ([]*domain.PaymentLog, error)
	History(ctx context.Context, userID string) ([]*domain.Order, error)
	Cancel(ctx context.Context, orderID, userID string) (*domain.Order, error)
	Retry(ctx context.Context, orderID, userID, clientIP string) (*domain.CheckoutResponse, error)
}

type PaymentHandler struct {
	orders OrderAPI
}

func NewPaymentHandler(orders OrderAPI) *PaymentHandler {
	return &PaymentHandler{orders: orders}
}

// Create handles POST /api/payment/create.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.CreateOrderRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, r, err)
		return
	}

	resp, err := h.orders.Create(r.Context(), claims.Sub, &req, ClientIP(r))
	if err != nil {
		Error(w, r, err)
		return
	}

	OK(w, http.StatusCreated, resp, "payment URL created")
}

// History handles GET /api/payment/history.
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.orders.History(r.Context(), claims.Sub)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, http.StatusOK, orders, "")
}

// Get handles GET /api/payment/orders/{orderId}.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderId"), claims)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, http.StatusOK, order, "")
}

// Logs handles GET /api/payment/orders/{orderId}/logs.
func (h *PaymentHandler) Logs(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	logs, err := h.orders.Logs(r.Context(), chi.URLParam(r, "orderId"), claims)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, http.StatusOK, logs, "")
}

// Cancel handles POST /api/payment/orders/{orderId}/cancel.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	order, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "orderId"), claims.Sub)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, http.StatusOK, order, "order cancelled")
}

// Retry handles POST /api/payment/orders/{orderId}/retry.
func (h *PaymentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp, err := h.orders.Retry(r.Context(), chi.URLParam(r, "orderId"), claims.Sub, ClientIP(r))
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, http.StatusOK, resp, "payment URL created")
}
