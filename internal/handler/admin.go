package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gymvietai/payment/internal/domain"
)

// OrderAdmin is the admin-only order operations.
type OrderAdmin interface {
	UpdateStatus(ctx context.Context, orderID string, req *domain.UpdateOrderStatusRequest, adminID string) (*domain.Order, error)
}

type AdminHandler struct {
	orders OrderAdmin
}

func NewAdminHandler(orders OrderAdmin) *AdminHandler {
	return &AdminHandler{orders: orders}
}

// UpdateStatus handles PATCH /api/payment/admin/orders/{orderId}/status.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.UpdateOrderStatusRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, r, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), &req, claims.Sub)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, http.StatusOK, order, "order status updated")
}
