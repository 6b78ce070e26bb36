package handler

import (
	"context"
	"net/http"

	"github.com/gymvietai/payment/internal/domain"
)

// PlanLister lists purchasable plans.
type PlanLister interface {
	ListPlans(ctx context.Context) ([]*domain.Plan, error)
}

// PlansHandler handles plan-related endpoints.
type PlansHandler struct {
	plans PlanLister
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(plans PlanLister) *PlansHandler {
	return &PlansHandler{plans: plans}
}

// List handles GET /api/payment/plans.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListPlans(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, http.StatusOK, plans, "")
}
