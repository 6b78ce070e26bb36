package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gymvietai/payment/internal/contextkeys"
	"github.com/gymvietai/payment/internal/domain"
	"github.com/gymvietai/payment/pkg/payment"
	"go.uber.org/zap"
)

// CallbackAPI processes gateway callbacks.
type CallbackAPI interface {
	ProcessReturn(ctx context.Context, values url.Values) (*domain.ReturnResult, error)
	ProcessIPN(ctx context.Context, values url.Values) payment.IPNResponse
}

// CallbackHandler receives the gateway's Return redirect and IPN calls.
type CallbackHandler struct {
	callbacks   CallbackAPI
	frontendURL string
}

func NewCallbackHandler(callbacks CallbackAPI, frontendURL string) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks, frontendURL: frontendURL}
}

// Return handles GET /api/payment/vnpay_return by redirecting the browser to
// the frontend result page.
func (h *CallbackHandler) Return(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	orderID := values.Get(payment.FieldTxnRef)

	result, err := h.callbacks.ProcessReturn(r.Context(), values)
	if err != nil {
		contextkeys.LoggerFrom(r.Context()).Warn("return callback failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		h.redirect(w, r, domain.ReturnFailure, orderID)
		return
	}
	h.redirect(w, r, result.Status, result.OrderID)
}

// IPN handles GET and POST /api/payment/vnpay_ipn. The gateway only reads
// the body, so the status is always 200.
func (h *CallbackHandler) IPN(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			JSON(w, http.StatusOK, payment.NewIPNResponse(payment.RspUnknownError))
			return
		}
		if len(r.PostForm) > 0 {
			values = r.PostForm
		}
	}
	JSON(w, http.StatusOK, h.callbacks.ProcessIPN(r.Context(), values))
}

func (h *CallbackHandler) redirect(w http.ResponseWriter, r *http.Request, status domain.ReturnStatus, orderID string) {
	page := "/payment/failure"
	if status == domain.ReturnSuccess {
		page = "/payment/success"
	}
	target := h.frontendURL + page + "?" + url.Values{"orderId": {orderID}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}
