package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/gymvietai/payment/internal/contextkeys"
	"github.com/gymvietai/payment/internal/domain"
	"go.uber.org/zap"
)

// Envelope is the response shape of every JSON endpoint except the IPN.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, status int, data interface{}, message string) {
	JSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// Fail writes a failure envelope.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Message: message})
}

// Error writes an error envelope, using AppError status codes when available.
// Server-side failures are logged with the request logger.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	logger := contextkeys.LoggerFrom(r.Context())
	if appErr, ok := domain.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			logger.Error("request failed", zap.Int("status", appErr.Code), zap.Error(err))
		}
		Fail(w, appErr.Code, appErr.Message)
		return
	}
	logger.Error("unhandled error", zap.Error(err))
	Fail(w, http.StatusInternalServerError, "internal server error")
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}

// ClaimsFrom returns the caller identity stored by the auth middleware.
func ClaimsFrom(r *http.Request) (*domain.JWTClaims, bool) {
	ctx := r.Context()
	userID, ok := ctx.Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		return nil, false
	}
	email, _ := ctx.Value(contextkeys.UserEmail).(string)
	role, _ := ctx.Value(contextkeys.UserRole).(string)
	return &domain.JWTClaims{Sub: userID, Email: email, Role: role}, true
}

// ClientIP returns the client IP, preferring proxy headers if available.
func ClientIP(r *http.Request) string {
	// Check X-Real-IP first (set by Nginx)
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	// Check X-Forwarded-For (first entry is the original client)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
