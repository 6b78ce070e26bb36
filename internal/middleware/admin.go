package middleware

import (
	"net/http"

	"github.com/gymvietai/payment/internal/handler"
)

// AdminOnly middleware ensures the user has 'admin' role.
// Must be used AFTER Auth middleware which sets the caller claims in context.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := handler.ClaimsFrom(r)
		if !ok || !claims.IsAdmin() {
			handler.Fail(w, http.StatusForbidden, "forbidden: admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
