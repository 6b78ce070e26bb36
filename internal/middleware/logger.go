package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gymvietai/payment/internal/contextkeys"
	"github.com/gymvietai/payment/internal/handler"
	"go.uber.org/zap"
)

// Logger attaches a request-scoped logger to the context and logs each
// request with method, path, status and duration. Query strings are not
// logged since gateway callbacks carry bank data there.
func Logger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(zap.String("request_id", chimw.GetReqID(r.Context())))

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(contextkeys.WithLogger(r.Context(), reqLogger)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			reqLogger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", handler.ClientIP(r)),
			)
		})
	}
}
