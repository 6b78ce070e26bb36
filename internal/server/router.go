package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gymvietai/payment/internal/handler"
	appMiddleware "github.com/gymvietai/payment/internal/middleware"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Health   *handler.HealthHandler
	Plans    *handler.PlansHandler
	Payment  *handler.PaymentHandler
	Callback *handler.CallbackHandler
	Admin    *handler.AdminHandler
}

// Options configures cross-cutting router behaviour.
type Options struct {
	CORSOrigins []string
	Verifier    appMiddleware.TokenVerifier
	Logger      *zap.Logger
}

// NewRouter builds the service's route tree. Rate limiter sweeps stop when
// ctx is done.
func NewRouter(ctx context.Context, h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appMiddleware.Logger(opts.Logger))
	r.Use(appMiddleware.Recovery(opts.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Gateway notifications are limited separately from user traffic
	r.Group(func(r chi.Router) {
		ipnRL := appMiddleware.NewRateLimiter(ctx, 50, 100)
		r.Use(ipnRL.Middleware())
		r.Get("/api/payment/vnpay_ipn", h.Callback.IPN)
		r.Post("/api/payment/vnpay_ipn", h.Callback.IPN)
	})

	r.Group(func(r chi.Router) {
		// Rate limiter (20 req/sec per IP, burst of 40)
		globalRL := appMiddleware.NewRateLimiter(ctx, 20, 40)
		r.Use(globalRL.Middleware())

		// Health check and public routes (no auth)
		r.Get("/health", h.Health.Check)
		r.Get("/api/payment/plans", h.Plans.List)
		r.Get("/api/payment/vnpay_return", h.Callback.Return)

		// Protected API routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.Auth(opts.Verifier))

			r.Post("/api/payment/create", h.Payment.Create)
			r.Get("/api/payment/history", h.Payment.History)
			r.Get("/api/payment/orders/{orderId}", h.Payment.Get)
			r.Get("/api/payment/orders/{orderId}/logs", h.Payment.Logs)
			r.Post("/api/payment/orders/{orderId}/cancel", h.Payment.Cancel)
			r.Post("/api/payment/orders/{orderId}/retry", h.Payment.Retry)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.AdminOnly)
				r.Patch("/api/payment/admin/orders/{orderId}/status", h.Admin.UpdateStatus)
			})
		})
	})

	return r
}
