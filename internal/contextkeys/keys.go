package contextkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// UserID is the context key for the authenticated user's ID.
	UserID contextKey = "userID"
	// UserEmail is the context key for the authenticated user's email.
	UserEmail contextKey = "userEmail"
	// UserRole is the context key for the authenticated user's role.
	UserRole contextKey = "userRole"
	// Logger is the context key for the request-scoped logger.
	Logger contextKey = "logger"
)

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, Logger, logger)
}

// LoggerFrom returns the request-scoped logger, or a no-op logger.
func LoggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(Logger).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}
