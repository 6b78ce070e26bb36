package handler

import (
	"context"
	"net/http"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	db     Pinger
	authDB Pinger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db, authDB Pinger) *HealthHandler {
	return &HealthHandler{db: db, authDB: authDB}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status": "ok",
	}

	if err := h.db.Ping(ctx); err != nil {
		status["database"] = "error"
		status["status"] = "degraded"
	} else {
		status["database"] = "ok"
	}

	if err := h.authDB.Ping(ctx); err != nil {
		status["authDatabase"] = "error"
		status["status"] = "degraded"
	} else {
		status["authDatabase"] = "ok"
	}

	code := http.StatusOK
	if status["status"] == "degraded" {
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, status)
}
