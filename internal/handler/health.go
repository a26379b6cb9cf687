package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/response"
)

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewHealthHandler builds the checks.  rdb may be nil when Redis is not
// configured; it is then left out of readiness.
func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

// Live reports that the process is serving requests.
func (h *HealthHandler) Live(c echo.Context) error {
	return response.OK(c, http.StatusOK, "ok", nil)
}

// Ready pings the database and Redis.  Redis failing degrades the service
// but does not make it unready; the database failing does.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	if err := h.db.PingContext(ctx); err != nil {
		log.Warn().Err(err).Msg("readiness: database ping failed")
		checks["database"] = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, response.Envelope{Success: false, Message: "not ready", Data: checks})
	}
	if h.rdb != nil {
		checks["redis"] = "ok"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = "degraded"
		}
	}
	return response.OK(c, http.StatusOK, "ready", checks)
}
