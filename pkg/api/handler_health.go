package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/database"
	"github.com/eventpulse/eventpulse/pkg/events"
)

// healthCheckTimeout bounds the dependency probes.
const healthCheckTimeout = 5 * time.Second

// healthHandler handles GET /api/v1/events/health.
// Unreachable Postgres or Redis makes the endpoint 503. A missing or
// stale worker heartbeat degrades the worker component but keeps the
// endpoint 200: ingestion still works, events just queue up.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	resp := &HealthResponse{Status: "ok"}

	if s.db == nil {
		resp.Status = "unhealthy"
		resp.Database = ComponentHealth{Status: "unreachable", Detail: "not configured"}
	} else if stats, err := database.Health(ctx, s.db.Pool()); err != nil {
		resp.Status = "unhealthy"
		resp.Database = ComponentHealth{Status: "unreachable", Detail: err.Error()}
	} else {
		resp.Database = ComponentHealth{Status: "ok"}
		resp.Stats = stats
	}

	if err := s.redis.Ping(ctx).Err(); err != nil {
		resp.Status = "unhealthy"
		resp.Redis = ComponentHealth{Status: "unreachable", Detail: err.Error()}
	} else {
		resp.Redis = ComponentHealth{Status: "ok"}
	}

	resp.Worker = s.workerHealth(ctx)

	if resp.Status != "ok" {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// workerHealth reads the TTL-bounded heartbeat key the worker
// refreshes. Key expiry means no worker has checked in recently.
func (s *Server) workerHealth(ctx context.Context) ComponentHealth {
	val, err := s.redis.Get(ctx, events.WorkerHealthKey).Result()
	if err == redis.Nil {
		return ComponentHealth{Status: "missing", Detail: "no worker heartbeat"}
	}
	if err != nil {
		return ComponentHealth{Status: "unknown", Detail: err.Error()}
	}
	return ComponentHealth{Status: "ok", Detail: val}
}
