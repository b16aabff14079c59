package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/classattest/attest-backend/internal/response"
)

// HealthHandler implements GET /healthz.
type HealthHandler struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{pool: pool, rdb: rdb}
}

// Check handles GET /healthz: it pings both backing stores and reports
// "ok" only if both are reachable.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.pool.Ping(ctx); err != nil {
		response.Success(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
		return
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		response.Success(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": "down"})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}
