// Package router wires the HTTP surface: check-in/confirm state machine,
// RSSI ingestion, on-demand correlation analysis, and the anomaly review
// queue.
package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/classattest/attest-backend/internal/config"
	"github.com/classattest/attest-backend/internal/handler"
	"github.com/classattest/attest-backend/internal/metrics"
	"github.com/classattest/attest-backend/internal/middleware"
	"github.com/classattest/attest-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attendance *handler.AttendanceHandler
	Ingestion  *handler.IngestionHandler
	Analyzer   *handler.AnalyzerHandler
	Anomaly    *handler.AnomalyHandler
	Health     *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list and allow
	// credentials; otherwise allow all (*) so dev works without extra
	// config. Credentials cannot be combined with the wildcard origin
	// (the CORS spec forbids it and gin-contrib/cors rejects the combo).
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response/log line can
	// be correlated back to the originating request.
	router.Use(response.RequestIDMiddleware())

	router.Use(func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, fmt.Sprintf("%dxx", c.Writer.Status()/100)).Inc()
	})

	// Ingestion is the highest-volume route (devices stream samples every
	// few seconds) and the one most worth shielding from a runaway client.
	ingestLimiter := middleware.NewRateLimiter(120, time.Minute)

	router.GET("/healthz", handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	{
		api.POST("/check-in", handlers.Attendance.CheckIn)
		api.POST("/attendance/confirm", handlers.Attendance.Confirm)
		api.POST("/attendance/cancel-provisional", handlers.Attendance.CancelProvisional)
		api.GET("/attendance/today/:studentId", handlers.Attendance.QueryToday)

		api.POST("/attendance/rssi-stream", ingestLimiter.Middleware(), handlers.Ingestion.AppendStream)

		api.POST("/analyze-correlations", handlers.Analyzer.Trigger)

		api.GET("/anomalies", handlers.Anomaly.List)
		api.PUT("/anomalies/:id/review", handlers.Anomaly.Review)
	}

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	return router
}
