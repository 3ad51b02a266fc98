package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/delivery/http/middleware"
)

const maxBodyBytes = 4 << 10

// RouterConfig holds the inbound request policy.
type RouterConfig struct {
	APIKey     string
	RateLimit  int
	RateWindow time.Duration
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(analyzer Analyzer, checks map[string]Pinger, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(checks, logger)
		v1.GET("/health", healthHandler.Health)

		domains := v1.Group("/domains",
			middleware.APIKey(cfg.APIKey, logger),
			middleware.RateLimiter(cfg.RateLimit, cfg.RateWindow),
			middleware.BodySizeLimit(maxBodyBytes),
		)
		domainHandler := NewDomainHandler(analyzer, logger)
		domains.GET("", domainHandler.Get)
		domains.POST("", domainHandler.Post)

		wsHandler := NewWebSocketHandler(analyzer, logger)
		domains.GET("/stream", wsHandler.Stream)
	}

	return router
}
