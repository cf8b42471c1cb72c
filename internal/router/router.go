package router

import (
	"net/http"
	"strconv"
	"strings"

	"txstatus-backend/internal/config"
	"txstatus-backend/internal/handlers"
	"txstatus-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Deps everything the HTTP surface is built from
type Deps struct {
	Transactions handlers.TransactionService
	Sweeper      handlers.SweepRunner
	DB           handlers.Pinger
	Admin        config.AdminConfig
	CORS         config.CORSConfig
	Logger       *logrus.Logger
}

// corsMiddleware CORS middleware
// An empty or "*" origin list allows every origin
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowedOrigins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			allowedOrigins = append(allowedOrigins, trimmed)
		}
	}
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if allowedOrigin == origin {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			} else {
				logger.WithFields(logrus.Fields{
					"request_origin":  origin,
					"allowed_origins": allowedOrigins,
					"path":            c.Request.URL.Path,
					"method":          c.Request.Method,
					"remote_addr":     c.ClientIP(),
				}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Admin-Token, Cache-Control, Accept")
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Next()
	}
}

// SetupRouter builds the gin engine
func SetupRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(corsMiddleware(deps.CORS, logger))

	if len(deps.Admin.AllowedIPs) > 0 {
		logger.WithFields(logrus.Fields{
			"allowed_ips": deps.Admin.AllowedIPs,
			"count":       len(deps.Admin.AllowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	adminGuard := middleware.NewAdminGuard(logger, deps.Admin.AllowedIPs, deps.Admin.Token)

	// ============ Health Check ============
	r.GET("/health", handlers.HealthCheckHandler(deps.DB))

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ API Routes ============
	txHandler := handlers.NewTransactionHandler(deps.Transactions, logger)
	sweepHandler := handlers.NewAdminSweepHandler(deps.Sweeper, logger)

	api := r.Group("/api/v1")
	{
		api.POST("/transactions", txHandler.SubmitTransactionHandler)
		api.GET("/transactions/:txHash", txHandler.GetTransactionHandler)
		api.GET("/transactions/:txHash/status", txHandler.GetTransactionStatusHandler)
		api.GET("/networks", txHandler.ListNetworksHandler)

		admin := api.Group("/admin", adminGuard.Handler())
		admin.POST("/sweep", sweepHandler.RunSweepHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "API endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api/v1 endpoints for available APIs",
		})
	})

	return r
}
