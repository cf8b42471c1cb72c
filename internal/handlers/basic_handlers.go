package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthCheckHandler liveness plus database reachability
// GET /health
func HealthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		database := "ok"
		status := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				database = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"service":  "txstatus-backend",
			"database": database,
		})
	}
}
