package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/courtfetch/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// SessionReporter exposes browser session statistics.
type SessionReporter interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports the session state and degrades status when more than half of the
// current handle's operations have failed.
func Health(sr SessionReporter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sr.Stats()

		status := "healthy"
		if stats.Uses >= 4 && stats.Failures*2 > stats.Uses {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Session: stats,
			Version: Version,
		})
	}
}
