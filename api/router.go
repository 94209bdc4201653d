package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/courtfetch/api/handler"
	"github.com/use-agent/courtfetch/api/middleware"
	"github.com/use-agent/courtfetch/config"
)

// Deps are the services behind the routes.
type Deps struct {
	Cases    handler.CaseService
	Session  handler.SessionReporter
	Archives handler.ArchiveBuilder
	History  handler.QueryLog
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//	Browser: BrowserRateLimit (captcha, case types, case query)
//
// Health endpoint is outside auth so monitoring probes always work.
func NewRouter(deps Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health, no auth required.
	v1.GET("/health", handler.Health(deps.Session, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Captcha-bound session, behind the stricter browser bucket
	browser := protected.Group("", middleware.BrowserRateLimit(cfg.RateLimit))
	browser.GET("/captcha", handler.Captcha(deps.Cases))
	browser.POST("/captcha/refresh", handler.RefreshCaptcha(deps.Cases))
	browser.GET("/case-types", handler.CaseTypes(deps.Cases))
	browser.POST("/cases/query", handler.CaseQuery(deps.Cases))

	// Orders
	protected.POST("/orders/links", handler.OrderLinks(deps.Cases))
	protected.POST("/orders/archive", handler.OrdersArchive(deps.Cases, deps.Archives))

	// Request log
	if deps.History != nil {
		protected.GET("/queries", handler.Queries(deps.History))
	}

	return r
}
