package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql" // sql backs the health check

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/venue-chat/internal/handler"    // handlers implementing each endpoint
	"github.com/iliyamo/venue-chat/internal/middleware" // JWT authentication
)

// RegisterRoutes registers routes that do not require authentication and
// are not versioned.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterEstablishments registers the check-in routes.  Checking in needs
// an access token and is rate limited; the check-in list and statistics are
// public, and the statistics may be served from cache.
func RegisterEstablishments(e *echo.Echo, h *handler.CheckinHandler, jwtSecret string, limit, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/establishments")
	g.POST("/:id/checkin", h.CheckIn, middleware.JWTAuth(jwtSecret), limit)
	g.GET("/:id/checkins", h.ListCheckins)
	g.GET("/:id/stats", h.Stats, cache)
}
