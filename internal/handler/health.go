package handler // declare the package name; contains HTTP handlers

import (
	"context"      // context bounds the database ping
	"database/sql" // sql is pinged to report readiness
	"net/http"     // net/http provides status codes
	"time"         // time sets the ping timeout

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health returns a health-check endpoint used by load balancers and
// monitoring systems.  It answers 200 "ok" when the database responds and
// 503 otherwise.
func Health(db *sql.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, "database unavailable")
		}
		return c.String(http.StatusOK, "ok")
	}
}
