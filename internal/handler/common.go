package handler // handler defines http handlers

import (
	"context"  // context errors mark a client that went away
	"errors"   // errors.Is / errors.As map service failures
	"net/http" // net/http provides status codes
	"strconv"  // strconv parses path and query ids
	"time"     // time formats expiry instants

	"github.com/labstack/echo/v4" // echo defines request context types
	"go.uber.org/zap"             // zap logs unexpected failures

	"github.com/iliyamo/venue-chat/internal/middleware" // middleware stores the caller id
	"github.com/iliyamo/venue-chat/internal/service"    // service defines the error kinds
)

// getUserID returns the caller id placed in the context by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if uid, ok := middleware.UserID(c); ok {
		return uid, nil
	}
	return 0, service.ErrNotAuthenticated
}

// parseIDParam reads a positive numeric path parameter.
func parseIDParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return id, nil
}

// parseCursor reads an optional numeric query parameter; nil when absent.
func parseCursor(c echo.Context, name string) (*uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, &service.ValidationError{Field: name, Reason: "must be a non-negative integer"}
	}
	return &v, nil
}

// respondError maps a service error to its HTTP status and JSON body.
func respondError(c echo.Context, logger *zap.Logger, err error) error {
	var (
		vErr *service.ValidationError
		gErr *service.GeofenceError
		aErr *service.GrantError
	)
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "field": vErr.Field, "message": vErr.Error()})
	case errors.Is(err, service.ErrNotAuthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not_authenticated", "message": err.Error()})
	case errors.As(err, &gErr):
		return c.JSON(http.StatusForbidden, echo.Map{
			"error":           "access_denied",
			"reason":          "too_far",
			"message":         gErr.Error(),
			"distance_meters": gErr.DistanceMeters,
			"radius_meters":   gErr.RadiusMeters,
		})
	case errors.As(err, &aErr):
		body := echo.Map{"error": "access_denied", "reason": "checkin_required", "message": aErr.Error()}
		if aErr.Expired {
			body["reason"] = "access_expired"
			body["expired_at"] = aErr.ExpiredAt.UTC().Format(time.RFC3339)
		}
		return c.JSON(http.StatusForbidden, body)
	case errors.Is(err, service.ErrAccessDenied):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access_denied"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, context.Canceled):
		// the client hung up; nobody is left to read a response
		return nil
	}
	logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}
