package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-chat/internal/geo"
	"github.com/iliyamo/venue-chat/internal/model"
	"github.com/iliyamo/venue-chat/internal/service"
)

// CheckinHandler serves the establishment check-in routes.
type CheckinHandler struct {
	Service *service.CheckinService
	Logger  *zap.Logger
}

// NewCheckinHandler constructs a CheckinHandler and panics if svc is nil.
func NewCheckinHandler(svc *service.CheckinService, logger *zap.Logger) *CheckinHandler {
	if svc == nil {
		panic("nil service passed to NewCheckinHandler")
	}
	return &CheckinHandler{Service: svc, Logger: logger}
}

type checkinRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CheckinResponse is returned for an accepted check-in.  Room and access
// fields are absent when the chat side could not be updated; the check-in
// itself still counts.
type CheckinResponse struct {
	ID              uint64     `json:"id"`
	UserID          uint64     `json:"user_id"`
	EstablishmentID uint64     `json:"establishment_id"`
	DistanceMeters  float64    `json:"distance_meters"`
	CreatedAt       time.Time  `json:"created_at"`
	RoomID          *uint64    `json:"room_id,omitempty"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
}

// CheckIn handles POST /v1/establishments/:id/checkin.
func (h *CheckinHandler) CheckIn(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	estID, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	var req checkinRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.Logger, &service.ValidationError{Field: "body", Reason: "invalid JSON"})
	}
	if req.Latitude == nil || req.Longitude == nil {
		return respondError(c, h.Logger, &service.ValidationError{Field: "coordinates", Reason: "latitude and longitude are required"})
	}

	res, err := h.Service.CheckIn(c.Request().Context(), uid, estID, geo.Point{Lat: *req.Latitude, Lon: *req.Longitude})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	out := CheckinResponse{
		ID:              res.Checkin.ID,
		UserID:          res.Checkin.UserID,
		EstablishmentID: res.Checkin.EstablishmentID,
		DistanceMeters:  res.Checkin.DistanceMeters,
		CreatedAt:       res.Checkin.CreatedAt,
	}
	if res.Room != nil {
		out.RoomID = &res.Room.ID
	}
	if res.Grant != nil {
		out.AccessExpiresAt = &res.Grant.ExpiresAt
	}
	return c.JSON(http.StatusCreated, out)
}

// ListCheckins handles GET /v1/establishments/:id/checkins.
func (h *CheckinHandler) ListCheckins(c echo.Context) error {
	estID, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	list, err := h.Service.ListCheckins(c.Request().Context(), estID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if list == nil {
		list = []model.Checkin{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// Stats handles GET /v1/establishments/:id/stats.
func (h *CheckinHandler) Stats(c echo.Context) error {
	estID, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	est, st, err := h.Service.Stats(c.Request().Context(), estID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"establishment_id": est.ID,
		"name":             est.Name,
		"address":          est.Address,
		"latitude":         est.Latitude,
		"longitude":        est.Longitude,
		"total_checkins":   st.TotalCheckins,
		"last_checkin_at":  st.LastCheckinAt,
	})
}
