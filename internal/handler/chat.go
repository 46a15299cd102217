package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-chat/internal/service"
)

// ChatHandler serves the chat routes.  Every route is behind JWTAuth.
type ChatHandler struct {
	Service *service.ChatService
	Logger  *zap.Logger
}

// NewChatHandler constructs a ChatHandler and panics if svc is nil.
func NewChatHandler(svc *service.ChatService, logger *zap.Logger) *ChatHandler {
	if svc == nil {
		panic("nil service passed to NewChatHandler")
	}
	return &ChatHandler{Service: svc, Logger: logger}
}

// RoomResponse describes a room the caller may use.
type RoomResponse struct {
	RoomID            uint64    `json:"room_id"`
	EstablishmentID   uint64    `json:"establishment_id"`
	EstablishmentName string    `json:"establishment_name"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type sendRequest struct {
	Message string `json:"message"`
}

// Enter handles POST /v1/chat/rooms/:establishmentId/enter.
func (h *ChatHandler) Enter(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	estID, err := parseIDParam(c, "establishmentId")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	view, err := h.Service.EnterRoom(c.Request().Context(), uid, estID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, RoomResponse{
		RoomID:            view.Room.ID,
		EstablishmentID:   view.Room.EstablishmentID,
		EstablishmentName: view.EstablishmentName,
		Active:            view.Room.Active,
		CreatedAt:         view.Room.CreatedAt,
		ExpiresAt:         view.ExpiresAt,
	})
}

// ListMessages handles GET /v1/chat/rooms/:roomId/messages.
// Query: before, after (cursors, before wins) and limit (1..100, default 20).
func (h *ChatHandler) ListMessages(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	roomID, err := parseIDParam(c, "roomId")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	q := service.MessageQuery{}
	if q.Before, err = parseCursor(c, "before"); err != nil {
		return respondError(c, h.Logger, err)
	}
	if q.After, err = parseCursor(c, "after"); err != nil {
		return respondError(c, h.Logger, err)
	}
	// an unparsable limit falls back to the default like an out-of-range one
	q.Limit, _ = strconv.Atoi(c.QueryParam("limit"))

	list, err := h.Service.ListMessages(c.Request().Context(), uid, roomID, q)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// SendMessage handles POST /v1/chat/rooms/:roomId/messages.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	roomID, err := parseIDParam(c, "roomId")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.Logger, &service.ValidationError{Field: "body", Reason: "invalid JSON"})
	}
	m, err := h.Service.SendMessage(c.Request().Context(), uid, roomID, req.Message)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// Poll handles GET /v1/chat/rooms/:roomId/messages/poll?after=<id>.  It
// holds the request open until a message newer than after exists or the
// poll window closes, then answers with the (possibly empty) list.
func (h *ChatHandler) Poll(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	roomID, err := parseIDParam(c, "roomId")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	after, err := parseCursor(c, "after")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	list, err := h.Service.LongPoll(c.Request().Context(), uid, roomID, after)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// Participants handles GET /v1/chat/rooms/:roomId/participants.
func (h *ChatHandler) Participants(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	roomID, err := parseIDParam(c, "roomId")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	list, err := h.Service.ListParticipants(c.Request().Context(), uid, roomID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list, "count": len(list)})
}

// MyRooms handles GET /v1/chat/my-rooms.
func (h *ChatHandler) MyRooms(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	list, err := h.Service.MyRooms(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// MyRoomsDetailed handles GET /v1/chat/my-rooms/detailed.
func (h *ChatHandler) MyRoomsDetailed(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	list, err := h.Service.MyRoomsDetailed(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}
