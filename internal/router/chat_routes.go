package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-chat/internal/handler"
	"github.com/iliyamo/venue-chat/internal/middleware"
)

// RegisterChat registers the chat endpoints under /v1/chat.  All routes
// require a valid JWT; access to a specific room is further checked against
// the caller's grant inside the service.  Responses are never cached.
func RegisterChat(e *echo.Echo, h *handler.ChatHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/chat", middleware.JWTAuth(jwtSecret), limit)

	g.POST("/rooms/:establishmentId/enter", h.Enter)
	g.GET("/rooms/:roomId/messages", h.ListMessages)
	g.POST("/rooms/:roomId/messages", h.SendMessage)
	g.GET("/rooms/:roomId/messages/poll", h.Poll)
	g.GET("/rooms/:roomId/participants", h.Participants)

	g.GET("/my-rooms", h.MyRooms)
	g.GET("/my-rooms/detailed", h.MyRoomsDetailed)
}
