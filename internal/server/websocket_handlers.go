package server

import (
	"encoding/json"
	"log/slog"

	"smedia/internal/featureflags"
	"smedia/internal/middleware"
	"smedia/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type clientFrame struct {
	Type string `json:"type"`
}

// FeedWebsocketHandler upgrades GET /api/ws/feed. Once connected the client
// receives feed events for everyone plus the ones addressed to its email.
func (s *Server) FeedWebsocketHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		id, ok := conn.Locals(middleware.LocalIdentity).(middleware.Identity)
		if !ok || id.Email == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(id.Email, conn)
		if err != nil {
			middleware.Logger.Warn("feed websocket rejected",
				slog.String("user_id", id.UserID),
				slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var frame clientFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				return
			}
			if frame.Type == "ping" {
				c.TrySend([]byte(`{"type":"pong"}`))
			}
		}

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		id, ok := middleware.IdentityFrom(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		if !s.featureFlags.Enabled(featureflags.LiveFeed, id.Email) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "live feed is not enabled"})
		}
		return upgrade(c)
	}
}
