package router

import (
	"context"

	"clinic_chat_service/internal/chat/app"
	"clinic_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊聊天室路由
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, attachments *app.AttachmentHandler) {
	r.Use(middlewares.JWTMiddleware())

	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// GET /ws?patient_id=&doctor_id=
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Post("/rooms/:roomID/attachments", attachments.Upload)
}
