package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/guasi18587278913/shenghaiquan-sub002/handlers"
	"github.com/guasi18587278913/shenghaiquan-sub002/middleware"
)

func MessagingRoutes(app *fiber.App) {
	api := app.Group("/api/v1", middleware.Protected())

	conversations := api.Group("/conversations")
	conversations.Get("", handlers.GetUserConversations)
	conversations.Post("", handlers.CreateConversation)

	messages := api.Group("/messages")
	messages.Get("", handlers.GetConversationMessages)
	messages.Post("", handlers.SendMessage)
}
