package routes

import (
	"agenda_backend/internal/handlers"
	"agenda_backend/internal/logger"
	"agenda_backend/internal/middleware"
	"agenda_backend/ws"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все HTTP и WebSocket маршруты.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	wsHandler *ws.WebSocketHandler,
) {
	// Регистрация HTTP API v1
	api := ginRouter.Group("/api/v1")
	{
		appHandlers.BookingHandler.RegisterRoutes(api)
		appHandlers.PaymentHandler.RegisterRoutes(api)

		// Вебхук процессинга: публичный, без JWT.
		appHandlers.WebhookHandler.RegisterRoutes(api)
	}

	// Регистрация WebSocket: пуш статусов оплаты на экран.
	wsGroup := ginRouter.Group("/ws")
	wsGroup.Use(middleware.AuthMiddleware())
	{
		wsGroup.GET("", wsHandler.ServeWS)
	}
	logger.Info("WebSocket route /ws registered")
}
