package app

import (
	"context"
	"fmt"
	"time"

	"agenda_backend/database"
	"agenda_backend/internal/config"
	"agenda_backend/internal/email"
	"agenda_backend/internal/handlers"
	"agenda_backend/internal/logger"
	"agenda_backend/internal/middleware"
	"agenda_backend/internal/repositories"
	"agenda_backend/internal/routes"
	"agenda_backend/internal/services/payments"
	"agenda_backend/internal/validator"
	"agenda_backend/internal/workers"
	"agenda_backend/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	logger.Info("Connecting to database...")
	gormDB, err := database.ConnectGorm()
	if err != nil {
		logger.Fatal("Failed to connect to GORM", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	logger.Info("Database connected")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}

	ctx := context.Background()
	ginRouter := SetupRouter(ctx, cfg, gormDB)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info(fmt.Sprintf("🚀 Server starting on %s", address))
	if err := ginRouter.Run(address); err != nil {
		logger.Fatal("Server startup error", "error", err)
	}
}

// SetupRouter собирает все зависимости и возвращает готовый *gin.Engine.
// Попутно запускает фоновые горутины: websocket-хаб, фид изменений и
// глобальный монитор сверки.
func SetupRouter(ctx context.Context, cfg *config.Config, gormDB *gorm.DB) *gin.Engine {
	// 1. Репозитории
	paymentRepo := repositories.NewPaymentRepository()
	bookingRepo := repositories.NewBookingRepository()
	webhookRepo := repositories.NewWebhookEventRepository()

	// 2. WebSocket-хаб: пуш статусов оплаты на открытые экраны
	wsManager := ws.NewWebSocketManager()
	go wsManager.Run()
	wsHandler := ws.NewWebSocketHandler(wsManager)

	// 3. Нотификаторы: websocket всегда, email по конфигу, лог как страховка
	notifier := payments.MultiNotifier{
		wsManager,
		email.NewNotifier(cfg, gormDB),
		payments.LogNotifier{},
	}

	// 4. Платежный сервис
	processor := payments.NewHTTPProcessorClient(cfg.Payments.ProcessorBaseURL, cfg.Payments.ProcessorAPIKey)
	paymentService := payments.NewPaymentService(cfg, paymentRepo, bookingRepo, webhookRepo, processor, notifier)

	// 5. Фид изменений БД и мониторы открытых экранов
	feed := payments.NewChangeFeed(cfg.Database.DSN)
	go feed.Run(ctx)

	monitors := payments.NewMonitorManager(gormDB, paymentService, feed, payments.TriggerConfig{
		PollInterval:     time.Duration(cfg.Payments.PollIntervalSeconds) * time.Second,
		Heartbeat:        time.Duration(cfg.Payments.HeartbeatSeconds) * time.Second,
		MinSearchSpacing: time.Duration(cfg.Payments.MinSearchSpacingMS) * time.Millisecond,
	})

	// 6. Глобальный фоновый монитор: истечение сроков и сверка аккаунтов
	reconcileWorker := workers.NewReconcileWorker(gormDB, paymentService,
		time.Duration(cfg.Payments.MonitorIntervalSec)*time.Second)
	go reconcileWorker.Start(ctx)

	// 7. Хэндлеры
	customValidator := validator.New()
	if err := customValidator.Struct(cfg.Payments); err != nil {
		logger.Fatal("Invalid payments configuration", "error", err)
	}
	baseHandler := handlers.NewBaseHandler(customValidator)
	appHandlers := &handlers.AppHandlers{
		BookingHandler: handlers.NewBookingHandler(baseHandler, bookingRepo),
		PaymentHandler: handlers.NewPaymentHandler(baseHandler, paymentService, monitors),
		WebhookHandler: handlers.NewWebhookHandler(baseHandler, paymentService),
	}

	// 8. Gin и маршруты
	ginRouter := initializeGinRouter(gormDB)
	routes.RegisterRoutes(ginRouter, appHandlers, wsHandler)

	return ginRouter
}

func initializeGinRouter(db *gorm.DB) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.DBMiddleware(db))
	return router
}
