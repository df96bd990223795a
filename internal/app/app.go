package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ussbot/internal/config"
	"ussbot/internal/db"
	"ussbot/internal/handlers"
	"ussbot/internal/lifecycle"
	"ussbot/internal/logger"
	"ussbot/internal/migrate"
	"ussbot/internal/repositories"
	"ussbot/internal/routes"
	"ussbot/internal/services"
	"ussbot/internal/telegram"
)

// Run wires the whole bot together and blocks until shutdown.
func Run() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(0, zapLogger)
	manager.Listen(cancel)

	// === DB ===
	conn, err := db.Open(cfg.Database.Path)
	if err != nil {
		zapLogger.Fatal("database open failed", zap.Error(err))
	}
	manager.Register("sqlite", func(ctx context.Context) error {
		return conn.Close()
	})
	if err := migrate.Migrate(conn); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	// === Repos ===
	taskRepo := repositories.NewTaskRepository(conn, cfg.Database.Workers)

	// === Transport ===
	gateway, err := telegram.New(cfg.Bot.Token, zapLogger)
	if err != nil {
		zapLogger.Fatal("telegram gateway failed", zap.Error(err))
	}

	// === Services ===
	notifyService := services.NewNotifyService(gateway, zapLogger)
	assignmentService := services.NewAssignmentService(taskRepo, notifyService, gateway, zapLogger, services.AssignmentOptions{
		AdminOnly: cfg.Bot.AdminOnlyAssign,
		FlowTTL:   time.Duration(cfg.Bot.FlowTTLMinutes) * time.Minute,
		Timezone:  cfg.Schedule.Timezone,
	})
	gateway.Bind(assignmentService)

	reminderService, err := services.NewReminderService(taskRepo, notifyService, zapLogger, services.ScheduleConfig{
		Hour:     cfg.Schedule.Hour,
		Minute:   cfg.Schedule.Minute,
		Timezone: cfg.Schedule.Timezone,
	})
	if err != nil {
		zapLogger.Fatal("reminder service failed", zap.Error(err))
	}
	if err := reminderService.Start(); err != nil {
		zapLogger.Fatal("reminder schedule failed", zap.Error(err))
	}
	manager.Register("reminder_scheduler", func(ctx context.Context) error {
		reminderService.Stop(ctx)
		return nil
	})

	// === Ops HTTP ===
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, handlers.NewStatusHandler(conn, taskRepo, zapLogger))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		zapLogger.Info("ops server started", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("ops server crashed", zap.Error(err))
		}
	}()
	manager.Register("ops_server", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})

	// === Update loop ===
	go gateway.Run(appCtx)
	manager.Register("telegram_gateway", func(ctx context.Context) error {
		gateway.Stop()
		return nil
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
