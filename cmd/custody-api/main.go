package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fleetdesk/custody-api/api/swagger"
	"github.com/fleetdesk/custody-api/internal/handler"
	"github.com/fleetdesk/custody-api/internal/middleware"
	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/internal/repository"
	"github.com/fleetdesk/custody-api/internal/service"
	"github.com/fleetdesk/custody-api/pkg/cache"
	"github.com/fleetdesk/custody-api/pkg/config"
	"github.com/fleetdesk/custody-api/pkg/database"
	"github.com/fleetdesk/custody-api/pkg/logger"
	corsmiddleware "github.com/fleetdesk/custody-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fleetdesk/custody-api/pkg/middleware/requestid"
)

// @title FleetDesk Custody API
// @version 1.0.0
// @description Back-office service for vehicle custody and replacement workflows
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck
	kv := cache.NewKV(redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	custodyRepo := repository.NewCustodyRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	webhookLogRepo := repository.NewWebhookLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	metrics := service.NewMetricsService()

	sender := service.NewLogNotificationSender(logr)
	queue := service.NewNotificationQueue(sender, cfg.Notifications, logr)
	queue.Start(ctx)
	defer queue.Stop()

	gate := service.NewApprovalGate(approvalRepo, cfg.Approval.Approvers)
	caller := service.NewHTTPWebhookCaller(cfg.Integrations.WebhookTimeout)
	dispatcher := service.NewDispatchService(notificationRepo, webhookLogRepo, gate, queue, caller,
		cfg.Integrations, cfg.Notifications.EscalationList, metrics, logr)
	sla := service.NewSLACalculator(cfg.SLA)
	custodySvc := service.NewCustodyService(custodyRepo, documentRepo, gate, sla, dispatcher, kv, cfg.Stats.CacheTTL, logr)
	exportSvc := service.NewExportService(custodyRepo, logr, nil, nil)
	tokens := service.NewTokenService(cfg.JWT)
	scheduler := service.NewSchedulerService(custodyRepo, documentRepo, webhookLogRepo, dispatcher,
		custodySvc, sla, kv, metrics, logr, cfg.Scheduler)

	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	custodyHandler := handler.NewCustodyHandler(custodySvc, exportSvc)
	schedulerHandler := handler.NewSchedulerHandler(scheduler)
	metricsHandler := handler.NewMetricsHandler(metrics, db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens))

	custodies := api.Group("/custodies")
	{
		custodies.POST("", custodyHandler.Create)
		custodies.GET("", custodyHandler.List)
		custodies.GET("/stats", custodyHandler.Stats)
		if cfg.Export.Enabled {
			custodies.GET("/export", custodyHandler.Export)
		}
		custodies.GET("/:id", custodyHandler.Get)
		custodies.DELETE("/:id", custodyHandler.Delete)
		custodies.POST("/:id/submit", custodyHandler.Submit)
		custodies.POST("/:id/approve", middleware.RequireRoles(models.RoleAdmin, models.RoleSupervisor), custodyHandler.Approve)
		custodies.POST("/:id/reject", middleware.RequireRoles(models.RoleAdmin, models.RoleSupervisor), custodyHandler.Reject)
		custodies.POST("/:id/activate", custodyHandler.Activate)
		custodies.POST("/:id/return", custodyHandler.RecordReturn)
		custodies.POST("/:id/close", custodyHandler.Close)
		custodies.POST("/:id/void", middleware.RequireRoles(models.RoleAdmin, models.RoleSupervisor), custodyHandler.Void)
		custodies.POST("/:id/documents", custodyHandler.AttachDocument)
		custodies.GET("/:id/documents", custodyHandler.ListDocuments)
	}

	api.POST("/scheduler/run", middleware.RequireRoles(models.RoleAdmin), schedulerHandler.Run)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
