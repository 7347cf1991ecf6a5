package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/kurdsoft/erp-attendance-api/api/swagger"
	"github.com/kurdsoft/erp-attendance-api/internal/handler"
	"github.com/kurdsoft/erp-attendance-api/internal/middleware"
	"github.com/kurdsoft/erp-attendance-api/internal/models"
	"github.com/kurdsoft/erp-attendance-api/internal/repository"
	"github.com/kurdsoft/erp-attendance-api/internal/service"
	"github.com/kurdsoft/erp-attendance-api/pkg/cache"
	"github.com/kurdsoft/erp-attendance-api/pkg/config"
	"github.com/kurdsoft/erp-attendance-api/pkg/database"
	"github.com/kurdsoft/erp-attendance-api/pkg/jobs"
	"github.com/kurdsoft/erp-attendance-api/pkg/logger"
	corsmiddleware "github.com/kurdsoft/erp-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kurdsoft/erp-attendance-api/pkg/middleware/requestid"
	"github.com/kurdsoft/erp-attendance-api/pkg/storage"
)

// @title ERP Attendance API
// @version 1.0.0
// @description Attendance capture, exception workflow and reporting service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	service.RegisterAttendanceValidations(validate)

	attendanceRepo := repository.NewAttendanceRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Summary.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Summary.CacheTTL, logr, true)
		defer cacheRepo.Close() //nolint:errcheck
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "erp-attendance-api",
	})
	summarySvc := service.NewSummaryService(attendanceRepo, cacheSvc, metricsSvc, logr, service.SummaryServiceConfig{
		CacheTTL: cfg.Summary.CacheTTL,
	})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, userRepo, summarySvc, validate, logr)
	exceptionSvc := service.NewExceptionService(attendanceRepo, userRepo, summarySvc, validate, logr)

	closeDaySvc := service.NewCloseDayService(attendanceRepo, userRepo, summarySvc, logr, jobs.QueueConfig{
		Workers:    cfg.CloseDay.WorkerConcurrency,
		MaxRetries: cfg.CloseDay.WorkerRetries,
	})
	closeDaySvc.Start(rootCtx)
	defer closeDaySvc.Stop()

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(attendanceRepo, store, signer, validate, logr)
		exportSvc.StartCleanupLoop(rootCtx, cfg.Exports.CleanupInterval, cfg.Exports.SignedURLTTL)
	}

	if cfg.DemoSeed.Enabled {
		seedSvc := service.NewSeedService(attendanceRepo, logr)
		if err := seedSvc.Seed(rootCtx); err != nil {
			logr.Sugar().Warnw("demo seed failed", "error", err)
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	authHandler := handler.NewAuthHandler(authSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, closeDaySvc)
	exceptionHandler := handler.NewExceptionHandler(exceptionSvc)
	summaryHandler := handler.NewSummaryHandler(summarySvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/snapshot", metricsHandler.Snapshot)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	authed := auth.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.POST("/logout", authHandler.Logout)
	authed.GET("/me", authHandler.Me)

	attendance := api.Group("/attendance")
	attendance.Use(middleware.JWT(authSvc))
	attendance.GET("", attendanceHandler.List)
	attendance.POST("", attendanceHandler.CheckIn)
	attendance.GET("/summary", summaryHandler.Daily)
	attendance.GET("/trend", summaryHandler.Trend)
	attendance.GET("/employees/:id/summary",
		middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleHRAdmin), string(models.RoleManager), middleware.SelfRole),
		summaryHandler.Employee)
	attendance.POST("/exception", exceptionHandler.File)
	attendance.PUT("/exception/:id", middleware.RequireDeciders(), exceptionHandler.Decide)
	attendance.PUT("/late/:id", middleware.RequireDeciders(), attendanceHandler.CorrectLateness)
	attendance.PUT("/:id/checkout", attendanceHandler.CheckOut)
	attendance.PUT("/:id",
		middleware.RequireRoles(models.RoleSuperAdmin, models.RoleHRAdmin),
		attendanceHandler.Replace)
	attendance.DELETE("/:id",
		middleware.RequireRoles(models.RoleSuperAdmin, models.RoleHRAdmin),
		attendanceHandler.Delete)
	attendance.POST("/close-day",
		middleware.RequireRoles(models.RoleSuperAdmin, models.RoleHRAdmin),
		attendanceHandler.CloseDay)

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		attendance.POST("/export",
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleHRAdmin, models.RoleManager),
			exportHandler.Generate)
		api.GET("/export/:token", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
