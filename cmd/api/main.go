package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "warehouse/api/swagger" // swagger docs
	"warehouse/internal/cache"
	"warehouse/internal/config"
	"warehouse/internal/database"
	"warehouse/internal/handler"
	"warehouse/internal/middleware"
	"warehouse/internal/repository"
	"warehouse/internal/service"
	"warehouse/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Warehouse Invoice API
// @version         1.0
// @description     Import, export and return invoices with goods-movement and payment confirmation.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := config.NewLogger(cfg)
	gin.SetMode(cfg.GinMode)

	policy, err := cfg.CompletionPolicy()
	if err != nil {
		logger.WithError(err).Fatal("invalid completion policy")
	}

	db, err := database.NewConnection(cfg.DSN(), logger)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	logger.Info("connected to PostgreSQL")

	ctx := context.Background()
	rdb, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		// single-replica fallback: no detail cache, in-process confirmation locks
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unavailable, running without cache")
	}

	// Set up dependencies (Repository -> Service -> Handler)
	invoiceRepo := repository.NewInvoiceRepository(db)
	productRepo := repository.NewProductRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	invTxRepo := repository.NewInventoryTxRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	txManager := repository.NewTransactionManager(db)

	if err := database.SeedPermissions(ctx, roleRepo); err != nil {
		config.LogError(logger, "main", "SeedPermissions", nil, err)
	}

	invoiceCache := cache.NewInvoiceCache(rdb, cfg.CacheTTL, logger)
	locker := cache.NewLocker(rdb, cfg.LockTTL, logger)

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	invoiceService := service.NewInvoiceService(invoiceRepo, productRepo, partnerRepo, userRepo, auditRepo, txManager, invoiceCache, logger)
	confirmationService := service.NewConfirmationService(invoiceRepo, productRepo, invTxRepo, auditRepo, txManager, invoiceCache, locker, wsHub, policy, logger)
	listingService := service.NewListingService(invoiceRepo, policy, cfg.ListFallbackCap, cfg.ListMaxPageSize, logger)
	historyService := service.NewHistoryService(invoiceRepo, auditRepo)
	inventoryService := service.NewInventoryService(productRepo, invTxRepo, invoiceRepo)
	partnerService := service.NewPartnerService(partnerRepo)

	middleware.InitPermissionMiddleware(roleRepo, []byte(cfg.JWTSecret), logger)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, confirmationService, listingService, historyService, cfg.ListMaxPageSize, logger)
	inventoryHandler := handler.NewInventoryHandler(inventoryService, logger)
	partnerHandler := handler.NewPartnerHandler(partnerService, logger)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.HeaderRequestID, handler.HeaderListSession}
	corsConfig.ExposeHeaders = []string{middleware.HeaderRequestID}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, []byte(cfg.JWTSecret))
	})

	api := router.Group("")
	invoiceHandler.RegisterRoutes(api)
	inventoryHandler.RegisterRoutes(api)
	partnerHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
