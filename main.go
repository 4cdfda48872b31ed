package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pawtrack/pawtrack-backend/internal/analytics"
	"github.com/pawtrack/pawtrack-backend/internal/cache"
	"github.com/pawtrack/pawtrack-backend/internal/config"
	"github.com/pawtrack/pawtrack-backend/internal/handler"
	"github.com/pawtrack/pawtrack-backend/internal/kv"
	"github.com/pawtrack/pawtrack-backend/internal/middleware"
	"github.com/pawtrack/pawtrack-backend/internal/migrate"
	"github.com/pawtrack/pawtrack-backend/internal/queue"
	"github.com/pawtrack/pawtrack-backend/internal/readiness"
	"github.com/pawtrack/pawtrack-backend/internal/service"
	"github.com/pawtrack/pawtrack-backend/internal/store"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	pool   *pgxpool.Pool
	cfg    *config.Config
)

func main() {
	// Load configuration
	var err error
	cfg, err = config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database connection pool with pgx
	pool, err = store.Connect(context.Background(), cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// Test database connection
	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Successfully connected to database")

	// Run embedded migrations
	if cfg.Database.Migrate {
		if err := migrate.Up(context.Background(), cfg.Database.URL); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	// Open the local key-value store shared by the summary cache and the
	// offline queue
	local, err := kv.Open(cfg.Local.Path)
	if err != nil {
		logger.Fatal("Failed to open local store", zap.Error(err))
	}
	defer local.Close()

	// Initialize core components
	durableStore := store.New(pool, logger)
	summaryCache := cache.New(local, logger, time.Now)
	tracker := analytics.NewZapTracker(logger)

	treatmentService := service.NewTreatmentService(
		durableStore,
		summaryCache,
		service.PassthroughValidator{},
		tracker,
		logger,
		time.Now,
	)

	offlineQueue := queue.New(local, logger, nil, nil)

	// Readiness gate: cache warm-up and queue drain wait for both auth and
	// profile signals, whichever order they arrive in
	ready := readiness.New(func(userID, petID string) {
		summaryCache.InvalidateExpired()
		if _, _, err := offlineQueue.Drain(context.Background(), treatmentService); err != nil {
			logger.Warn("offline queue drain finished with failures", zap.Error(err))
		}
	}, logger)

	readyCtx, cancelReady := context.WithCancel(context.Background())
	defer cancelReady()
	go ready.Run(readyCtx)

	// Initialize handlers
	treatmentHandler := handler.NewTreatmentHandler(treatmentService, offlineQueue, logger)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	r := gin.New()

	// Add recovery middleware (must be first)
	r.Use(middleware.RecoveryMiddleware(logger))

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Configure appropriately for production
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add request ID middleware
	r.Use(middleware.RequestIDMiddleware())

	// Add request logging middleware
	r.Use(middleware.RequestLoggingMiddleware(logger))

	// Register routes
	treatmentHandler.Register(r)
	r.POST("/api/v1/ready/auth", func(c *gin.Context) {
		ready.AuthReady(c.Query("user_id"))
		c.Status(http.StatusAccepted)
	})
	r.POST("/api/v1/ready/profile", func(c *gin.Context) {
		ready.ProfileReady(c.Query("pet_id"))
		c.Status(http.StatusAccepted)
	})
	r.GET("/health", healthCheck)

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close database connections
	pool.Close()

	logger.Info("Server exited")
}

// healthCheck reports process and database health.
func healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("health check failed: database unreachable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
		"service":  "pawtrack-backend",
		"version":  "1.0.0",
	})
}
