package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studypact/backend/internal/auth"
	"github.com/studypact/backend/internal/cache"
	"github.com/studypact/backend/internal/database"
	"github.com/studypact/backend/internal/handlers"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/metrics"
	"github.com/studypact/backend/internal/middleware"
	"github.com/studypact/backend/internal/repository"
	"github.com/studypact/backend/internal/storage"
	"github.com/studypact/backend/internal/validation"
	"github.com/studypact/backend/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Structured logging
	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("studypact backend starting")

	// Initialize database
	if err := database.Initialize(); err != nil {
		logger.Log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize auth service
	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logger.Log.Fatal("JWT_SECRET environment variable is required")
	}
	authService := auth.NewService(jwtSecret)

	// Redis-backed unlock cache. The server runs without it; every
	// visibility check then falls through to the database.
	var unlockCache *cache.UnlockCache
	redisClient, err := cache.NewRedisClient(
		os.Getenv("REDIS_HOST"),
		os.Getenv("REDIS_PORT"),
		os.Getenv("REDIS_PASSWORD"),
	)
	if err != nil {
		logger.Log.Warn("redis unavailable, unlock cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		unlockCache = cache.NewUnlockCache(redisClient)
	}

	// Initialize S3 uploader
	s3Uploader, err := storage.NewS3Uploader(
		os.Getenv("AWS_REGION"),
		os.Getenv("AWS_BUCKET"),
		os.Getenv("CDN_BASE_URL"),
	)
	if err != nil {
		logger.Log.Fatal("failed to initialize S3 uploader", zap.Error(err))
	}
	if err := s3Uploader.CheckBucketAccess(context.Background()); err != nil {
		logger.Log.Warn("S3 bucket access failed, photo uploads will fail", zap.Error(err))
	}

	// Fail fast when services named in REQUIRED_SERVICES are down
	validator := validation.NewServiceValidator(redisClient, s3Uploader)
	if err := validator.ValidateServices(context.Background()); err != nil {
		logger.Log.Fatal("service validation failed", zap.Error(err))
	}

	// Repositories
	profileRepo := repository.NewProfileRepository(database.DB)
	progressRepo := repository.NewProgressRepository(database.DB)
	gatedRepo := repository.NewGatedRepository(database.DB, progressRepo, unlockCache)
	openRepo := repository.NewOpenRepository(database.DB)

	// Initialize WebSocket hub and handler
	wsHub := websocket.NewHub()
	wsHandler := websocket.NewHandler(wsHub, jwtSecret)
	go wsHub.Run()

	// Prometheus metrics registry
	metrics.Initialize()

	// Initialize handlers
	h := handlers.NewHandlers(authService, profileRepo, progressRepo, gatedRepo, openRepo, s3Uploader, unlockCache)
	h.SetWebSocketHandler(wsHandler)

	// Setup Gin router
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// CORS middleware
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"} // Configure properly for production
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	// Health and metrics endpoints
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api/v1")
	{
		// Authentication routes (public)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)

			// User info (protected)
			authGroup.GET("/me", h.AuthMiddleware(), h.Me)
		}

		// Progress routes
		progress := api.Group("/progress")
		{
			progress.Use(h.AuthMiddleware())
			progress.PUT("", h.UpsertProgress)
			progress.GET("", h.GetProgress)
			progress.POST("/backfill", h.BackfillProgress)
		}

		// Content routes
		content := api.Group("/content")
		{
			content.Use(h.AuthMiddleware())
			content.PUT("/gated", h.UpsertGatedContent)
			content.GET("/gated", h.GetGatedContent)
			content.GET("/gated/history", h.GetGatedHistory)
			content.PUT("/open", h.UpsertOpenContent)
			content.GET("/open", h.GetOpenContent)
		}

		// Photo routes
		photos := api.Group("/photos")
		{
			photos.Use(h.AuthMiddleware())
			photos.POST("/couple", h.UploadCouplePhoto)
			photos.POST("/daily", h.UploadDailyPhotos)
			photos.DELETE("/daily", h.DeleteDailyPhoto)
		}

		// Merged per-day view
		api.GET("/days", h.AuthMiddleware(), h.GetDays)

		// WebSocket routes
		ws := api.Group("/ws")
		{
			// Connection endpoint - auth via query param ?token=... or Authorization header
			ws.GET("", wsHandler.HandleWebSocket)
			ws.GET("/connect", wsHandler.HandleWebSocket)

			// Metrics endpoint (protected)
			ws.GET("/metrics", h.AuthMiddleware(), wsHandler.HandleMetrics)
		}
	}

	// Server configuration
	port := os.Getenv("PORT")
	if port == "" {
		port = "8787"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info("listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown WebSocket connections gracefully
	if err := wsHandler.Shutdown(ctx); err != nil {
		logger.Log.Warn("websocket shutdown", zap.Error(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("server exited")
}
