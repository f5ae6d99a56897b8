package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/AnTengye/legalease/backend/config"
	"github.com/AnTengye/legalease/backend/handler"
	"github.com/AnTengye/legalease/backend/middleware"
	"github.com/AnTengye/legalease/backend/pkg/logger"
	"github.com/AnTengye/legalease/backend/service"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully", "model", cfg.Gemini.Model)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize services
	gemini, err := service.NewGeminiClient(ctx, &cfg.Gemini)
	if err != nil {
		slog.Error("failed to initialize model client", "error", err)
		os.Exit(1)
	}
	hub := service.NewHub()
	go hub.Run(ctx)

	deps := service.SessionDeps{
		Analyzer: service.NewAnalysisClient(gemini,
			time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second,
			cfg.Gemini.ThinkingBudget,
		),
		Asker: service.NewAssistantClient(gemini,
			cfg.Chat.MaxDocumentChars,
			cfg.Chat.HistoryCharBudget,
			time.Duration(cfg.Chat.TimeoutSeconds)*time.Second,
		),
		Publisher:   hub,
		MaxMessages: cfg.Chat.MaxMessages,
	}

	var archive handler.DocumentArchiver
	if cfg.Archive.Enabled {
		docArchive, err := service.NewDocumentArchive(&cfg.Archive)
		if err != nil {
			slog.Error("failed to initialize document archive", "error", err)
			os.Exit(1)
		}

		// Ensure bucket exists
		if err := docArchive.EnsureBucket(ctx); err != nil {
			slog.Error("failed to ensure archive bucket", "error", err)
			os.Exit(1)
		}
		archive = docArchive
		slog.Info("document archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	store := service.NewSessionStore(cfg.Store.MaxSessions)
	ingestor := service.NewIngestor(cfg.Ingest.MaxBytes)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	sessionHandler := handler.NewSessionHandler(store, ingestor, deps, archive)
	eventsHandler := handler.NewEventsHandler(sessionHandler, hub)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware
	router.MaxMultipartMemory = cfg.Ingest.MaxBytes

	// Add custom middleware
	router.Use(middleware.RequestID())     // Request ID for tracing
	router.Use(middleware.Recovery())      // Panic recovery
	router.Use(middleware.RequestLogger()) // Access logging
	router.Use(corsMiddleware())           // CORS
	router.Use(cacheMiddleware())          // Cache control
	router.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst))

	// Serve the frontend when one is configured
	if staticDir := cfg.Server.StaticDir; staticDir != "" {
		slog.Info("serving static files", "directory", staticDir)
		router.Static("/static", staticDir)
		router.StaticFile("/", filepath.Join(staticDir, "index.html"))
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"sessions":  store.Count(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/sessions", sessionHandler.Create)
		protected.GET("/sessions", sessionHandler.List)
		protected.GET("/sessions/:id", sessionHandler.Get)
		protected.DELETE("/sessions/:id", sessionHandler.Delete)
		protected.POST("/sessions/:id/analyze", sessionHandler.Analyze)
		protected.POST("/sessions/:id/reset", sessionHandler.Reset)
		protected.POST("/sessions/:id/chat", sessionHandler.Chat)
		protected.GET("/sessions/:id/messages", sessionHandler.Messages)
		protected.GET("/sessions/:id/report.txt", sessionHandler.Report)
		protected.GET("/sessions/:id/events", eventsHandler.Stream)
	}

	// Create server. Synchronous analysis and chat answer within the request,
	// so writes must outlive the longest model call.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: time.Duration(max(cfg.Analysis.TimeoutSeconds, cfg.Chat.TimeoutSeconds)+30) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	stop()

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// cacheMiddleware sets cache control headers for static files
func cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// Skip caching for API routes
		if strings.HasPrefix(path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
			return
		}

		// Set cache headers for static files (1 hour)
		if strings.HasSuffix(path, ".js") ||
			strings.HasSuffix(path, ".css") ||
			strings.HasSuffix(path, ".html") ||
			path == "/" {
			c.Header("Cache-Control", "public, max-age=3600, must-revalidate")
		}

		c.Next()
	}
}
