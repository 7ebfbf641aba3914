package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/callback"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/config"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/health"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/mgmt"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/middleware"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/ratelimit"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/registry"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/store"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/syncsvc"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/tracing"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Configuration invalid", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.IsDevelopment()); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Optional OpenTelemetry tracing.
	if cfg.OtelEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-backend-go", cfg.OtelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		slog.Info("✅ Tracing initialized", "collector", cfg.OtelCollectorAddr)
	}

	// --- Storage and core services ---
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", cfg.DatabasePath)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("✅ Database ready", "path", cfg.DatabasePath)

	reg := registry.New(cfg)
	dispatcher := callback.New(cfg, st)
	roomSvc := mgmt.NewService(reg, st, dispatcher)
	syncSvc := syncsvc.New(reg, st, dispatcher, cfg.SyncInterval)
	gateway := transport.NewGateway(reg)

	// Restore actors for rooms that survived a restart.
	if err := roomSvc.LoadPersistedRooms(ctx); err != nil {
		slog.Error("Failed to restore persisted rooms", "error", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.NewRateLimiter(cfg)
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	// Background sync until shutdown.
	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	go syncSvc.Run(syncCtx)

	// --- Set up Server ---
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.OtelEnabled {
		router.Use(otelgin.Middleware("chat-backend-go"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = transport.AllowedOrigins(cfg.AllowedOrigins)
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, middleware.HeaderXAPIKey)
	router.Use(cors.New(corsConfig))

	// WebSocket upgrades
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/rooms/:roomId", func(c *gin.Context) {
			if !limiter.CheckWebSocket(c) {
				return
			}
			gateway.ServeWs(c)
		})
	}

	// Management control plane
	mgmtHandlers := mgmt.NewHandlers(roomSvc, syncSvc)
	mgmtGroup := router.Group("/management")
	mgmtGroup.Use(limiter.MgmtMiddleware())
	mgmtGroup.Use(middleware.APIKeyAuth(cfg.AdminAPIKey))
	mgmtHandlers.RegisterRoutes(mgmtGroup)

	// Probes and metrics
	healthHandler := health.NewHandler(st)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	bindFailed := make(chan struct{})
	go func() {
		slog.Info("API server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			close(bindFailed)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-bindFailed:
		os.Exit(1)
	}
	slog.Info("Shutting down server...")

	stopSync()

	// The context is used to inform the server it has 5 seconds to finish
	// the requests it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	// Stop room actors so remaining sessions are closed through the write
	// queue, then give the writers a moment to drain.
	for _, h := range reg.List() {
		h.Close()
	}
	time.Sleep(500 * time.Millisecond)

	slog.Info("Server exiting")
}
