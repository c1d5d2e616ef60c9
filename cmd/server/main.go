package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/config"
	"github.com/pep299/edgewriter/internal/handlers"
	"github.com/pep299/edgewriter/internal/logger"
	"github.com/pep299/edgewriter/internal/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "edgewriter-server",
		Endpoint:    cfg.TracingEndpoint,
		SampleRate:  cfg.TracingSampleRate,
	})
	if err != nil {
		zl.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Create server
	server, err := handlers.Bootstrap(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to create server", zap.Error(err))
	}

	// Setup routes
	router := server.SetupRoutes()

	// Create HTTP server. Generation can outlast the usual write timeout.
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Periodic upstream health checks and conversation pruning
	scheduler := cron.New()
	if cfg.HealthSchedule != "" {
		if _, err := scheduler.AddFunc(cfg.HealthSchedule, func() {
			checkCtx, checkCancel := context.WithTimeout(ctx, 10*time.Second)
			defer checkCancel()
			server.CheckUpstream(checkCtx)
		}); err != nil {
			zl.Fatal("Invalid health schedule", zap.String("schedule", cfg.HealthSchedule), zap.Error(err))
		}
		server.CheckUpstream(ctx)
	}
	scheduler.AddFunc("@every 5m", func() {
		if n := server.PruneConversations(time.Now()); n > 0 {
			zl.Debug("Pruned idle conversations", zap.Int("count", n))
		}
	})
	scheduler.Start()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server
	go func() {
		zl.Info("Starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	zl.Info("Shutting down server...")

	// Stop background tasks
	<-scheduler.Stop().Done()
	cancel()

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}
	if err := server.Close(); err != nil {
		zl.Error("Releasing resources failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zl.Error("Tracing shutdown error", zap.Error(err))
	}

	zl.Info("Server stopped")
}
