// Package edgewriter exposes the EdgeWriter HTTP API as a Cloud Function.
package edgewriter

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/pep299/edgewriter/internal/config"
	"github.com/pep299/edgewriter/internal/handlers"
	"github.com/pep299/edgewriter/internal/logger"
)

var (
	mu     sync.Mutex
	router http.Handler

	// replaced in tests
	setupHandler = setup
)

func init() {
	functions.HTTP("EdgeWriter", Handle)
}

// Handle serves the inference API. The engine and cache are opened on the
// first request and reused by later invocations of the same instance. A
// failed setup is retried on the next request.
func Handle(w http.ResponseWriter, r *http.Request) {
	h, err := handler(context.Background())
	if err != nil {
		log.Printf("Failed to create server: %v", err)
		http.Error(w, "Service not initialized", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

func handler(ctx context.Context) (http.Handler, error) {
	mu.Lock()
	defer mu.Unlock()
	if router != nil {
		return router, nil
	}
	h, err := setupHandler(ctx)
	if err != nil {
		return nil, err
	}
	router = h
	return router, nil
}

func setup(ctx context.Context) (http.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	zl, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: "json"})
	if err != nil {
		return nil, err
	}
	server, err := handlers.Bootstrap(ctx, cfg, zl)
	if err != nil {
		return nil, err
	}
	return server.SetupRoutes(), nil
}
