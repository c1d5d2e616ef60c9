package handlers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/cache"
	"github.com/pep299/edgewriter/internal/config"
	"github.com/pep299/edgewriter/internal/engine"
	"github.com/pep299/edgewriter/internal/metrics"
	"github.com/pep299/edgewriter/internal/probe"
)

// Bootstrap probes the host, opens the configured engine and cache, and
// returns a server ready for SetupRoutes
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	prober := probe.NewProber(logger)
	decision := Decide(ctx, cfg, prober, logger)

	e, err := engine.Open(ctx, cfg, decision, logger)
	if err != nil {
		return nil, fmt.Errorf("opening engine: %w", err)
	}
	logger.Info("engine ready",
		zap.String("engine", engine.Label(e)),
		zap.String("status", probe.Status(decision, e.Delegate())),
	)

	cacheManager, err := cache.NewManager(ctx, cache.OptionsFromConfig(cfg))
	if err != nil {
		closeEngine(e)
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return NewServer(cfg, Deps{
		Engine:   e,
		Decision: decision,
		Prober:   prober,
		Cache:    cacheManager,
		Metrics:  metrics.New(),
		Logger:   logger,
	})
}

// Decide evaluates the host adapter and the model size. Hosted engines
// always run on CPU.
func Decide(ctx context.Context, cfg *config.Config, prober *probe.Prober, logger *zap.Logger) probe.Decision {
	if cfg.EngineKind == config.EngineHosted {
		return probe.Decision{Delegate: probe.CPU, Reason: "Hosted inference"}
	}

	support := probe.Evaluate(prober.Adapter(ctx))
	var size int64
	if cfg.ModelLocation != "" {
		n, err := probe.NewModelSizer().Size(ctx, cfg.ModelLocation)
		if err != nil {
			logger.Warn("model size unknown", zap.String("location", cfg.ModelLocation), zap.Error(err))
		}
		size = n
	}

	decision := probe.Decide(support, size)
	logger.Info("delegate selected",
		zap.String("delegate", string(decision.Delegate)),
		zap.String("adapter", support.Adapter),
		zap.String("reason", decision.Reason),
		zap.Int64("model_bytes", size),
	)
	return decision
}

// CheckUpstream verifies the engine backend and records the result
func (s *Server) CheckUpstream(ctx context.Context) error {
	err := engine.Check(ctx, s.engine)
	s.metrics.SetUpstreamHealthy(err == nil)
	if err != nil {
		s.logger.Warn("engine unhealthy", zap.Error(err))
	}
	return err
}

// Close releases the engine and cache
func (s *Server) Close() error {
	var errs []error
	if err := closeEngine(s.engine); err != nil {
		errs = append(errs, err)
	}
	if err := s.cacheManager.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func closeEngine(e engine.Engine) error {
	if c, ok := e.(engine.Closer); ok {
		return c.Close()
	}
	return nil
}
