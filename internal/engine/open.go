package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/config"
	"github.com/pep299/edgewriter/internal/probe"
)

// Factory opens an engine on the given delegate
type Factory func(ctx context.Context, d probe.Delegate) (Engine, error)

// OpenWithFallback opens on the decided delegate. When a GPU open fails the
// engine is reopened on CPU.
func OpenWithFallback(ctx context.Context, decision probe.Decision, open Factory, logger *zap.Logger) (Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if decision.Delegate == probe.GPU {
		e, err := open(ctx, probe.GPU)
		if err == nil {
			return e, nil
		}
		logger.Warn("GPU initialization failed, falling back to CPU", zap.Error(err))
	} else if decision.Reason != "" {
		logger.Info("using CPU delegate", zap.String("reason", decision.Reason))
	}

	e, err := open(ctx, probe.CPU)
	if err != nil {
		return nil, fmt.Errorf("opening engine on CPU: %w", err)
	}
	return e, nil
}

// Open builds the engine configured by cfg
func Open(ctx context.Context, cfg *config.Config, decision probe.Decision, logger *zap.Logger) (Engine, error) {
	return OpenWithFallback(ctx, decision, FactoryFor(cfg, logger), logger)
}

// FactoryFor returns the factory for cfg.EngineKind
func FactoryFor(cfg *config.Config, logger *zap.Logger) Factory {
	switch cfg.EngineKind {
	case config.EngineHosted:
		return func(_ context.Context, _ probe.Delegate) (Engine, error) {
			return NewHosted(HostedConfig{APIKey: cfg.EngineAPIKey, BaseURL: cfg.EngineBaseURL, Model: cfg.EngineModel})
		}
	case config.EngineEcho:
		return func(_ context.Context, d probe.Delegate) (Engine, error) {
			return NewEcho(d, 0), nil
		}
	default:
		return func(ctx context.Context, d probe.Delegate) (Engine, error) {
			l := NewLocal(LocalConfig{
				BaseURL: cfg.EngineBaseURL,
				Model:   cfg.EngineModel,
				APIKey:  cfg.EngineAPIKey,
			}, d, logger)

			readyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := l.Ready(readyCtx); err != nil {
				return nil, err
			}
			return l, nil
		}
	}
}
