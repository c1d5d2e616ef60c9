package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/stream"
)

// LocalConfig configures an OpenAI-compatible completion server such as
// llama.cpp or vLLM
type LocalConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Local streams raw-prompt completions from an OpenAI-compatible server
type Local struct {
	client   *openai.Client
	model    string
	delegate probe.Delegate
	logger   *zap.Logger
}

// NewLocal creates a local engine. It does not contact the server; see Ready.
func NewLocal(cfg LocalConfig, delegate probe.Delegate, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &Local{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		delegate: delegate,
		logger:   logger,
	}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Delegate() probe.Delegate { return l.delegate }

// Ready checks that the server is up and serves the configured model
func (l *Local) Ready(ctx context.Context) error {
	models, err := l.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing models: %v", ErrNotReady, err)
	}
	if l.model == "" {
		return nil
	}
	for _, m := range models.Models {
		if m.ID == l.model {
			return nil
		}
	}
	return fmt.Errorf("%w: model %s not served", ErrNotReady, l.model)
}

// Generate streams completion chunks. Usage is estimated from the prompt
// and the number of streamed chunks.
func (l *Local) Generate(ctx context.Context, text string, opts Options) (<-chan stream.Chunk, error) {
	req := openai.CompletionRequest{
		Model:       l.model,
		Prompt:      text,
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		Stop:        opts.Stop,
	}

	s, err := l.client.CreateCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating completion stream: %w", err)
	}

	out := make(chan stream.Chunk, 16)
	go func() {
		defer close(out)
		defer func() { _ = s.Close() }()

		completion := 0
		for {
			resp, err := s.Recv()
			if errors.Is(err, io.EOF) {
				promptTokens := prompt.EstimateTokens(text)
				send(ctx, out, stream.Chunk{Final: true, Usage: &stream.Usage{
					Prompt:     promptTokens,
					Completion: completion,
					Total:      promptTokens + completion,
				}})
				return
			}
			if err != nil {
				l.logger.Warn("completion stream failed", zap.Error(err), zap.Int("chunks", completion))
				send(ctx, out, stream.Chunk{Err: fmt.Errorf("receiving completion: %w", err)})
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Text == "" {
				continue
			}
			completion++
			if !send(ctx, out, stream.Chunk{Text: resp.Choices[0].Text}) {
				return
			}
		}
	}()
	return out, nil
}
