package engine

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/stream"
)

// HostedConfig configures a hosted chat-completion provider
type HostedConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Hosted sends the prompt as one user message and returns the reply as a
// single final chunk
type Hosted struct {
	Model string
	Opts  []option.RequestOption
}

// NewHosted validates cfg and creates a hosted engine
func NewHosted(cfg HostedConfig) (*Hosted, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("hosted engine api key missing")
	}
	if cfg.Model == "" {
		return nil, errors.New("hosted engine model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Hosted{Model: cfg.Model, Opts: opts}, nil
}

func (h *Hosted) Name() string { return "hosted" }

// Delegate is always CPU from the point of view of the local host
func (h *Hosted) Delegate() probe.Delegate { return probe.CPU }

func (h *Hosted) Generate(ctx context.Context, text string, opts Options) (<-chan stream.Chunk, error) {
	client := openai.NewClient(h.Opts...)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(h.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(text)},
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}

	// The completion runs in the background so a stopped session returns
	// without waiting for it. Closing the session cancels ctx, which aborts
	// the request.
	out := make(chan stream.Chunk, 1)
	go func() {
		defer close(out)
		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			out <- stream.Chunk{Err: fmt.Errorf("hosted completion: %w", err)}
			return
		}
		if len(resp.Choices) == 0 {
			out <- stream.Chunk{Err: errors.New("hosted completion: empty choices")}
			return
		}

		content, _ := truncateAtStop(resp.Choices[0].Message.Content, opts.Stop)
		out <- stream.Chunk{
			Text:  content,
			Final: true,
			Usage: &stream.Usage{
				Prompt:     int(resp.Usage.PromptTokens),
				Completion: int(resp.Usage.CompletionTokens),
				Total:      int(resp.Usage.TotalTokens),
			},
		}
	}()
	return out, nil
}
