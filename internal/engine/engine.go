// Package engine adapts inference backends to a common streaming interface.
package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/stream"
)

// Default sampling for in-process generation
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.5
	DefaultTopK        = 40
)

// ErrNotReady is returned when a backend cannot serve the configured model
var ErrNotReady = errors.New("engine not ready")

// Options are per-call sampling settings. Backends ignore the fields they
// do not support.
type Options struct {
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature"`
	TopK          int      `json:"top_k"`
	TopP          float64  `json:"top_p"`
	RepeatPenalty float64  `json:"repeat_penalty"`
	Stop          []string `json:"stop"`
}

// DefaultOptions returns the in-process defaults
func DefaultOptions() Options {
	return Options{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopK:        DefaultTopK,
		Stop:        prompt.StopSequences,
	}
}

// Engine streams a completion for a raw prompt. The returned channel is
// closed after a chunk with Final or Err set.
type Engine interface {
	Name() string
	Delegate() probe.Delegate
	Generate(ctx context.Context, prompt string, opts Options) (<-chan stream.Chunk, error)
}

// TokenCounter is implemented by engines that can size a prompt exactly
type TokenCounter interface {
	CountTokens(ctx context.Context, prompt string) (int, error)
}

// Closer is implemented by engines holding resources
type Closer interface {
	Close() error
}

// Readier is implemented by engines that can verify their backend
type Readier interface {
	Ready(ctx context.Context) error
}

// Check reports whether e can serve requests. Engines without a backend to
// verify are always ready.
func Check(ctx context.Context, e Engine) error {
	if e == nil {
		return ErrNotReady
	}
	if r, ok := e.(Readier); ok {
		return r.Ready(ctx)
	}
	return nil
}

// Label describes an engine for status output, e.g. "local (GPU)"
func Label(e Engine) string {
	return e.Name() + " (" + string(e.Delegate()) + ")"
}

// truncateAtStop cuts text at the earliest stop sequence
func truncateAtStop(text string, stops []string) (string, bool) {
	cut := -1
	for _, s := range stops {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut < 0 {
		return text, false
	}
	return text[:cut], true
}

// send delivers a chunk unless ctx is done
func send(ctx context.Context, ch chan<- stream.Chunk, c stream.Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
