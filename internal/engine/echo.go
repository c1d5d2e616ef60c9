package engine

import (
	"context"
	"strings"
	"time"

	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/stream"
)

// Echo is an offline engine that streams back the text under edit, one
// word per chunk
type Echo struct {
	delegate probe.Delegate
	delay    time.Duration
}

// NewEcho creates an echo engine. delay is the pause between words.
func NewEcho(delegate probe.Delegate, delay time.Duration) *Echo {
	if delegate == "" {
		delegate = probe.CPU
	}
	return &Echo{delegate: delegate, delay: delay}
}

func (e *Echo) Name() string { return "echo" }

func (e *Echo) Delegate() probe.Delegate { return e.delegate }

// CountTokens uses the word estimate
func (e *Echo) CountTokens(_ context.Context, text string) (int, error) {
	return prompt.EstimateTokens(text), nil
}

func (e *Echo) Generate(ctx context.Context, text string, opts Options) (<-chan stream.Chunk, error) {
	words := prompt.Words(EchoSubject(text))
	if opts.MaxTokens > 0 && len(words) > opts.MaxTokens {
		words = words[:opts.MaxTokens]
	}

	out := make(chan stream.Chunk)
	go func() {
		defer close(out)
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			if e.delay > 0 {
				select {
				case <-time.After(e.delay):
				case <-ctx.Done():
					return
				}
			}
			if !send(ctx, out, stream.Chunk{Text: w}) {
				return
			}
		}
		promptTokens := prompt.EstimateTokens(text)
		send(ctx, out, stream.Chunk{Final: true, Usage: &stream.Usage{
			Prompt:     promptTokens,
			Completion: len(words),
			Total:      promptTokens + len(words),
		}})
	}()
	return out, nil
}

// EchoSubject extracts the user text from a built prompt: the last INPUT
// block or triple-quoted block, whichever comes later, else the last user
// line.
func EchoSubject(p string) string {
	input, inputEnd := strings.LastIndex(p, "INPUT: "), -1
	if input >= 0 {
		inputEnd = len(p)
		if j := strings.Index(p[input:], "\nOUTPUT:"); j >= 0 {
			inputEnd = input + j
		}
	}
	if j := strings.LastIndex(p, `"""`); j >= 0 {
		if i := strings.LastIndex(p[:j], `"""`); i >= 0 && i > inputEnd {
			return strings.TrimSpace(p[i+3 : j])
		}
	}
	if input >= 0 {
		return strings.TrimSpace(p[input+len("INPUT: ") : inputEnd])
	}
	if i := strings.LastIndex(p, "<|user|>\n"); i >= 0 {
		rest := p[i+len("<|user|>\n"):]
		if j := strings.Index(rest, "<|end|>"); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest)
	}
	if i := strings.LastIndex(p, "User: "); i >= 0 {
		rest := p[i+len("User: "):]
		if j := strings.Index(rest, "\nModel:"); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(p)
}
