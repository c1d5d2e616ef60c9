package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/config"
	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/stream"
)

func collect(t *testing.T, ch <-chan stream.Chunk) (string, *stream.Usage, error) {
	t.Helper()
	var b strings.Builder
	for c := range ch {
		if c.Err != nil {
			return b.String(), nil, c.Err
		}
		b.WriteString(c.Text)
		if c.Final {
			return b.String(), c.Usage, nil
		}
	}
	return b.String(), nil, errors.New("channel closed without final chunk")
}

func TestEchoSubject(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"few-shot", prompt.Build(prompt.Summarize, prompt.Neutral, "", "The quick brown fox."), "The quick brown fox."},
		{"server", prompt.ServerPrompt(prompt.Request{Task: prompt.Proofread, Text: "teh cat"}), "teh cat"},
		{"chat", prompt.ChatPrompt(nil, "hello there"), "hello there"},
		{"server chat", prompt.ServerChatPrompt([]prompt.Message{{Role: "user", Content: "line one\nline two"}}), "line one\nline two"},
		{"raw", "  plain  ", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EchoSubject(tt.prompt))
		})
	}
}

func TestEchoGenerate(t *testing.T) {
	e := NewEcho("", 0)
	assert.Equal(t, probe.CPU, e.Delegate())

	ch, err := e.Generate(context.Background(), prompt.Build(prompt.Rewrite, prompt.Friendly, "", "one two three"), Options{})
	require.NoError(t, err)

	text, usage, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "one two three", text)
	require.NotNil(t, usage)
	assert.Equal(t, 3, usage.Completion)
	assert.Equal(t, usage.Prompt+3, usage.Total)
}

func TestEchoMaxTokens(t *testing.T) {
	ch, err := NewEcho(probe.GPU, 0).Generate(context.Background(), "a b c d", Options{MaxTokens: 2})
	require.NoError(t, err)
	text, _, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "a b", text)
}

func TestEchoCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewEcho(probe.CPU, time.Hour).Generate(ctx, "a b c", Options{})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("echo did not stop after cancel")
	}
}

func TestEchoCountTokens(t *testing.T) {
	n, err := NewEcho(probe.CPU, 0).CountTokens(context.Background(), "one two three four")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestTruncateAtStop(t *testing.T) {
	text, cut := truncateAtStop("answer<|end|>junk<|user|>", prompt.StopSequences)
	assert.True(t, cut)
	assert.Equal(t, "answer", text)

	text, cut = truncateAtStop("answer", []string{""})
	assert.False(t, cut)
	assert.Equal(t, "answer", text)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "echo (GPU)", Label(NewEcho(probe.GPU, 0)))
}

func localServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"object":"list","data":[{"id":"phi-3","object":"model"}]}`)
		case "/completions":
			w.Header().Set("Content-Type", "text/event-stream")
			for _, c := range chunks {
				fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"text_completion\",\"choices\":[{\"text\":%q,\"index\":0}]}\n\n", c)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLocalGenerate(t *testing.T) {
	srv := localServer(t, []string{"Hello", ", ", "world"})
	l := NewLocal(LocalConfig{BaseURL: srv.URL, Model: "phi-3"}, probe.GPU, nil)

	require.NoError(t, l.Ready(context.Background()))

	ch, err := l.Generate(context.Background(), "say hi", DefaultOptions())
	require.NoError(t, err)
	text, usage, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)
	require.NotNil(t, usage)
	assert.Equal(t, 3, usage.Completion)
}

func TestLocalReadyUnknownModel(t *testing.T) {
	srv := localServer(t, nil)
	l := NewLocal(LocalConfig{BaseURL: srv.URL, Model: "llama"}, probe.CPU, nil)
	assert.ErrorIs(t, l.Ready(context.Background()), ErrNotReady)
}

func TestHostedGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Polished text.<|end|>tail"}}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
	}))
	defer srv.Close()

	h, err := NewHosted(HostedConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	ch, err := h.Generate(context.Background(), "fix this", DefaultOptions())
	require.NoError(t, err)
	text, usage, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Polished text.", text)
	assert.Equal(t, &stream.Usage{Prompt: 12, Completion: 3, Total: 15}, usage)
}

func TestHostedGenerateCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	h, err := NewHosted(HostedConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	acc := stream.NewAccumulator()
	ch, err := h.Generate(ctx, "fix this", DefaultOptions())
	require.NoError(t, err, "Generate returns before the completion does")

	go func() {
		time.Sleep(20 * time.Millisecond)
		acc.Stop()
	}()
	done := make(chan stream.Result, 1)
	go func() {
		res, _ := acc.Consume(ctx, ch)
		done <- res
	}()

	select {
	case res := <-done:
		assert.True(t, res.Stopped)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not interrupt the hosted completion")
	}

	cancel()
	select {
	case c, ok := <-ch:
		if ok {
			assert.Error(t, c.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not abort the hosted request")
	}
}

func TestNewHostedValidation(t *testing.T) {
	_, err := NewHosted(HostedConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewHosted(HostedConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestOpenWithFallback(t *testing.T) {
	var tried []probe.Delegate
	factory := func(_ context.Context, d probe.Delegate) (Engine, error) {
		tried = append(tried, d)
		if d == probe.GPU {
			return nil, errors.New("device lost")
		}
		return NewEcho(d, 0), nil
	}

	e, err := OpenWithFallback(context.Background(), probe.Decision{Delegate: probe.GPU}, factory, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, probe.CPU, e.Delegate())
	assert.Equal(t, []probe.Delegate{probe.GPU, probe.CPU}, tried)
}

func TestOpenWithFallbackCPUDecision(t *testing.T) {
	calls := 0
	factory := func(_ context.Context, d probe.Delegate) (Engine, error) {
		calls++
		assert.Equal(t, probe.CPU, d)
		return nil, errors.New("no backend")
	}
	_, err := OpenWithFallback(context.Background(), probe.Decision{Delegate: probe.CPU, Reason: "Model too large for GPU buffer"}, factory, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOpenEcho(t *testing.T) {
	e, err := Open(context.Background(), &config.Config{EngineKind: config.EngineEcho}, probe.Decision{Delegate: probe.GPU}, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo (GPU)", Label(e))
}

func TestCheck(t *testing.T) {
	assert.ErrorIs(t, Check(context.Background(), nil), ErrNotReady)
	assert.NoError(t, Check(context.Background(), NewEcho(probe.CPU, 0)))

	srv := localServer(t, nil)
	l := NewLocal(LocalConfig{BaseURL: srv.URL, Model: "llama"}, probe.CPU, nil)
	assert.ErrorIs(t, Check(context.Background(), l), ErrNotReady)
}
