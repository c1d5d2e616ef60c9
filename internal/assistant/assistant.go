// Package assistant runs editing and chat requests end to end: prompt
// construction, budget checks, streaming, scoring and energy estimates.
package assistant

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/cache"
	"github.com/pep299/edgewriter/internal/chat"
	"github.com/pep299/edgewriter/internal/engine"
	"github.com/pep299/edgewriter/internal/metrics"
	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/quality"
	"github.com/pep299/edgewriter/internal/remote"
	"github.com/pep299/edgewriter/internal/stream"
	"github.com/pep299/edgewriter/internal/tracing"
)

// Outcome is the result of one editing request
type Outcome struct {
	Text    string          `json:"text"`
	Result  stream.Result   `json:"result"`
	Metrics quality.Metrics `json:"metrics"`
	Latency time.Duration   `json:"latency"`
	Energy  quality.Energy  `json:"energy_mwh"`
	Engine  string          `json:"engine"`
	Stopped bool            `json:"stopped"`
	Cached  bool            `json:"cached"`
}

// ChatOutcome is the result of one chat turn
type ChatOutcome struct {
	Text    string        `json:"text"`
	HTML    string        `json:"html"`
	Result  stream.Result `json:"result"`
	Stopped bool          `json:"stopped"`
}

// Assistant owns the state of one editing session
type Assistant struct {
	engine  engine.Engine
	remote  *remote.Client
	cache   *cache.Manager
	metrics *metrics.Metrics
	logger  *zap.Logger
	gate    stream.Gate
}

// Option configures an Assistant
type Option func(*Assistant)

// WithRemote sets the inference server used by EditRemote
func WithRemote(c *remote.Client) Option {
	return func(a *Assistant) { a.remote = c }
}

// WithCache enables result caching for Edit
func WithCache(m *cache.Manager) Option {
	return func(a *Assistant) { a.cache = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// New creates an assistant. e may be nil for remote-only use.
func New(e engine.Engine, opts ...Option) *Assistant {
	a := &Assistant{engine: e, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Engine returns the in-process engine, nil when there is none
func (a *Assistant) Engine() engine.Engine {
	return a.engine
}

// EngineLabel describes where generations run
func (a *Assistant) EngineLabel() string {
	if a.engine == nil {
		if a.remote != nil {
			return "remote (" + a.remote.BaseURL() + ")"
		}
		return "none"
	}
	return engine.Label(a.engine)
}

// Stop cancels the generation in flight, reporting whether there was one
func (a *Assistant) Stop() bool {
	return a.gate.Stop()
}

// InFlight reports whether a generation is running
func (a *Assistant) InFlight() bool {
	return a.gate.InFlight()
}

// Edit runs one editing request on the in-process engine. onText receives
// each accepted partial. A call made while another is in flight stops the
// running one and returns stream.ErrInFlight.
func (a *Assistant) Edit(ctx context.Context, req prompt.Request, onText func(string)) (*Outcome, error) {
	const op = "edit"
	if a.engine == nil {
		return nil, newError(KindInit, op, ErrNotInitialized)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, newError(KindValidation, op, ErrEmptyText)
	}

	// a cache hit is still a submission
	if a.gate.InFlight() {
		a.gate.Stop()
		return nil, stream.ErrInFlight
	}

	if a.cache != nil {
		if resp, err := a.cache.GetResult(ctx, cache.FewShot, req); err == nil {
			a.metrics.ObserveCache(true)
			if onText != nil {
				onText(resp.Text)
			}
			return &Outcome{
				Text:    resp.Text,
				Metrics: quality.Score(req.Text, resp.Text),
				Engine:  a.EngineLabel(),
				Cached:  true,
			}, nil
		}
		a.metrics.ObserveCache(false)
	}

	p := prompt.BuildRequest(req)
	if err := a.checkBudget(ctx, p, prompt.DefaultBudget); err != nil {
		var budget *prompt.BudgetError
		if errors.As(err, &budget) {
			return nil, newError(KindValidation, op, err)
		}
		return nil, newError(KindGeneration, op, err)
	}

	params := prompt.ParamsFor(req.Task)
	opts := engine.DefaultOptions()
	opts.Temperature = params.Temperature
	opts.TopK = params.TopK
	opts.MaxTokens = params.MaxTokens

	res, err := a.run(ctx, op, string(req.Task), p, opts, onText)
	if err != nil {
		return nil, err
	}

	text := prompt.CleanOutput(res.Text)
	out := &Outcome{
		Text:    text,
		Result:  res,
		Metrics: quality.Score(req.Text, text),
		Latency: res.Elapsed,
		Energy:  quality.EstimateEnergy(res.Elapsed, a.engine.Delegate() == probe.GPU),
		Engine:  a.EngineLabel(),
		Stopped: res.Stopped,
	}

	if a.cache != nil && !res.Stopped && text != "" {
		resp := remote.GenerateResponse{Text: text, Latency: roundSeconds(res.Elapsed), RawOutput: res.Text}
		if res.Usage != nil {
			resp.Tokens = *res.Usage
		}
		if err := a.cache.SetResult(ctx, cache.FewShot, req, resp); err != nil {
			a.logger.Warn("caching result failed", zap.Error(err))
		}
	}
	return out, nil
}

// EditRemote runs one editing request on the inference server
func (a *Assistant) EditRemote(ctx context.Context, req prompt.Request) (*Outcome, error) {
	const op = "edit remote"
	if a.remote == nil {
		return nil, newError(KindInit, op, ErrNoRemote)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, newError(KindValidation, op, ErrEmptyText)
	}

	session, err := a.gate.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer a.gate.End(session)

	chunks := make(chan stream.Chunk, 1)
	responses := make(chan *remote.GenerateResponse, 1)
	go func() {
		r, err := a.remote.Generate(session.Context(), req)
		if err != nil {
			chunks <- stream.Chunk{Err: err}
			return
		}
		responses <- r
		chunks <- stream.Chunk{Text: r.Text, Final: true, Usage: &r.Tokens}
	}()

	res, err := session.Consume(chunks)
	if err != nil {
		a.metrics.ObserveGeneration(string(req.Task), "remote", "error", res.Elapsed, nil)
		return nil, newError(KindGeneration, op, err)
	}
	a.metrics.ObserveGeneration(string(req.Task), "remote", status(res), res.Elapsed, res.Usage)

	latency := res.Elapsed
	if !res.Stopped {
		select {
		case r := <-responses:
			latency = time.Duration(math.Round(r.Latency*1000)) * time.Millisecond
		default:
		}
	}
	text := strings.TrimSpace(res.Text)
	return &Outcome{
		Text:    text,
		Result:  res,
		Metrics: quality.Score(req.Text, text),
		Latency: latency,
		Engine:  a.EngineLabel(),
		Stopped: res.Stopped,
	}, nil
}

// Chat sends one user message in conv and appends the exchange to its
// history
func (a *Assistant) Chat(ctx context.Context, conv *chat.Conversation, message string, onText func(string)) (*ChatOutcome, error) {
	const op = "chat"
	if a.engine == nil {
		return nil, newError(KindInit, op, ErrNotInitialized)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, newError(KindValidation, op, ErrEmptyText)
	}

	p := prompt.ChatPrompt(conv.Messages(), message)
	if err := a.checkBudget(ctx, p, prompt.ChatBudget); err != nil {
		var budget *prompt.BudgetError
		if errors.As(err, &budget) {
			return nil, newError(KindValidation, op, ErrHistoryTooLong)
		}
		return nil, newError(KindGeneration, op, err)
	}

	opts := engine.DefaultOptions()
	res, err := a.run(ctx, op, "Chat", p, opts, onText)
	if err != nil {
		return nil, err
	}

	text := prompt.CleanOutput(res.Text)
	conv.Append(chat.RoleUser, message)
	if text != "" {
		conv.Append(chat.RoleAssistant, text)
	}

	html, err := chat.RenderMarkdown(text)
	if err != nil {
		a.logger.Warn("rendering chat reply failed", zap.Error(err))
	}
	return &ChatOutcome{Text: text, HTML: html, Result: res, Stopped: res.Stopped}, nil
}

// run streams one generation through the gate
func (a *Assistant) run(ctx context.Context, op, task, p string, opts engine.Options, onText func(string)) (stream.Result, error) {
	ctx, span := tracing.Start(ctx, "assistant."+strings.ReplaceAll(op, " ", "_"))
	defer span.End()
	span.SetAttributes(
		attribute.String("task", task),
		attribute.String("engine", a.EngineLabel()),
	)

	var sessionOpts []stream.Option
	if onText != nil {
		sessionOpts = append(sessionOpts, stream.WithOnText(onText))
	}
	session, err := a.gate.Begin(ctx, sessionOpts...)
	if err != nil {
		return stream.Result{}, err
	}
	defer a.gate.End(session)

	delegate := string(a.engine.Delegate())
	chunks, err := a.engine.Generate(session.Context(), p, opts)
	if err != nil {
		session.Acc.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.ObserveGeneration(task, delegate, "error", 0, nil)
		a.logger.Error("generation failed to start", zap.String("op", op), zap.Error(err))
		return stream.Result{}, newError(KindGeneration, op, err)
	}

	res, err := session.Consume(chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.ObserveGeneration(task, delegate, "error", res.Elapsed, nil)
		a.logger.Error("generation failed", zap.String("op", op), zap.Error(err))
		return stream.Result{}, newError(KindGeneration, op, err)
	}

	a.metrics.ObserveGeneration(task, delegate, status(res), res.Elapsed, res.Usage)
	a.logger.Debug("generation finished",
		zap.String("op", op),
		zap.String("session", session.ID),
		zap.Duration("elapsed", res.Elapsed),
		zap.Bool("stopped", res.Stopped),
	)
	return res, nil
}

func (a *Assistant) checkBudget(ctx context.Context, p string, limit int) error {
	count := prompt.EstimateTokens(p)
	if counter, ok := a.engine.(engine.TokenCounter); ok {
		n, err := counter.CountTokens(ctx, p)
		if err != nil {
			return err
		}
		count = n
	}
	return prompt.CheckBudget(count, limit)
}

func status(res stream.Result) string {
	if res.Stopped {
		return "stopped"
	}
	return "ok"
}

// roundSeconds converts d to seconds rounded to 2 decimals
func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}
