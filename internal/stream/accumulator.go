// Package stream assembles incremental model output into a final result.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Usage is the token accounting reported by an engine
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Chunk is one partial result delivered by an engine
type Chunk struct {
	Text  string
	Final bool
	Err   error
	Usage *Usage
}

// Result is the outcome of a finished generation
type Result struct {
	Text    string        `json:"text"`
	Elapsed time.Duration `json:"elapsed"`
	Stopped bool          `json:"stopped"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// Accumulator concatenates partial text and resolves exactly once.
//
// Stop sets the cancellation flag: the next delivered chunk is treated as
// final whatever it reports, and its text is discarded.
type Accumulator struct {
	mu       sync.Mutex
	buf      strings.Builder
	start    time.Time
	stopping bool
	usage    *Usage
	onText   func(string)

	once   sync.Once
	done   chan struct{}
	stopCh chan struct{}
	result Result
	err    error
}

// Option configures an Accumulator
type Option func(*Accumulator)

// WithOnText registers a function called with every accepted partial text
func WithOnText(fn func(string)) Option {
	return func(a *Accumulator) { a.onText = fn }
}

// WithStart overrides the start time used for Elapsed
func WithStart(t time.Time) Option {
	return func(a *Accumulator) { a.start = t }
}

// NewAccumulator creates an accumulator whose clock starts now
func NewAccumulator(opts ...Option) *Accumulator {
	a := &Accumulator{
		start:  time.Now(),
		done:   make(chan struct{}),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Feed is the callback form. It returns false once the accumulator has
// finished and no further chunks should be delivered.
func (a *Accumulator) Feed(partial string, final bool) bool {
	a.mu.Lock()
	if a.finished() {
		a.mu.Unlock()
		return false
	}
	stopped := a.stopping
	if !stopped {
		a.buf.WriteString(partial)
	}
	onText := a.onText
	a.mu.Unlock()

	if !stopped && onText != nil && partial != "" {
		onText(partial)
	}
	if final || stopped {
		a.finish(nil)
		return false
	}
	return true
}

// SetUsage records token usage reported by the engine
func (a *Accumulator) SetUsage(u *Usage) {
	if u == nil {
		return
	}
	a.mu.Lock()
	a.usage = u
	a.mu.Unlock()
}

// Fail resolves the accumulator with an error
func (a *Accumulator) Fail(err error) {
	if err == nil {
		err = errors.New("generation failed")
	}
	a.finish(err)
}

// Stop requests cancellation. It is safe to call more than once and after
// the accumulator has finished.
func (a *Accumulator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopping {
		return
	}
	a.stopping = true
	close(a.stopCh)
}

// Stopping reports whether Stop has been called
func (a *Accumulator) Stopping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopping
}

// Done is closed when the accumulator resolves
func (a *Accumulator) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the accumulator resolves or ctx ends
func (a *Accumulator) Wait(ctx context.Context) (Result, error) {
	select {
	case <-a.done:
		return a.result, a.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Consume drains chunks until a final chunk, an error, Stop or ctx
// cancellation. Stop resolves immediately with the text accepted so far.
func (a *Accumulator) Consume(ctx context.Context, chunks <-chan Chunk) (Result, error) {
	for {
		select {
		case <-a.done:
			return a.Wait(ctx)
		case <-a.stopCh:
			a.finish(nil)
			return a.Wait(ctx)
		case <-ctx.Done():
			a.Fail(ctx.Err())
			return a.Wait(context.Background())
		case c, ok := <-chunks:
			if !ok {
				a.finish(nil)
				return a.Wait(ctx)
			}
			if c.Err != nil {
				a.Fail(c.Err)
				return a.Wait(ctx)
			}
			a.SetUsage(c.Usage)
			a.Feed(c.Text, c.Final)
		}
	}
}

// finished must be called with mu held
func (a *Accumulator) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *Accumulator) finish(err error) {
	a.once.Do(func() {
		a.mu.Lock()
		a.result = Result{
			Text:    a.buf.String(),
			Elapsed: time.Since(a.start),
			Stopped: a.stopping,
			Usage:   a.usage,
		}
		a.err = err
		a.mu.Unlock()
		close(a.done)
	})
}
