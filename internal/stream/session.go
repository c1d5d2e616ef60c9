package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInFlight is returned by Gate.Begin when a generation is running. The
// running generation has been asked to stop.
var ErrInFlight = errors.New("a generation is already in flight")

// Session is the state of one generation request
type Session struct {
	ID        string
	StartedAt time.Time
	Acc       *Accumulator

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates a session with its own cancellable context
func NewSession(parent context.Context, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(parent)
	start := time.Now()
	opts = append([]Option{WithStart(start)}, opts...)
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: start,
		Acc:       NewAccumulator(opts...),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context is cancelled when the session closes
func (s *Session) Context() context.Context {
	return s.ctx
}

// Stop asks the generation to finish with what it has
func (s *Session) Stop() {
	s.Acc.Stop()
}

// Close releases the session's context
func (s *Session) Close() {
	s.cancel()
}

// Consume drains chunks into the session's accumulator
func (s *Session) Consume(chunks <-chan Chunk) (Result, error) {
	return s.Acc.Consume(s.ctx, chunks)
}

// Gate allows one generation in flight. A second Begin while one is
// running stops the running one instead of starting another.
type Gate struct {
	mu      sync.Mutex
	current *Session
}

// Begin starts a new session, or stops the running one and returns ErrInFlight
func (g *Gate) Begin(ctx context.Context, opts ...Option) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil {
		g.current.Stop()
		return nil, ErrInFlight
	}
	s := NewSession(ctx, opts...)
	g.current = s
	return s, nil
}

// End releases the gate held by s and closes it
func (g *Gate) End(s *Session) {
	if s == nil {
		return
	}
	g.mu.Lock()
	if g.current == s {
		g.current = nil
	}
	g.mu.Unlock()
	s.Close()
}

// Stop stops the running session, reporting whether there was one
func (g *Gate) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return false
	}
	g.current.Stop()
	return true
}

// InFlight reports whether a session is running
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}
