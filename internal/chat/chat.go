// Package chat keeps conversation history for the assistant and the HTTP
// chat endpoints.
package chat

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/pep299/edgewriter/internal/prompt"
)

// Roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a mutex-guarded message history
type Conversation struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	messages []prompt.Message
	touched  time.Time
}

// NewConversation starts an empty conversation
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{ID: uuid.NewString(), CreatedAt: now, touched: now}
}

// Append adds a message. The role is normalized to user or assistant.
func (c *Conversation) Append(role, content string) {
	if role != RoleAssistant {
		role = RoleUser
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, prompt.Message{Role: role, Content: content})
	c.touched = time.Now()
}

// Messages returns a copy of the history
func (c *Conversation) Messages() []prompt.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]prompt.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns a copy of the last n messages
func (c *Conversation) Last(n int) []prompt.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 {
		return []prompt.Message{}
	}
	start := len(c.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]prompt.Message, len(c.messages)-start)
	copy(out, c.messages[start:])
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Clear drops the whole history
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.touched = time.Now()
}

func (c *Conversation) lastTouched() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.touched
}

// Store holds conversations by ID
type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	idle          time.Duration
}

// NewStore creates a store. Conversations idle for longer than idle are
// dropped by Prune; zero keeps them forever.
func NewStore(idle time.Duration) *Store {
	return &Store{conversations: make(map[string]*Conversation), idle: idle}
}

// Create starts and registers a conversation
func (s *Store) Create() *Conversation {
	c := NewConversation()
	s.mu.Lock()
	s.conversations[c.ID] = c
	s.mu.Unlock()
	return c
}

// Get looks up a conversation
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	return c, ok
}

// GetOrCreate returns the conversation for id, creating a new one when id
// is empty or unknown
func (s *Store) GetOrCreate(id string) *Conversation {
	if id != "" {
		if c, ok := s.Get(id); ok {
			return c
		}
	}
	return s.Create()
}

// Delete removes a conversation
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
}

// Len returns the number of stored conversations
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Prune drops idle conversations and returns how many were removed
func (s *Store) Prune(now time.Time) int {
	if s.idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.conversations {
		if now.Sub(c.lastTouched()) > s.idle {
			delete(s.conversations, id)
			removed++
		}
	}
	return removed
}

// RenderMarkdown converts model output to HTML. Raw HTML in the input is
// not passed through.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(strings.TrimSpace(text)), &buf); err != nil {
		return "", fmt.Errorf("markdown to html: %w", err)
	}
	return buf.String(), nil
}
