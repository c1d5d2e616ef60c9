package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/assistant"
	"github.com/pep299/edgewriter/internal/chat"
	"github.com/pep299/edgewriter/internal/engine"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/quality"
	"github.com/pep299/edgewriter/internal/stream"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsRequest is a client frame: {"type":"generate", task, tone, ...},
// {"type":"chat", conversation_id, text}, {"type":"clear", conversation_id}
// or {"type":"stop"}
type wsRequest struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	prompt.Request
}

// wsMessage is a server frame of type token, done, cleared or error
type wsMessage struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Text           string           `json:"text,omitempty"`
	HTML           string           `json:"html,omitempty"`
	Metrics        *quality.Metrics `json:"metrics,omitempty"`
	Latency        float64          `json:"latency,omitempty"`
	Energy         string           `json:"energy,omitempty"`
	Engine         string           `json:"engine,omitempty"`
	Stopped        bool             `json:"stopped,omitempty"`
	Cached         bool             `json:"cached,omitempty"`
	Error          string           `json:"error,omitempty"`
	Kind           string           `json:"kind,omitempty"`
}

// wsConn serializes writes to a websocket connection
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

// wsGenerateHandler streams editing and chat results over a websocket.
// Each connection is one editing session: a generate or chat frame sent
// while a generation runs stops it, as does a stop frame. Conversations
// outlive the connection and are resumed by ID.
func (s *Server) wsGenerateHandler(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, engine.ErrNotReady.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	a := assistant.New(s.engine,
		assistant.WithCache(s.cacheManager),
		assistant.WithMetrics(s.metrics),
		assistant.WithLogger(s.logger),
	)
	ws := &wsConn{conn: conn}

	var wg sync.WaitGroup
	defer func() {
		a.Stop()
		cancel()
		wg.Wait()
	}()

	for {
		var msg wsRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "stop":
			a.Stop()
		case "generate":
			if a.InFlight() {
				a.Stop()
				continue
			}
			task, err := prompt.ParseTask(string(msg.Task))
			if err != nil {
				ws.send(wsMessage{Type: "error", Error: err.Error(), Kind: string(assistant.KindValidation)})
				continue
			}
			req := msg.Request
			req.Task = task
			req.Tone = prompt.ParseTone(string(req.Tone))

			wg.Add(1)
			go func() {
				defer wg.Done()
				s.wsRun(ctx, a, ws, req)
			}()
		case "chat":
			if a.InFlight() {
				a.Stop()
				continue
			}
			conv := s.conversations.GetOrCreate(msg.ConversationID)
			text := msg.Text

			wg.Add(1)
			go func() {
				defer wg.Done()
				s.wsChat(ctx, a, ws, conv, text)
			}()
		case "clear":
			if conv, ok := s.conversations.Get(msg.ConversationID); ok {
				conv.Clear()
			}
			ws.send(wsMessage{Type: "cleared", ConversationID: msg.ConversationID})
		default:
			ws.send(wsMessage{Type: "error", Error: "unknown message type: " + msg.Type})
		}
	}
}

func (s *Server) wsRun(ctx context.Context, a *assistant.Assistant, ws *wsConn, req prompt.Request) {
	out, err := a.Edit(ctx, req, func(text string) {
		ws.send(wsMessage{Type: "token", Text: text})
	})
	if errors.Is(err, stream.ErrInFlight) {
		return
	}
	if err != nil {
		ws.send(wsMessage{Type: "error", Error: err.Error(), Kind: string(assistant.KindOf(err))})
		return
	}

	metrics := out.Metrics
	ws.send(wsMessage{
		Type:    "done",
		Text:    out.Text,
		Metrics: &metrics,
		Latency: roundLatency(out.Latency),
		Energy:  out.Energy.String(),
		Engine:  out.Engine,
		Stopped: out.Stopped,
		Cached:  out.Cached,
	})
}

func (s *Server) wsChat(ctx context.Context, a *assistant.Assistant, ws *wsConn, conv *chat.Conversation, text string) {
	out, err := a.Chat(ctx, conv, text, func(partial string) {
		ws.send(wsMessage{Type: "token", ConversationID: conv.ID, Text: partial})
	})
	if errors.Is(err, stream.ErrInFlight) {
		return
	}
	if err != nil {
		ws.send(wsMessage{Type: "error", ConversationID: conv.ID, Error: err.Error(), Kind: string(assistant.KindOf(err))})
		return
	}
	ws.send(wsMessage{
		Type:           "done",
		ConversationID: conv.ID,
		Text:           out.Text,
		HTML:           out.HTML,
		Latency:        roundLatency(out.Result.Elapsed),
		Engine:         a.EngineLabel(),
		Stopped:        out.Stopped,
	})
}
