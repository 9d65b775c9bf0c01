// Package transport implements the push channel: a WebSocket client that
// delivers server events to the reconciler and carries viewer emissions
// back. Reconnection is bounded; when the channel is down, polling keeps
// session state eventually consistent.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	writeWait = 10 * time.Second
	sendBuf   = 64
)

// Options configure the socket.
type Options struct {
	URL               string // ws:// or wss:// endpoint
	Token             string // opaque auth token, passed on the query string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// Socket is the viewer's push-channel connection. Incoming messages are
// delivered on Events() in the order the transport received them;
// synthetic connect/disconnect messages are interleaved so the consumer
// can re-check authoritative state after every (re)connect.
type Socket struct {
	opts     Options
	clientID string
	logger   *zap.Logger
	dialer   *websocket.Dialer

	events chan Message
	send   chan Message

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSocket creates a push-channel client.
func NewSocket(opts Options, logger *zap.Logger) *Socket {
	if opts.ReconnectAttempts < 1 {
		opts.ReconnectAttempts = 10
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	return &Socket{
		opts:     opts,
		clientID: uuid.New().String(),
		logger:   logger,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events:   make(chan Message, sendBuf),
		send:     make(chan Message, sendBuf),
	}
}

// Events returns the incoming message stream.
func (s *Socket) Events() <-chan Message {
	return s.events
}

// Run connects and pumps messages until ctx is cancelled. Each dropped
// connection gets a fresh budget of bounded reconnect attempts with fixed
// backoff; once exhausted, Run returns and polling remains the backstop.
func (s *Socket) Run(ctx context.Context) error {
	for {
		conn, err := s.connect(ctx)
		if err != nil {
			return err
		}

		s.deliver(Message{Event: EventConnect})

		done := make(chan struct{})
		go s.writePump(conn, done)
		go func() {
			// The dialer does not tie the live connection to ctx; close it
			// ourselves so readLoop unblocks on shutdown.
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-done:
			}
		}()
		s.readLoop(conn)
		close(done)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()

		s.deliver(Message{Event: EventDisconnect})

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("push channel dropped, reconnecting")
	}
}

func (s *Socket) connect(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := s.endpoint()
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.opts.ReconnectAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			s.mu.Lock()
			s.conn = conn
			s.mu.Unlock()
			s.logger.Info("push channel connected", zap.String("url", s.opts.URL))
			return conn, nil
		}
		s.logger.Warn("push channel dial failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.opts.ReconnectAttempts),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
	return nil, fmt.Errorf("push channel unavailable after %d attempts", s.opts.ReconnectAttempts)
}

func (s *Socket) endpoint() (string, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return "", fmt.Errorf("transport url: %w", err)
	}
	q := u.Query()
	q.Set("client_id", s.clientID)
	if s.opts.Token != "" {
		q.Set("token", s.opts.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(65536)
	_ = conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		s.deliver(msg)
	}
}

func (s *Socket) writePump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver hands a message to the consumer, dropping it if the consumer has
// fallen hopelessly behind. Polling recovers anything session-critical.
func (s *Socket) deliver(msg Message) {
	select {
	case s.events <- msg:
	default:
		s.logger.Warn("event buffer full, dropping", zap.String("event", msg.Event))
	}
}

func (s *Socket) emit(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("emit marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case s.send <- Message{Event: event, Data: data}:
	default:
		// buffer full, skip
		s.logger.Warn("send buffer full, dropping", zap.String("event", event))
	}
}

// EmitJoinSession joins the viewer to a session's event room.
func (s *Socket) EmitJoinSession(sessionID string) {
	s.emit(EventJoinSession, JoinSessionPayload{SessionID: sessionID})
}

// EmitQuestion submits an audience question.
func (s *Socket) EmitQuestion(sessionID, text string) {
	s.emit(EventQuestion, QuestionPayload{SessionID: sessionID, QuestionText: text})
}

// EmitQuizResponse submits the viewer's answer to a quiz.
func (s *Socket) EmitQuizResponse(sessionID, quizID string, selectedOption int) {
	s.emit(EventQuizResponse, QuizResponsePayload{
		SessionID:      sessionID,
		QuizID:         quizID,
		SelectedOption: selectedOption,
	})
}

// EmitRequestQuizResult asks the server for a quiz result.
func (s *Socket) EmitRequestQuizResult(quizID string) {
	s.emit(EventRequestQuizResult, RequestQuizResultPayload{QuizID: quizID})
}
