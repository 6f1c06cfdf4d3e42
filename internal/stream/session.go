// Package stream moves bus messages into live websocket sessions: the
// Manager owns the session set and the broadcast primitive, the Bridge
// pumps bus channels into it.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// sendBuffer bounds how far a slow consumer may lag before it is
	// treated as dead and evicted.
	sendBuffer = 256
)

// Envelope is the unit delivered to clients: the originating channel,
// the decoded payload and its timestamp.
type Envelope struct {
	Channel   string                 `json:"channel"`
	Data      map[string]interface{} `json:"data"`
	Timestamp string                 `json:"timestamp"`
}

// Session is one live client connection. The Manager owns its
// lifecycle; the Bridge only ever delivers into it.
type Session struct {
	ID      uuid.UUID
	Channel string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session subscribed to one bus channel pattern.
func NewSession(channel string) *Session {
	return &Session{
		ID:      uuid.New(),
		Channel: channel,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

// Outbox exposes the ordered outbound queue. The write pump (or a
// test) is its single consumer.
func (s *Session) Outbox() <-chan []byte {
	return s.send
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// deliver enqueues without blocking. It reports false when the session
// is closed or its buffer is exhausted, which the caller treats as a
// dead consumer.
func (s *Session) deliver(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// WritePump owns all writes on the socket: queued envelopes plus the
// ping keepalive. It returns when the session closes or a write fails.
func (s *Session) WritePump(conn *websocket.Conn, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("session write failed", zap.String("session_id", s.ID.String()), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// ReadPump consumes inbound frames until the peer goes away. Client
// text is acknowledged and otherwise ignored; the protocol is
// server-push, not a command channel.
func (s *Session) ReadPump(conn *websocket.Conn, log *zap.Logger) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ack, _ := json.Marshal(map[string]string{"type": "ack", "message": "message received"})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("session read failed", zap.String("session_id", s.ID.String()), zap.Error(err))
			}
			return
		}
		s.deliver(ack)
	}
}
