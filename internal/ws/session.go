package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatd/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Session is one websocket connection belonging to an authenticated user. A
// user may hold any number of concurrent sessions. All writes go through the
// send channel and a single writePump, which keeps delivery order FIFO per
// session; a full buffer drops the event rather than blocking the hub.
type Session struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(userID string, conn *websocket.Conn, buffer int, log zerolog.Logger) *Session {
	if buffer <= 0 {
		buffer = 256
	}
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		log:    log,
		done:   make(chan struct{}),
	}
}

// Deliver queues the event for this session. Delivery is at-most-once: if
// the session's buffer is full or the session is closed, the event is
// dropped.
func (s *Session) Deliver(e domain.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.log.Error().Err(err).Str("event", e.Name).Msg("marshal event")
		return
	}
	s.deliverRaw(payload)
}

func (s *Session) deliverRaw(payload []byte) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.send <- payload:
	default:
		s.log.Warn().Str("session_id", s.ID).Str("user_id", s.UserID).Msg("send buffer full, dropping event")
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings. It exits when Close is called or a write
// fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close makes the session stop accepting events; idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
