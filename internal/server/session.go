// Package server manages individual client sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	readWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	pingInterval = 54 * time.Second

	// sendBufferSize bounds the per-session outbox so a stalled client
	// cannot block a broadcasting peer.
	sendBufferSize = 256
)

// Session lifecycle phases. Transitions are one-way: connecting -> active ->
// closing -> closed. A session is never reactivated.
const (
	phaseConnecting int32 = iota
	phaseActive
	phaseClosing
	phaseClosed
)

// Session represents one connected client: its server-assigned id, its
// username, and the connection it exclusively owns. Outgoing frames go
// through the buffered send channel; the write pump is the only goroutine
// that touches the connection's write side.
type Session struct {
	id             int64
	username       string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	log            zerolog.Logger
	closed         bool // guarded by hub.mutex
	phase          atomic.Int32
	limiter        *rate.Limiter
	maxMessageSize int64
}

// NewSession creates a session for an accepted connection. The id must come
// from the hub's monotonic counter.
func NewSession(id int64, username string, conn *websocket.Conn, hub *Hub, addr string) *Session {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	s := &Session{
		id:             id,
		username:       username,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		log:            hub.log.With().Int64("session_id", id).Str("username", username).Str("addr", addr).Logger(),
		limiter:        newRequestLimiter(cfg.RateLimit),
		maxMessageSize: cfg.MaxMessageSize,
	}
	s.phase.Store(phaseConnecting)
	return s
}

// newRequestLimiter builds a token bucket that admits Burst requests per
// RefillInterval.
func newRequestLimiter(cfg RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}

// ID returns the server-assigned client id.
func (s *Session) ID() int64 {
	return s.id
}

// Username returns the name the client presented in the handshake.
func (s *Session) Username() string {
	return s.username
}

// GetSendChan returns the session's outbox for reading outgoing frames.
func (s *Session) GetSendChan() <-chan []byte {
	return s.send
}

func (s *Session) setPhase(p int32) {
	// Phases only move forward.
	for {
		cur := s.phase.Load()
		if cur >= p {
			return
		}
		if s.phase.CompareAndSwap(cur, p) {
			return
		}
	}
}

// respond queues one response frame for this session. Delivery shares the
// broadcast path so a closed session is handled the same way.
func (s *Session) respond(text string) {
	if !s.hub.safeSend(s, []byte(text)) {
		s.log.Debug().Msg("dropping response for closed session")
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		s.log.Error().Err(err).Msg("error setting initial read deadline")
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			s.log.Error().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the error by type and reports whether the read loop
// should stop. Any read failure ends only this session.
func (s *Session) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		s.log.Warn().Int64("limit", s.maxMessageSize).Msg("request exceeded maximum frame size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		s.log.Info().Err(err).Msg("client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		s.log.Info().Err(err).Msg("connection closed")
		return true
	}

	s.log.Error().Err(err).Msg("read error")
	return true
}

// handleRequest dispatches one framed request and writes exactly one
// response frame. A panic inside a command degrades to an error response;
// it never takes the session down.
func (s *Session) handleRequest(raw string) (exit bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("request", raw).Msg("recovered from panic while handling request")
			s.respond("Error: Internal server error.")
			exit = false
		}
	}()

	reply, quit := s.dispatch(raw)
	s.respond(reply)
	return quit
}

func (s *Session) readPump() {
	defer func() {
		s.setPhase(phaseClosing)
		s.hub.unregister <- s
	}()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if s.handleReadError(err) {
				break
			}
			continue
		}

		if !s.limiter.Allow() {
			s.log.Warn().Msg("rate limit exceeded; rejecting request")
			s.respond("Error: Too many requests.")
			continue
		}

		if s.handleRequest(string(raw)) {
			s.log.Info().Msg("session exiting on client request")
			break
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when
// the pump should stop.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case frame, ok := <-s.send:
		return s.writeFrame(frame, ok)
	case <-ticker.C:
		return s.writePing()
	}
}

// writeFrame sends one response or notification as its own text frame, so a
// client read always yields exactly one logical message.
func (s *Session) writeFrame(frame []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Error().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		// The registry dropped this session; say goodbye to the peer.
		if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			s.log.Error().Err(err).Msg("error writing close message")
		}
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Error().Err(err).Msg("error writing frame")
		}
		return false
	}
	return true
}

// writePing keeps the connection alive between requests.
func (s *Session) writePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Error().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Error().Err(err).Msg("error writing ping")
		}
		return false
	}
	return true
}

// closeConnection releases the socket after the write pump stops.
func (s *Session) closeConnection() {
	s.setPhase(phaseClosing)
	if err := s.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Error().Err(err).Msg("error closing connection")
		}
	}
}
