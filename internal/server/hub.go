// Package server coordinates session registration, notification fan-out, and
// connection cleanup for the bulletin-board system via the Hub type.
package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Hub is the session registry. It assigns client ids, tracks every active
// session, and delivers best-effort notifications to computed member sets.
// Registration and teardown run through its event loop; the session map is
// additionally mutex-protected so broadcasts can snapshot it from any
// goroutine.
type Hub struct {
	state      *State
	log        zerolog.Logger
	sessions   map[int64]*Session
	register   chan *Session
	unregister chan *Session
	nextID     atomic.Int64
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub bound to the shared board state.
func NewHub(state *State, log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		state:      state,
		log:        log,
		sessions:   make(map[int64]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// State returns the board state the hub dispatches commands against.
func (h *Hub) State() *State {
	return h.state
}

// NextSessionID hands out the next client id. Ids are monotonic and never
// reused within a server run, so a stale id can never point at a newer
// session.
func (h *Hub) NextSessionID() int64 {
	return h.nextID.Add(1) - 1
}

// GetRegisterChan returns the channel used for registering new sessions.
func (h *Hub) GetRegisterChan() chan<- *Session {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering sessions.
func (h *Hub) GetUnregisterChan() chan<- *Session {
	return h.unregister
}

// Run starts the hub's event loop, handling session registration and
// teardown. It should be called in its own goroutine; it returns only when
// Shutdown is invoked.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case session := <-h.register:
			if session == nil {
				h.log.Warn().Msg("received nil session registration; skipping")
				continue
			}

			h.mutex.Lock()
			session.closed = false
			h.sessions[session.id] = session
			count := len(h.sessions)
			h.mutex.Unlock()

			session.setPhase(phaseActive)
			h.log.Info().
				Int64("session_id", session.id).
				Str("username", session.username).
				Str("addr", session.addr).
				Int("total_sessions", count).
				Msg("session registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				session.writePump()
			}()
			go func() {
				defer h.wg.Done()
				session.readPump()
			}()

			// Join announcement goes to every other connected session,
			// whatever groups they are in.
			h.NotifyAll(session, fmt.Sprintf("%s has joined the server (client ID #%d).", session.username, session.id))

		case session := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.sessions[session.id]; ok {
				delete(h.sessions, session.id)
				session.closed = true
				count := len(h.sessions)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(session.send)
				session.setPhase(phaseClosed)
				h.log.Info().
					Int64("session_id", session.id).
					Int("total_sessions", count).
					Msg("session unregistered")
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// NotifyUsers delivers text to every session whose username is in targets,
// except the acting session. Delivery is best-effort: a session that cannot
// take the frame is dropped from the registry rather than stalling the
// caller.
func (h *Hub) NotifyUsers(targets []string, acting *Session, text string) {
	h.notify(func(s *Session) bool {
		return lo.Contains(targets, s.username)
	}, acting, text)
}

// NotifyAll delivers text to every registered session except the acting one.
func (h *Hub) NotifyAll(acting *Session, text string) {
	h.notify(func(*Session) bool { return true }, acting, text)
}

func (h *Hub) notify(match func(*Session) bool, acting *Session, text string) {
	payload := []byte(text)

	var failed []*Session
	for _, session := range h.sessionSnapshot() {
		if acting != nil && session.id == acting.id {
			continue
		}
		if !match(session) {
			continue
		}
		if !h.safeSend(session, payload) {
			failed = append(failed, session)
		}
	}
	h.removeFailedSessions(failed)
}

// sessionSnapshot returns the current sessions so notifications can be
// written without holding the registry lock.
func (h *Hub) sessionSnapshot() []*Session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (h *Hub) safeSend(session *Session, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.sessions[session.id]
	if !exists || session.closed {
		return false
	}

	// The send channel may be closed concurrently; the recover above covers
	// that window.
	select {
	case session.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedSessions evicts sessions whose outbox is full or closed. Their
// read side will observe the closed connection and finish its own teardown.
func (h *Hub) removeFailedSessions(failed []*Session) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channels []chan []byte
	for _, session := range failed {
		if _, exists := h.sessions[session.id]; exists {
			delete(h.sessions, session.id)
			session.closed = true
			channels = append(channels, session.send)
			h.log.Warn().
				Int64("session_id", session.id).
				Str("addr", session.addr).
				Msg("session removed due to full send buffer")
		}
	}
	h.mutex.Unlock()

	for _, ch := range channels {
		close(ch)
	}
}

// shutdownSessions closes every active connection during hub shutdown.
func (h *Hub) shutdownSessions() {
	h.log.Info().Msg("closing all session connections")

	sessions := h.sessionSnapshot()
	for _, session := range sessions {
		session.setPhase(phaseClosing)
		if session.conn != nil {
			if err := session.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Error().Err(err).Str("addr", session.addr).Msg("error closing session connection")
			}
		}
	}

	h.log.Info().Int("count", len(sessions)).Msg("closed session connections")
}

// Shutdown stops the event loop and waits for all session goroutines to
// finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
