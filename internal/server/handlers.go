// Package server exposes the HTTP handlers that accept client connections:
// the upgrade-plus-handshake endpoint and the health check.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// handshakeGroupSample caps how many existing group names the handshake
// reply advertises.
const handshakeGroupSample = 5

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Handler bundles the HTTP endpoints around a hub.
type Handler struct {
	hub *Hub
}

// NewHandler creates the HTTP handler set for the given hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Connect upgrades the HTTP request, performs the bulletin-board handshake,
// and registers the resulting session with the hub. The first client frame
// must be "<username> <group>"; the group defaults to "default" when the
// token is absent. The reply carries the assigned client id and a sample of
// existing groups.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Connection endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Error().Err(err).Str("addr", r.RemoteAddr).Msg("connection upgrade failed")
		return
	}

	username, group, err := readHandshake(conn)
	if err != nil {
		h.hub.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("handshake failed")
		_ = conn.WriteMessage(websocket.TextMessage, []byte("Error: Invalid handshake. Expected '<username> <group>'."))
		_ = conn.Close()
		return
	}

	id := h.hub.NextSessionID()
	session := NewSession(id, username, conn, h.hub, r.RemoteAddr)

	h.hub.state.ConnectJoin(username, group)

	// Queue the handshake reply ahead of registration so it is the first
	// frame the write pump delivers.
	session.send <- []byte(handshakeReply(id, h.hub.state))

	h.hub.register <- session
}

// readHandshake reads and parses the opening frame.
func readHandshake(conn *websocket.Conn) (username, group string, err error) {
	if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		return "", "", fmt.Errorf("set handshake deadline: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", "", fmt.Errorf("read handshake frame: %w", err)
	}

	tokens := strings.Fields(string(raw))
	if len(tokens) == 0 {
		return "", "", fmt.Errorf("empty handshake frame")
	}

	username = tokens[0]
	group = DefaultGroup
	if len(tokens) > 1 {
		group = tokens[1]
	}
	return username, group, nil
}

// handshakeReply formats "id <clientId>" plus up to five group names, with
// an ellipsis marker when more groups exist.
func handshakeReply(id int64, state *State) string {
	sample, more := state.GroupSample(handshakeGroupSample)

	reply := fmt.Sprintf("id %d Current server groups: %s", id, strings.Join(sample, ", "))
	if more {
		reply += "..."
	}
	return reply
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Bulletin board server is running!")
}
