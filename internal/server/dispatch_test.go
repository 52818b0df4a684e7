package server

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newTestSession wires a session to a hub without a network connection; the
// dispatcher itself never touches the socket.
func newTestSession(t *testing.T, hub *Hub, username string) *Session {
	t.Helper()
	return &Session{
		id:       hub.NextSessionID(),
		username: username,
		hub:      hub,
		log:      zerolog.Nop(),
	}
}

func newTestHub() *Hub {
	return NewHub(NewState(), zerolog.Nop())
}

func TestDispatchInvalidCommand(t *testing.T) {
	hub := newTestHub()
	s := newTestSession(t, hub, "alice")

	for _, raw := range []string{"", "   ", "frobnicate", "POST s b"} {
		reply, exit := s.dispatch(raw)
		require.Equal(t, "Invalid command.", reply, "request %q", raw)
		require.False(t, exit)
	}
}

func TestDispatchHelp(t *testing.T) {
	hub := newTestHub()
	s := newTestSession(t, hub, "alice")

	reply, exit := s.dispatch("help")
	require.Contains(t, reply, "%post")
	require.Contains(t, reply, "%groupmessage")
	require.False(t, exit)
}

func TestDispatchExit(t *testing.T) {
	hub := newTestHub()
	s := newTestSession(t, hub, "alice")

	reply, exit := s.dispatch("exit")
	require.Equal(t, "You have been disconnected from the server.", reply)
	require.True(t, exit)
}

func TestDispatchJoinFlow(t *testing.T) {
	hub := newTestHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	reply, _ := alice.dispatch("groupjoin book-club")
	require.Equal(t, "Added to new group 'book-club'.", reply)

	reply, _ = alice.dispatch("groupjoin book-club")
	require.Equal(t, "Already part of group 'book-club'.", reply)

	reply, _ = bob.dispatch("groupjoin book-club")
	require.Contains(t, reply, "Added to group 'book-club'.")
	require.Contains(t, reply, "Current Members: alice, bob")
	require.Contains(t, reply, "No previous messages.")
}

func TestDispatchJoinShowsRecentMessageIDs(t *testing.T) {
	hub := newTestHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	alice.dispatch("groupjoin book-club")
	for i := 0; i < 3; i++ {
		reply, _ := alice.dispatch("grouppost book-club subject body text")
		require.Contains(t, reply, "New message posted in book-club by alice")
	}

	reply, _ := bob.dispatch("groupjoin book-club")
	require.Contains(t, reply, "Previous messages:")
	require.Contains(t, reply, "Message ID: 1")
	require.Contains(t, reply, "Message ID: 2")
	require.NotContains(t, reply, "Message ID: 0")
}

func TestDispatchJoinValidation(t *testing.T) {
	hub := newTestHub()
	s := newTestSession(t, hub, "alice")

	reply, exit := s.dispatch("groupjoin")
	require.Equal(t, "Invalid groupjoin command. Please supply a group name to join.", reply)
	require.False(t, exit)

	reply, exit = s.dispatch("groupjoin one two")
	require.Equal(t, "Invalid groupjoin command. Please supply a group name to join.", reply)
	require.False(t, exit)
}

func TestDispatchPost(t *testing.T) {
	hub := newTestHub()
	s := newTestSession(t, hub, "alice")

	reply, _ := s.dispatch("post")
	require.Equal(t, "Error: Missing subject or message.", reply)

	reply, _ = s.dispatch("post subject-only")
	require.Equal(t, "Error: Missing subject or message.", reply)

	// Not a member of default until joining.
	reply, _ = s.dispatch("post subject body")
	require.Equal(t, "Error: Client not member of group 'default'.", reply)

	s.dispatch("join")
	reply, _ = s.dispatch("post Welcome Hi all")
	require.Equal(t, "New message posted in default by alice with ID#0.", reply)

	reply, _ = s.dispatch("grouppost missing subject body")
	require.Equal(t, "Error: Invalid group name.", reply)

	reply, _ = s.dispatch("grouppost default subject")
	require.Equal(t, "Error: Missing group, subject, or message.", reply)
}

func TestDispatchUsersAndGroups(t *testing.T) {
	hub := newTestHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	alice.dispatch("join")
	bob.dispatch("join")
	alice.dispatch("groupjoin book-club")

	reply, _ := alice.dispatch("users")
	require.Equal(t, "Users in 'default': alice, bob", reply)

	reply, _ = alice.dispatch("groups")
	require.Equal(t, "Available groups: default, book-club", reply)

	reply, _ = alice.dispatch("groupusers book-club")
	require.Equal(t, "Users in 'book-club': alice", reply)

	// groupusers requires membership; bob never joined book-club.
	reply, _ = bob.dispatch("groupusers book-club")
	require.Equal(t, "Error: Client not member of group 'book-club'.", reply)

	reply, _ = bob.dispatch("groupusers nope")
	require.Equal(t, "Error: Invalid group name.", reply)
}

func TestDispatchLeave(t *testing.T) {
	hub := newTestHub()
	s := newTestSession(t, hub, "alice")

	reply, _ := s.dispatch("leave")
	require.Equal(t, "Error: Client not member of group 'default'.", reply)

	s.dispatch("join")
	reply, _ = s.dispatch("leave")
	require.Equal(t, "You have left group 'default'.", reply)

	reply, _ = s.dispatch("groupleave")
	require.Equal(t, "Error: Invalid group name.", reply)
}

func TestDispatchMessageRead(t *testing.T) {
	hub := newTestHub()
	s := newTestSession(t, hub, "alice")

	s.dispatch("join")
	s.dispatch("post Welcome Hi all")

	reply, _ := s.dispatch("message 0")
	require.Contains(t, reply, "alice on ")
	require.Contains(t, reply, "(Welcome): Hi all")

	reply, _ = s.dispatch("message")
	require.Equal(t, "Error: Missing message ID.", reply)

	reply, _ = s.dispatch("message nope")
	require.Equal(t, "Error: Invalid message ID.", reply)

	reply, _ = s.dispatch("message 99")
	require.Equal(t, "Error: Message ID does not exist.", reply)

	reply, _ = s.dispatch("groupmessage default")
	require.Equal(t, "Error: Missing group ID or message ID.", reply)

	reply, _ = s.dispatch("groupmessage default 0")
	require.Contains(t, reply, "(Welcome): Hi all")
}

func TestDispatchVisibilityResponses(t *testing.T) {
	hub := newTestHub()
	alice := newTestSession(t, hub, "alice")
	carol := newTestSession(t, hub, "carol")

	alice.dispatch("groupjoin book-club")
	for i := 0; i < 4; i++ {
		alice.dispatch("grouppost book-club subject body")
	}
	carol.dispatch("groupjoin book-club")

	// Inside the catch-up window.
	reply, _ := carol.dispatch("groupmessage book-club 2")
	require.Contains(t, reply, "(subject): body")

	// Outside the window: a Forbidden response, distinct from NotFound.
	reply, _ = carol.dispatch("groupmessage book-club 0")
	require.Equal(t, "Error: You are trying to access a message from too far in the past from when you joined the current group. (Limit: 2)", reply)

	reply, _ = carol.dispatch("groupmessage book-club 99")
	require.Equal(t, "Error: Message ID does not exist.", reply)
}

func TestDispatchMalformedRequestsNeverExit(t *testing.T) {
	hub := newTestHub()
	s := newTestSession(t, hub, "alice")

	for _, raw := range []string{
		"groupjoin",
		"post",
		"grouppost g",
		"groupusers",
		"groupleave",
		"message",
		"groupmessage g",
		"bogus",
	} {
		_, exit := s.dispatch(raw)
		require.False(t, exit, "request %q must not terminate the session", raw)
	}
}
