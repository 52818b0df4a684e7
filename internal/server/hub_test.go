package server

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(NewState(), zerolog.Nop())

	require.NotNil(t, hub)
	require.NotNil(t, hub.GetRegisterChan())
	require.NotNil(t, hub.GetUnregisterChan())
	require.Same(t, hub.state, hub.State())
}

func TestNextSessionIDIsMonotonic(t *testing.T) {
	hub := NewHub(NewState(), zerolog.Nop())

	for want := int64(0); want < 10; want++ {
		require.Equal(t, want, hub.NextSessionID())
	}
}

func TestHubRunIgnoresNilRegistration(t *testing.T) {
	hub := NewHub(NewState(), zerolog.Nop())
	go hub.Run()

	select {
	case hub.GetRegisterChan() <- nil:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("register channel did not accept nil session")
	}

	require.NoError(t, hub.Shutdown(time.Second))
}

func TestSafeSendToUnregisteredSession(t *testing.T) {
	hub := NewHub(NewState(), zerolog.Nop())
	s := newTestSession(t, hub, "alice")
	s.send = make(chan []byte, 1)

	// Never registered, so delivery must be refused without panicking.
	require.False(t, hub.safeSend(s, []byte("hello")))
}

func TestNotifyWithEmptyRegistryIsHarmless(t *testing.T) {
	hub := NewHub(NewState(), zerolog.Nop())

	hub.NotifyAll(nil, "hello")
	hub.NotifyUsers([]string{"alice", "bob"}, nil, "hello")
}

func TestHubShutdownCompletes(t *testing.T) {
	hub := NewHub(NewState(), zerolog.Nop())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, hub.Shutdown(5*time.Second))
}
