package ws

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/internal/domain"
)

func newTestSession(userID string) *Session {
	return NewSession(userID, nil, 8, zerolog.Nop())
}

// drain collects everything currently queued for the session.
func drain(s *Session) []domain.Event {
	var events []domain.Event
	for {
		select {
		case payload := <-s.send:
			var e domain.Event
			if err := json.Unmarshal(payload, &e); err == nil {
				events = append(events, e)
			}
		default:
			return events
		}
	}
}

func TestPresenceTransitions(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	first := newTestSession("u1")
	second := newTestSession("u1")

	// Only the first session flips the user online.
	assert.True(t, hub.Register(first))
	assert.False(t, hub.Register(second))
	assert.True(t, hub.IsOnline("u1"))

	// Only the last session flips the user offline.
	assert.False(t, hub.Unregister(first))
	assert.True(t, hub.IsOnline("u1"))
	assert.True(t, hub.Unregister(second))
	assert.False(t, hub.IsOnline("u1"))

	// Unregistering a session twice is inert.
	assert.False(t, hub.Unregister(second))
}

func TestRoomBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	a := newTestSession("alice")
	b := newTestSession("bob")
	c := newTestSession("carol")
	hub.Register(a)
	hub.Register(b)
	hub.Register(c)

	hub.Subscribe(a, "room1")
	hub.Subscribe(b, "room1")

	hub.BroadcastToRoom("room1", domain.Event{Name: "ping", Data: map[string]any{"n": 1}})

	require.Len(t, drain(a), 1)
	require.Len(t, drain(b), 1)
	assert.Empty(t, drain(c))
}

func TestDeliveryOrderPerSession(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	s := newTestSession("alice")
	hub.Register(s)
	hub.Subscribe(s, "room1")

	for i := 0; i < 5; i++ {
		hub.BroadcastToRoom("room1", domain.Event{Name: "seq", Data: map[string]any{"n": i}})
	}

	events := drain(s)
	require.Len(t, events, 5)
	for i, e := range events {
		data := e.Data.(map[string]any)
		assert.Equal(t, float64(i), data["n"])
	}
}

func TestFullBufferDropsNotBlocks(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	s := NewSession("alice", nil, 2, zerolog.Nop())
	hub.Register(s)
	hub.Subscribe(s, "room1")

	for i := 0; i < 10; i++ {
		hub.BroadcastToRoom("room1", domain.Event{Name: "flood"})
	}

	// Overflow is dropped, earlier events survive in order.
	assert.Len(t, drain(s), 2)
}

func TestSubscriptionLifecycle(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	s1 := newTestSession("alice")
	s2 := newTestSession("alice")
	hub.Register(s1)
	hub.Register(s2)

	t.Run("SubscribeUserCoversAllSessions", func(t *testing.T) {
		hub.SubscribeUser("alice", "room1")
		hub.BroadcastToRoom("room1", domain.Event{Name: "hello"})
		assert.Len(t, drain(s1), 1)
		assert.Len(t, drain(s2), 1)
	})

	t.Run("UnsubscribeUserRemovesAllSessions", func(t *testing.T) {
		hub.UnsubscribeUser("alice", "room1")
		hub.BroadcastToRoom("room1", domain.Event{Name: "hello"})
		assert.Empty(t, drain(s1))
		assert.Empty(t, drain(s2))
	})

	t.Run("SubscribeIsIdempotent", func(t *testing.T) {
		hub.Subscribe(s1, "room2")
		hub.Subscribe(s1, "room2")
		hub.BroadcastToRoom("room2", domain.Event{Name: "once"})
		assert.Len(t, drain(s1), 1)
	})

	t.Run("DropRoomClearsEveryone", func(t *testing.T) {
		hub.Subscribe(s2, "room2")
		hub.DropRoom("room2")
		hub.BroadcastToRoom("room2", domain.Event{Name: "gone"})
		assert.Empty(t, drain(s1))
		assert.Empty(t, drain(s2))
	})

	t.Run("UnregisterCleansRoomEntries", func(t *testing.T) {
		hub.Subscribe(s1, "room3")
		hub.Unregister(s1)
		hub.BroadcastToRoom("room3", domain.Event{Name: "bye"})
		assert.Empty(t, drain(s1))
	})
}

func TestDeliverToUser(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	alice1 := newTestSession("alice")
	alice2 := newTestSession("alice")
	bob := newTestSession("bob")
	hub.Register(alice1)
	hub.Register(alice2)
	hub.Register(bob)

	hub.DeliverToUser("alice", domain.Event{Name: "direct"})

	assert.Len(t, drain(alice1), 1)
	assert.Len(t, drain(alice2), 1)
	assert.Empty(t, drain(bob))
}

func TestBroadcastAll(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	a := newTestSession("alice")
	b := newTestSession("bob")
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastAll(domain.Event{Name: "announce"})

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)

	// A closed session silently drops instead of receiving.
	a.Close()
	hub.BroadcastAll(domain.Event{Name: "announce"})
	assert.Empty(t, drain(a))
	assert.Len(t, drain(b), 1)
}
