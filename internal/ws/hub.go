package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"chatd/internal/domain"
	"chatd/internal/service"
)

var _ service.Dispatcher = (*Hub)(nil)

// Hub is the in-process presence registry and event dispatcher. It tracks
// which sessions belong to which user and which rooms each session is
// subscribed to. One hub serves the whole process; presence does not span
// multiple processes.
type Hub struct {
	mu sync.RWMutex
	// users maps a user id to that user's active sessions.
	users map[string]map[*Session]struct{}
	// rooms maps a room id to the sessions subscribed to it.
	rooms map[string]map[*Session]struct{}
	// memberships maps a session to the room ids it is subscribed to, so
	// unregistering a session can clean up its room entries.
	memberships map[*Session]map[string]struct{}

	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		users:       make(map[string]map[*Session]struct{}),
		rooms:       make(map[string]map[*Session]struct{}),
		memberships: make(map[*Session]map[string]struct{}),
		log:         log,
	}
}

// Register adds the session to the presence registry and reports whether the
// user transitioned from offline to online, i.e. this is their first active
// session.
func (h *Hub) Register(s *Session) (wentOnline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[s.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		h.users[s.UserID] = set
	}
	set[s] = struct{}{}
	h.memberships[s] = make(map[string]struct{})
	return len(set) == 1
}

// Unregister removes the session and all of its room subscriptions, and
// reports whether the user transitioned to offline, i.e. this was their last
// active session.
func (h *Hub) Unregister(s *Session) (wentOffline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[s.UserID]
	if !ok {
		return false
	}
	if _, present := set[s]; !present {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.users, s.UserID)
		wentOffline = true
	}

	for roomID := range h.memberships[s] {
		h.removeFromRoom(s, roomID)
	}
	delete(h.memberships, s)
	return wentOffline
}

// Subscribe adds the session to the room; idempotent.
func (h *Hub) Subscribe(s *Session, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeLocked(s, roomID)
}

func (h *Hub) subscribeLocked(s *Session, roomID string) {
	if _, registered := h.memberships[s]; !registered {
		return
	}
	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[*Session]struct{})
		h.rooms[roomID] = set
	}
	set[s] = struct{}{}
	h.memberships[s][roomID] = struct{}{}
}

// Unsubscribe removes the session from the room; idempotent.
func (h *Hub) Unsubscribe(s *Session, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(s, roomID)
	if m, ok := h.memberships[s]; ok {
		delete(m, roomID)
	}
}

func (h *Hub) removeFromRoom(s *Session, roomID string) {
	set, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.rooms, roomID)
	}
}

// SubscribeUser adds every active session of the user to the room.
func (h *Hub) SubscribeUser(userID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.users[userID] {
		h.subscribeLocked(s, roomID)
	}
}

// UnsubscribeUser removes every active session of the user from the room.
func (h *Hub) UnsubscribeUser(userID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.users[userID] {
		h.removeFromRoom(s, roomID)
		if m, ok := h.memberships[s]; ok {
			delete(m, roomID)
		}
	}
}

// DropRoom removes every session's subscription to the room, typically after
// the room itself is deleted.
func (h *Hub) DropRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.rooms[roomID] {
		if m, ok := h.memberships[s]; ok {
			delete(m, roomID)
		}
	}
	delete(h.rooms, roomID)
}

// BroadcastToRoom delivers the event to every session subscribed to the
// room. The payload is marshalled once; per-session order is FIFO.
func (h *Hub) BroadcastToRoom(roomID string, e domain.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.log.Error().Err(err).Str("event", e.Name).Msg("marshal event")
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[roomID]))
	for s := range h.rooms[roomID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliverRaw(payload)
	}
}

// DeliverToUser delivers the event to every active session of the user.
func (h *Hub) DeliverToUser(userID string, e domain.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.log.Error().Err(err).Str("event", e.Name).Msg("marshal event")
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.users[userID]))
	for s := range h.users[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliverRaw(payload)
	}
}

// BroadcastAll delivers the event to every connected session.
func (h *Hub) BroadcastAll(e domain.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.log.Error().Err(err).Str("event", e.Name).Msg("marshal event")
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.memberships))
	for s := range h.memberships {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliverRaw(payload)
	}
}

// IsOnline reports whether the user has at least one active session.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}
