package service

import "chatd/internal/domain"

// Dispatcher is the delivery surface the services push real-time events
// through. Delivery is at-most-once and fire-and-forget: a disconnected
// target simply never sees the event and is expected to re-fetch state on
// reconnect.
type Dispatcher interface {
	// BroadcastToRoom delivers the event to every session currently
	// subscribed to the room, FIFO per session.
	BroadcastToRoom(roomID string, e domain.Event)
	// DeliverToUser delivers the event to every active session of the user
	// (zero or more).
	DeliverToUser(userID string, e domain.Event)
	// BroadcastAll delivers the event to every connected session.
	BroadcastAll(e domain.Event)
	// SubscribeUser adds all of the user's active sessions to the room.
	SubscribeUser(userID, roomID string)
	// UnsubscribeUser removes all of the user's active sessions from the room.
	UnsubscribeUser(userID, roomID string)
	// DropRoom removes every session's subscription to the room.
	DropRoom(roomID string)
	// IsOnline reports whether the user has at least one active session.
	IsOnline(userID string) bool
}
