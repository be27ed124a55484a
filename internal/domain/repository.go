package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByName(ctx context.Context, name string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	UpdateAvatar(ctx context.Context, id string, avatar *string, gallery []string) error
	TouchLastActive(ctx context.Context, id string) error
}

// RoomRepository defines persistence operations for rooms.
type RoomRepository interface {
	Create(ctx context.Context, r *Room, participants []*Participant) error
	GetByID(ctx context.Context, id string) (*Room, error)
	ListForUser(ctx context.Context, userID string) ([]*Room, error)
	// FindPrivateBetween returns the private room shared by the two users,
	// order-independent, or ErrNotFound. At most one such room exists.
	FindPrivateBetween(ctx context.Context, userA, userB string) (*Room, error)
	UpdateName(ctx context.Context, id string, name string) error
	// HideForUser adds the user to the room's per-user hidden set (idempotent).
	HideForUser(ctx context.Context, roomID, userID string) error
	UnhideForUser(ctx context.Context, roomID, userID string) error
	// ClearHidden empties the room's hidden set for all users.
	ClearHidden(ctx context.Context, roomID string) error
	IsHiddenFor(ctx context.Context, roomID, userID string) (bool, error)
	HasHidden(ctx context.Context, roomID string) (bool, error)
	// DeleteCascade removes the room together with its messages, reactions,
	// participants, hidden flags, and audit log in one transaction.
	DeleteCascade(ctx context.Context, roomID string) error
}

// ParticipantRepository defines operations around room participants.
type ParticipantRepository interface {
	Add(ctx context.Context, p *Participant) error
	Remove(ctx context.Context, roomID, userID string) error
	UpdateRole(ctx context.Context, roomID, userID, role string) error
	Get(ctx context.Context, roomID, userID string) (*Participant, error)
	ListForRoom(ctx context.Context, roomID string) ([]*Participant, error)
	CountForRoom(ctx context.Context, roomID string) (int, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// UpdateContent updates content and edited timestamp only when the row
	// matches both message id and sender id; reports whether a row matched.
	UpdateContent(ctx context.Context, id int64, senderID, content string) (*Message, error)
	Delete(ctx context.Context, id int64) error
	ListForRoom(ctx context.Context, roomID string) ([]*Message, error)
	HideForUser(ctx context.Context, messageID int64, userID string) error
	IsHiddenFor(ctx context.Context, messageID int64, userID string) (bool, error)
}

// ReactionRepository defines persistence operations for message reactions.
type ReactionRepository interface {
	// Upsert replaces any existing reaction by the same user on the same
	// message, preserving the (message, user) uniqueness invariant.
	Upsert(ctx context.Context, r *Reaction) error
	Delete(ctx context.Context, messageID int64, userID string) error
	ListForMessage(ctx context.Context, messageID int64) ([]*Reaction, error)
}

// BlockRepository defines persistence operations for block relations.
type BlockRepository interface {
	// Add inserts the directed edge; a duplicate insert is not an error.
	Add(ctx context.Context, blockerID, blockedID string) error
	Remove(ctx context.Context, blockerID, blockedID string) error
	// Exists reports whether the directed edge blocker -> blocked is present.
	Exists(ctx context.Context, blockerID, blockedID string) (bool, error)
	// ListRelated returns every user id that has blocked or is blocked by
	// the given user, in either direction.
	ListRelated(ctx context.Context, userID string) (map[string]struct{}, error)
	ListBlockedBy(ctx context.Context, blockerID string) ([]string, error)
}

// AuditLogRepository defines persistence operations for group audit logs.
type AuditLogRepository interface {
	Append(ctx context.Context, e *AuditEntry) error
	ListForRoom(ctx context.Context, roomID string) ([]*AuditEntry, error)
}
