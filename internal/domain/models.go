package domain

import "time"

// Room kinds.
const (
	RoomPrivate = "private"
	RoomGroup   = "group"
)

// Participant roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Message kinds.
const (
	MessageText   = "text"
	MessageFile   = "file"
	MessageVoice  = "voice"
	MessageVideo  = "video"
	MessageSystem = "system"
)

// User represents an application user.
type User struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	RealName       *string    `db:"real_name" json:"real_name,omitempty"`
	BirthDate      *string    `db:"birth_date" json:"birth_date,omitempty"`
	Gender         *string    `db:"gender" json:"gender,omitempty"`
	HashedPassword string     `db:"hashed_password" json:"-"`
	Avatar         *string    `db:"avatar" json:"avatar"`
	AvatarGallery  []string   `db:"-" json:"avatars_gallery"`
	Bio            *string    `db:"bio" json:"bio,omitempty"`
	LastActive     *time.Time `db:"last_active" json:"last_active,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Room is a conversation scope, either two-party (private) or multi-party
// (group). Name and Avatar are only meaningful for group rooms; a private
// room's displayed identity is derived from the other participant.
type Room struct {
	ID        string  `db:"id" json:"id"`
	Kind      string  `db:"kind" json:"type"`
	Name      *string `db:"name" json:"name"`
	Avatar    *string `db:"avatar" json:"avatar"`
	// PairKey is the normalized participant pair of a private room; nil for
	// groups. A unique index on it keeps the pair to a single room even
	// under concurrent creation.
	PairKey   *string   `db:"pair_key" json:"-"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PrivatePairKey builds the order-independent key identifying a private
// room's participant pair.
func PrivatePairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

// Participant is a user's membership record in a room, carrying a role.
type Participant struct {
	RoomID   string    `db:"room_id" json:"room_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Message is a single chat message. IDs are monotonic and double as the
// chronological ordering handle.
type Message struct {
	ID        int64      `db:"id" json:"id"`
	RoomID    string     `db:"room_id" json:"room_id"`
	SenderID  string     `db:"sender_id" json:"sender_id"`
	Kind      string     `db:"kind" json:"type"`
	Content   string     `db:"content" json:"content"` // encrypted at rest
	Filename  *string    `db:"filename" json:"filename,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	EditedAt  *time.Time `db:"edited_at" json:"edited_at,omitempty"`
}

// Reaction is keyed uniquely by (message, user); re-reacting replaces the
// previous symbol rather than adding a second entry.
type Reaction struct {
	MessageID int64     `db:"message_id" json:"message_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Symbol    string    `db:"reaction" json:"reaction"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BlockRelation is a directed suppression edge blocker -> blocked. Its effect
// on visibility is symmetric: either direction hides content.
type BlockRelation struct {
	BlockerID string `db:"blocker_id" json:"blocker_id"`
	BlockedID string `db:"blocked_id" json:"blocked_id"`
}

// AuditEntry is a human-readable log line scoped to a group room.
type AuditEntry struct {
	ID        int64     `db:"id" json:"id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	Action    string    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// Event is an outbound real-time event delivered to sessions.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}
