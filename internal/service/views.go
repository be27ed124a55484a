package service

import (
	"time"

	"chatd/internal/domain"
)

// View types mirror the payloads the frontend consumes. Fields belonging to
// a user in a block relation with the viewer are redacted before delivery.

type ParticipantView struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
	Role   string  `json:"role"`
}

type ReactionView struct {
	Symbol string  `json:"reaction"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
}

// ReactionMap is keyed by the reacting user's id; the (message, user)
// uniqueness invariant means one entry per user.
type ReactionMap map[string]ReactionView

type MessageView struct {
	ID           int64       `json:"id"`
	RoomID       string      `json:"room_id"`
	SenderID     string      `json:"sender_id"`
	SenderName   string      `json:"sender_name"`
	SenderAvatar *string     `json:"sender_avatar"`
	Kind         string      `json:"type"`
	Content      string      `json:"content"`
	Filename     *string     `json:"filename,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	EditedAt     *time.Time  `json:"edited_at,omitempty"`
	Reactions    ReactionMap `json:"reactions"`
}

type RoomView struct {
	ID           string            `json:"id"`
	Kind         string            `json:"type"`
	Name         *string           `json:"name"`
	Avatar       *string           `json:"avatar"`
	CreatedBy    string            `json:"created_by"`
	Participants []ParticipantView `json:"participants"`
}

type UserView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	RealName      *string    `json:"real_name"`
	BirthDate     *string    `json:"birth_date"`
	Gender        *string    `json:"gender"`
	Age           *int       `json:"age"`
	Avatar        *string    `json:"avatar"`
	AvatarGallery []string   `json:"avatars_gallery"`
	Bio           *string    `json:"bio"`
	IsOnline      bool       `json:"is_online"`
	LastActive    *time.Time `json:"last_active"`
}

type ProfileView struct {
	UserView
	BlockedUsers []string `json:"blocked_users"`
}

type SnapshotView struct {
	Rooms     []RoomView  `json:"rooms"`
	Users     []UserView  `json:"users"`
	MyProfile ProfileView `json:"my_profile"`
}

// calculateAge derives years from a YYYY-MM-DD birth date; nil when the
// date is absent or malformed.
func calculateAge(birthDate *string) *int {
	if birthDate == nil || *birthDate == "" {
		return nil
	}
	born, err := time.Parse("2006-01-02", *birthDate)
	if err != nil {
		return nil
	}
	today := time.Now()
	age := today.Year() - born.Year()
	if today.Month() < born.Month() || (today.Month() == born.Month() && today.Day() < born.Day()) {
		age--
	}
	return &age
}

func userView(u *domain.User, online bool) UserView {
	return UserView{
		ID:            u.ID,
		Name:          u.Name,
		RealName:      u.RealName,
		BirthDate:     u.BirthDate,
		Gender:        u.Gender,
		Age:           calculateAge(u.BirthDate),
		Avatar:        u.Avatar,
		AvatarGallery: u.AvatarGallery,
		Bio:           u.Bio,
		IsOnline:      online,
		LastActive:    u.LastActive,
	}
}

// redactedUserView strips everything but id and display name; used when the
// viewer and the subject are in a block relation.
func redactedUserView(u *domain.User) UserView {
	empty := ""
	return UserView{
		ID:            u.ID,
		Name:          u.Name,
		RealName:      &empty,
		BirthDate:     &empty,
		Bio:           &empty,
		AvatarGallery: []string{},
	}
}
