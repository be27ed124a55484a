package service

import (
	"context"
	"errors"
	"fmt"

	"chatd/internal/domain"
)

const maxMessageRunes = 5000

// MessageService owns the message lifecycle: creation, per-user and
// room-wide deletion, edits, and reaction aggregation. Content is encrypted
// at rest and decrypted into the views that leave the service.
type MessageService struct {
	rooms        domain.RoomRepository
	participants domain.ParticipantRepository
	messages     domain.MessageRepository
	reactions    domain.ReactionRepository
	users        domain.UserRepository
	audit        domain.AuditLogRepository
	blocks       *BlockPolicy
	encryptor    ContentEncryptor
	disp         Dispatcher
}

// ContentEncryptor seals message content for storage.
type ContentEncryptor interface {
	Encrypt(plain string) (string, error)
	Decrypt(enc string) (string, error)
}

func NewMessageService(
	rooms domain.RoomRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	reactions domain.ReactionRepository,
	users domain.UserRepository,
	audit domain.AuditLogRepository,
	blocks *BlockPolicy,
	encryptor ContentEncryptor,
	disp Dispatcher,
) *MessageService {
	return &MessageService{
		rooms:        rooms,
		participants: participants,
		messages:     messages,
		reactions:    reactions,
		users:        users,
		audit:        audit,
		blocks:       blocks,
		encryptor:    encryptor,
		disp:         disp,
	}
}

type SendInput struct {
	RoomID   string
	Content  string
	Kind     string
	Filename *string
}

// Send persists a new message and broadcasts it to every room subscriber,
// sender included, with an empty reaction map. A block relation in either
// direction between the sender and any co-participant rejects the send with
// ErrBlocked before anything is written.
func (s *MessageService) Send(ctx context.Context, senderID string, in SendInput) (*MessageView, error) {
	if in.Content == "" {
		return nil, domain.ErrInvalidInput
	}
	if len([]rune(in.Content)) > maxMessageRunes && in.Kind == domain.MessageText {
		return nil, domain.ErrInvalidInput
	}
	kind := in.Kind
	if kind == "" {
		kind = domain.MessageText
	}

	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if _, err := s.participants.Get(ctx, in.RoomID, senderID); err != nil {
		return nil, domain.ErrForbidden
	}

	others, err := s.participants.ListForRoom(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	for _, p := range others {
		if p.UserID == senderID {
			continue
		}
		blocked, err := s.blocks.IsBlockedEither(ctx, senderID, p.UserID)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, domain.ErrBlocked
		}
	}

	encrypted, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}

	msg := &domain.Message{
		RoomID:   in.RoomID,
		SenderID: senderID,
		Kind:     kind,
		Content:  encrypted,
		Filename: in.Filename,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	// New activity surfaces the room again for anyone who had hidden it.
	hasHidden, err := s.rooms.HasHidden(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if hasHidden {
		if err := s.rooms.ClearHidden(ctx, in.RoomID); err != nil {
			return nil, err
		}
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	if room.Kind == domain.RoomGroup {
		details := "sent a message"
		switch kind {
		case domain.MessageVoice:
			details = "sent a voice message"
		case domain.MessageVideo:
			details = "sent a video message"
		case domain.MessageFile:
			details = "sent a file"
		}
		_ = s.audit.Append(ctx, &domain.AuditEntry{
			RoomID:  in.RoomID,
			Action:  "message",
			Details: fmt.Sprintf("%s: %s", sender.Name, details),
		})
	}

	view := &MessageView{
		ID:           msg.ID,
		RoomID:       msg.RoomID,
		SenderID:     senderID,
		SenderName:   sender.Name,
		SenderAvatar: sender.Avatar,
		Kind:         kind,
		Content:      in.Content,
		Filename:     in.Filename,
		CreatedAt:    msg.CreatedAt,
		Reactions:    ReactionMap{},
	}
	s.disp.BroadcastToRoom(in.RoomID, domain.Event{Name: domain.EventNewMessage, Data: view})
	return view, nil
}

// Edit updates the message content only when the row matches both the
// message id and the sender; anything else is a silent no-op with no event.
func (s *MessageService) Edit(ctx context.Context, senderID string, messageID int64, newContent string) error {
	if newContent == "" || len([]rune(newContent)) > maxMessageRunes {
		return domain.ErrInvalidInput
	}
	encrypted, err := s.encryptor.Encrypt(newContent)
	if err != nil {
		return fmt.Errorf("encrypt content: %w", err)
	}

	msg, err := s.messages.UpdateContent(ctx, messageID, senderID, encrypted)
	if err != nil {
		return err
	}

	s.disp.BroadcastToRoom(msg.RoomID, domain.Event{
		Name: domain.EventMessageEdited,
		Data: map[string]any{
			"id":        msg.ID,
			"room_id":   msg.RoomID,
			"content":   newContent,
			"edited_at": msg.EditedAt,
		},
	})
	return nil
}

// DeleteResult tells the caller where the deletion happened and whether the
// room saw a broadcast (for_everyone) or only the invoker must be notified
// (for_me).
type DeleteResult struct {
	MessageID   int64
	RoomID      string
	ForEveryone bool
}

// Delete removes the message for everyone (author only, cascading its
// reactions) or hides it for the invoking user alone.
func (s *MessageService) Delete(ctx context.Context, userID string, messageID int64, forEveryone bool) (*DeleteResult, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if forEveryone {
		if msg.SenderID != userID {
			return nil, domain.ErrForbidden
		}
		if err := s.messages.Delete(ctx, messageID); err != nil {
			return nil, err
		}
		s.disp.BroadcastToRoom(msg.RoomID, domain.Event{
			Name: domain.EventMessageDeleted,
			Data: map[string]any{"id": messageID, "room_id": msg.RoomID},
		})
		return &DeleteResult{MessageID: messageID, RoomID: msg.RoomID, ForEveryone: true}, nil
	}

	if err := s.messages.HideForUser(ctx, messageID, userID); err != nil {
		return nil, err
	}
	return &DeleteResult{MessageID: messageID, RoomID: msg.RoomID}, nil
}

// React upserts the user's reaction on the message: a second reaction from
// the same user replaces the first. The recomputed reaction map is
// broadcast to the room and the author gets a personal notification unless
// they reacted to their own message. An author who has blocked the reactor
// rejects the reaction.
func (s *MessageService) React(ctx context.Context, userID string, messageID int64, symbol string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	blocked, err := s.blocks.HasBlocked(ctx, msg.SenderID, userID)
	if err != nil {
		return err
	}
	if blocked {
		return domain.ErrBlocked
	}

	if err := s.reactions.Upsert(ctx, &domain.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Symbol:    symbol,
	}); err != nil {
		return err
	}

	if err := s.broadcastReactions(ctx, msg); err != nil {
		return err
	}

	if msg.SenderID != userID {
		reactor, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		s.disp.DeliverToUser(msg.SenderID, domain.Event{
			Name: domain.EventNotification,
			Data: map[string]any{
				"title": reactor.Name,
				"body":  fmt.Sprintf("Reacted %s to your message", symbol),
			},
		})
	}
	return nil
}

// RemoveReaction deletes the user's reaction if present and broadcasts the
// recomputed map either way.
func (s *MessageService) RemoveReaction(ctx context.Context, userID string, messageID int64) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	if err := s.reactions.Delete(ctx, messageID, userID); err != nil {
		return err
	}
	if err := s.broadcastReactions(ctx, msg); err != nil {
		return err
	}

	if msg.SenderID != userID {
		remover, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		s.disp.DeliverToUser(msg.SenderID, domain.Event{
			Name: domain.EventNotification,
			Data: map[string]any{
				"title": remover.Name,
				"body":  "Removed a reaction from your message",
			},
		})
	}
	return nil
}

// History returns the room's messages visible to the requester in ascending
// creation order, each annotated with its reaction map and sender identity.
// Senders in a block relation with the requester keep their name but lose
// their avatar.
func (s *MessageService) History(ctx context.Context, userID, roomID string) ([]*MessageView, error) {
	msgs, err := s.messages.ListForRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	invisible, err := s.blocks.blocks.ListRelated(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]*MessageView, 0, len(msgs))
	for _, msg := range msgs {
		hidden, err := s.messages.IsHiddenFor(ctx, msg.ID, userID)
		if err != nil {
			return nil, err
		}
		if hidden {
			continue
		}

		view, err := s.toView(ctx, msg)
		if err != nil {
			return nil, err
		}
		if _, blocked := invisible[msg.SenderID]; blocked {
			view.SenderAvatar = nil
		}
		res = append(res, view)
	}
	return res, nil
}

func (s *MessageService) toView(ctx context.Context, msg *domain.Message) (*MessageView, error) {
	content, err := s.encryptor.Decrypt(msg.Content)
	if err != nil {
		// Legacy rows may predate encryption; fall back to the raw payload.
		content = msg.Content
	}

	view := &MessageView{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Kind:      msg.Kind,
		Content:   content,
		Filename:  msg.Filename,
		CreatedAt: msg.CreatedAt,
		EditedAt:  msg.EditedAt,
	}
	if sender, err := s.users.GetByID(ctx, msg.SenderID); err == nil {
		view.SenderName = sender.Name
		view.SenderAvatar = sender.Avatar
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	view.Reactions, err = s.reactionMap(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *MessageService) reactionMap(ctx context.Context, messageID int64) (ReactionMap, error) {
	reactions, err := s.reactions.ListForMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	m := make(ReactionMap, len(reactions))
	for _, r := range reactions {
		entry := ReactionView{Symbol: r.Symbol}
		if u, err := s.users.GetByID(ctx, r.UserID); err == nil {
			entry.Name = u.Name
			entry.Avatar = u.Avatar
		}
		m[r.UserID] = entry
	}
	return m, nil
}

func (s *MessageService) broadcastReactions(ctx context.Context, msg *domain.Message) error {
	m, err := s.reactionMap(ctx, msg.ID)
	if err != nil {
		return err
	}
	s.disp.BroadcastToRoom(msg.RoomID, domain.Event{
		Name: domain.EventReactionAdded,
		Data: map[string]any{"id": msg.ID, "room_id": msg.RoomID, "reactions": m},
	})
	return nil
}
