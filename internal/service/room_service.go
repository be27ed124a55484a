package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chatd/internal/domain"
)

// RoomService manages room membership and the per-connection room
// subscriptions derived from it.
type RoomService struct {
	rooms        domain.RoomRepository
	participants domain.ParticipantRepository
	users        domain.UserRepository
	audit        domain.AuditLogRepository
	blocks       *BlockPolicy
	disp         Dispatcher
}

func NewRoomService(
	rooms domain.RoomRepository,
	participants domain.ParticipantRepository,
	users domain.UserRepository,
	audit domain.AuditLogRepository,
	blocks *BlockPolicy,
	disp Dispatcher,
) *RoomService {
	return &RoomService{
		rooms:        rooms,
		participants: participants,
		users:        users,
		audit:        audit,
		blocks:       blocks,
		disp:         disp,
	}
}

// StartPrivateChat returns the private room shared by the two users,
// creating it when absent. At most one private room exists per unordered
// pair; calling this twice with swapped arguments yields the same room. A
// room previously hidden by the requester is unhidden for the requester
// only.
func (s *RoomService) StartPrivateChat(ctx context.Context, userID, targetID string) (*domain.Room, error) {
	if userID == targetID {
		return nil, domain.ErrInvalidInput
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}

	room, err := s.rooms.FindPrivateBetween(ctx, userID, targetID)
	switch {
	case err == nil:
		hidden, err := s.rooms.IsHiddenFor(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}
		if hidden {
			if err := s.rooms.UnhideForUser(ctx, room.ID, userID); err != nil {
				return nil, err
			}
		}
	case errors.Is(err, domain.ErrNotFound):
		key := domain.PrivatePairKey(userID, targetID)
		room = &domain.Room{
			ID:        uuid.NewString(),
			Kind:      domain.RoomPrivate,
			PairKey:   &key,
			CreatedBy: userID,
		}
		participants := []*domain.Participant{
			{RoomID: room.ID, UserID: userID, Role: domain.RoleMember},
			{RoomID: room.ID, UserID: targetID, Role: domain.RoleMember},
		}
		err := s.rooms.Create(ctx, room, participants)
		if errors.Is(err, domain.ErrConflict) {
			// Another connection created the pair's room between the lookup
			// and the insert; the existing room is the answer.
			room, err = s.rooms.FindPrivateBetween(ctx, userID, targetID)
		}
		if err != nil {
			return nil, fmt.Errorf("create private room: %w", err)
		}
	default:
		return nil, err
	}

	s.disp.SubscribeUser(userID, room.ID)
	s.disp.DeliverToUser(targetID, domain.Event{
		Name: domain.EventForceJoinRoom,
		Data: map[string]any{"room_id": room.ID},
	})
	return room, nil
}

// CreateGroup creates a group room with the creator as owner and the given
// members, forces every invited member's active sessions to subscribe, and
// announces the new group.
func (s *RoomService) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (*domain.Room, error) {
	if name == "" {
		return nil, domain.ErrInvalidInput
	}

	room := &domain.Room{
		ID:        uuid.NewString(),
		Kind:      domain.RoomGroup,
		Name:      &name,
		CreatedBy: creatorID,
	}

	participants := []*domain.Participant{
		{RoomID: room.ID, UserID: creatorID, Role: domain.RoleOwner},
	}
	seen := map[string]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, &domain.Participant{
			RoomID: room.ID, UserID: id, Role: domain.RoleMember,
		})
	}

	if err := s.rooms.Create(ctx, room, participants); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.appendAudit(ctx, room.ID, "create", "Group created")

	s.disp.SubscribeUser(creatorID, room.ID)
	for _, p := range participants[1:] {
		s.disp.DeliverToUser(p.UserID, domain.Event{
			Name: domain.EventForceJoinRoom,
			Data: map[string]any{"room_id": room.ID},
		})
	}
	s.disp.BroadcastAll(domain.Event{
		Name: domain.EventGroupCreated,
		Data: map[string]any{"id": room.ID},
	})
	return room, nil
}

// UpdateGroupSettings renames a group; owners and admins only.
func (s *RoomService) UpdateGroupSettings(ctx context.Context, userID, roomID, name string) error {
	requester, err := s.participants.Get(ctx, roomID, userID)
	if err != nil {
		return domain.ErrUnauthorized
	}
	if !CanManageRoom(requester.Role) {
		return domain.ErrUnauthorized
	}

	if err := s.rooms.UpdateName(ctx, roomID, name); err != nil {
		return err
	}
	s.appendAudit(ctx, roomID, "update", fmt.Sprintf("Name changed to %s", name))

	s.disp.BroadcastToRoom(roomID, domain.Event{
		Name: domain.EventGroupUpdate,
		Data: map[string]any{"room_id": roomID, "name": name},
	})
	return nil
}

// AddParticipant adds the target as a member; owners and admins only. A
// duplicate add is treated as already achieved and produces no events.
func (s *RoomService) AddParticipant(ctx context.Context, userID, roomID, targetID string) error {
	requester, err := s.participants.Get(ctx, roomID, userID)
	if err != nil {
		return domain.ErrUnauthorized
	}
	if !CanManageRoom(requester.Role) {
		return domain.ErrUnauthorized
	}

	err = s.participants.Add(ctx, &domain.Participant{
		RoomID: roomID, UserID: targetID, Role: domain.RoleMember,
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}

	requesterName := s.displayName(ctx, userID)
	targetName := s.displayName(ctx, targetID)
	s.appendAudit(ctx, roomID, "add", fmt.Sprintf("%s added %s", requesterName, targetName))

	s.disp.DeliverToUser(targetID, domain.Event{
		Name: domain.EventForceJoinRoom,
		Data: map[string]any{"room_id": roomID},
	})
	return s.broadcastParticipants(ctx, roomID)
}

// RemoveParticipant removes the target, forcing its sessions out of the
// room. Owners may remove admins and members; admins may remove members;
// the owner cannot be removed.
func (s *RoomService) RemoveParticipant(ctx context.Context, userID, roomID, targetID string) error {
	requester, err := s.participants.Get(ctx, roomID, userID)
	if err != nil {
		return domain.ErrUnauthorized
	}
	target, err := s.participants.Get(ctx, roomID, targetID)
	if err != nil {
		return domain.ErrNotFound
	}
	if !CanRemove(requester.Role, target.Role) {
		return domain.ErrUnauthorized
	}

	if err := s.participants.Remove(ctx, roomID, targetID); err != nil {
		return err
	}

	requesterName := s.displayName(ctx, userID)
	targetName := s.displayName(ctx, targetID)
	s.appendAudit(ctx, roomID, "remove", fmt.Sprintf("%s removed %s", requesterName, targetName))

	s.disp.UnsubscribeUser(targetID, roomID)
	s.disp.DeliverToUser(targetID, domain.Event{
		Name: domain.EventForceLeaveRoom,
		Data: map[string]any{"room_id": roomID},
	})
	return s.broadcastParticipants(ctx, roomID)
}

// PromoteAdmin raises the target to admin; owner only.
func (s *RoomService) PromoteAdmin(ctx context.Context, userID, roomID, targetID string) error {
	return s.changeRole(ctx, userID, roomID, targetID, domain.RoleAdmin, "promote", "%s promoted to admin")
}

// DemoteAdmin lowers the target back to member; owner only.
func (s *RoomService) DemoteAdmin(ctx context.Context, userID, roomID, targetID string) error {
	return s.changeRole(ctx, userID, roomID, targetID, domain.RoleMember, "demote", "%s demoted to member")
}

func (s *RoomService) changeRole(ctx context.Context, userID, roomID, targetID, role, action, detailsFormat string) error {
	requester, err := s.participants.Get(ctx, roomID, userID)
	if err != nil {
		return domain.ErrUnauthorized
	}
	if !CanChangeRole(requester.Role) {
		return domain.ErrUnauthorized
	}

	if err := s.participants.UpdateRole(ctx, roomID, targetID, role); err != nil {
		return err
	}
	s.appendAudit(ctx, roomID, action, fmt.Sprintf(detailsFormat, s.displayName(ctx, targetID)))
	return s.broadcastParticipants(ctx, roomID)
}

// LeaveGroup removes the requester from the room. An owner cannot leave
// while other participants remain.
func (s *RoomService) LeaveGroup(ctx context.Context, userID, roomID string) error {
	requester, err := s.participants.Get(ctx, roomID, userID)
	if err != nil {
		return domain.ErrNotFound
	}
	if requester.Role == domain.RoleOwner {
		count, err := s.participants.CountForRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if count > 1 {
			return domain.ErrForbidden
		}
	}

	if err := s.participants.Remove(ctx, roomID, userID); err != nil {
		return err
	}
	s.appendAudit(ctx, roomID, "leave", fmt.Sprintf("%s left the group", s.displayName(ctx, userID)))

	s.disp.UnsubscribeUser(userID, roomID)
	s.disp.DeliverToUser(userID, domain.Event{
		Name: domain.EventForceLeaveRoom,
		Data: map[string]any{"room_id": roomID},
	})
	return s.broadcastParticipants(ctx, roomID)
}

// DeleteRoom either removes the room for everyone (mutual; owner only for
// groups, cascading all messages, reactions, participants, and logs) or
// hides it for the requester alone.
func (s *RoomService) DeleteRoom(ctx context.Context, userID, roomID string, mutual bool) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}

	if !mutual {
		return s.rooms.HideForUser(ctx, roomID, userID)
	}

	if room.Kind == domain.RoomGroup {
		requester, err := s.participants.Get(ctx, roomID, userID)
		if err != nil || requester.Role != domain.RoleOwner {
			return domain.ErrUnauthorized
		}
	}

	if err := s.rooms.DeleteCascade(ctx, roomID); err != nil {
		return err
	}

	s.disp.BroadcastToRoom(roomID, domain.Event{
		Name: domain.EventForceLeaveRoom,
		Data: map[string]any{"room_id": roomID},
	})
	s.disp.DropRoom(roomID)
	return nil
}

// IsParticipant reports whether the user belongs to the room.
func (s *RoomService) IsParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	_, err := s.participants.Get(ctx, roomID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GroupLogs returns the room's audit trail; participants only.
func (s *RoomService) GroupLogs(ctx context.Context, userID, roomID string) ([]*domain.AuditEntry, error) {
	if _, err := s.participants.Get(ctx, roomID, userID); err != nil {
		return nil, domain.ErrUnauthorized
	}
	return s.audit.ListForRoom(ctx, roomID)
}

// GroupDetails builds the creator and participant list view for a group,
// redacting avatars of users in a block relation with the viewer.
func (s *RoomService) GroupDetails(ctx context.Context, viewerID, roomID string) (*RoomView, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	invisible, err := s.blocks.blocks.ListRelated(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	views, err := s.participantViews(ctx, roomID, invisible)
	if err != nil {
		return nil, err
	}
	return &RoomView{
		ID:           room.ID,
		Kind:         room.Kind,
		Name:         room.Name,
		Avatar:       room.Avatar,
		CreatedBy:    room.CreatedBy,
		Participants: views,
	}, nil
}

// Snapshot assembles the full data_update payload for one user: their
// visible rooms, every other user (block-redacted where needed), and their
// own profile.
func (s *RoomService) Snapshot(ctx context.Context, userID string) (*SnapshotView, error) {
	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	invisible, err := s.blocks.blocks.ListRelated(ctx, userID)
	if err != nil {
		return nil, err
	}
	blockedByMe, err := s.blocks.blocks.ListBlockedBy(ctx, userID)
	if err != nil {
		return nil, err
	}

	rooms, err := s.rooms.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	roomViews := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		hidden, err := s.rooms.IsHiddenFor(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}
		if hidden {
			continue
		}

		view := RoomView{
			ID:        room.ID,
			Kind:      room.Kind,
			Name:      room.Name,
			Avatar:    room.Avatar,
			CreatedBy: room.CreatedBy,
		}
		view.Participants, err = s.participantViews(ctx, room.ID, invisible)
		if err != nil {
			return nil, err
		}

		// A private room is displayed as its other participant.
		if room.Kind == domain.RoomPrivate {
			for _, p := range view.Participants {
				if p.ID == userID {
					continue
				}
				name := p.Name
				view.Name = &name
				view.Avatar = p.Avatar
				break
			}
		}
		roomViews = append(roomViews, view)
	}

	allUsers, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	userViews := make([]UserView, 0, len(allUsers))
	for _, u := range allUsers {
		if u.ID == userID {
			continue
		}
		if _, blocked := invisible[u.ID]; blocked {
			userViews = append(userViews, redactedUserView(u))
			continue
		}
		userViews = append(userViews, userView(u, s.disp.IsOnline(u.ID)))
	}

	blocked := blockedByMe
	if blocked == nil {
		blocked = []string{}
	}
	return &SnapshotView{
		Rooms: roomViews,
		Users: userViews,
		MyProfile: ProfileView{
			UserView:     userView(me, true),
			BlockedUsers: blocked,
		},
	}, nil
}

func (s *RoomService) participantViews(ctx context.Context, roomID string, invisible map[string]struct{}) ([]ParticipantView, error) {
	participants, err := s.participants.ListForRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	views := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		u, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		avatar := u.Avatar
		if invisible != nil {
			if _, blocked := invisible[p.UserID]; blocked {
				avatar = nil
			}
		}
		views = append(views, ParticipantView{
			ID:     u.ID,
			Name:   u.Name,
			Avatar: avatar,
			Role:   p.Role,
		})
	}
	return views, nil
}

// broadcastParticipants pushes the refreshed participant list to the room
// after every successful membership mutation.
func (s *RoomService) broadcastParticipants(ctx context.Context, roomID string) error {
	views, err := s.participantViews(ctx, roomID, nil)
	if err != nil {
		return err
	}
	s.disp.BroadcastToRoom(roomID, domain.Event{
		Name: domain.EventGroupUpdate,
		Data: map[string]any{"room_id": roomID, "participants": views},
	})
	return nil
}

func (s *RoomService) displayName(ctx context.Context, userID string) string {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "Unknown"
	}
	return u.Name
}

func (s *RoomService) appendAudit(ctx context.Context, roomID, action, details string) {
	// Audit writes are best-effort relative to the mutation they describe.
	_ = s.audit.Append(ctx, &domain.AuditEntry{RoomID: roomID, Action: action, Details: details})
}
