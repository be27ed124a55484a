package memory

import (
	"context"

	"chatd/internal/domain"
)

// ── users ───────────────────────────────────────────────────────────────

type userRepo struct{ s *Store }

var _ domain.UserRepository = (*userRepo)(nil)

func (r *userRepo) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Name == u.Name {
			return domain.ErrConflict
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}
	r.s.users[u.ID] = copyUser(u)
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *userRepo) GetByName(_ context.Context, name string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Name == name {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *userRepo) List(_ context.Context) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res := make([]*domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		res = append(res, copyUser(u))
	}
	return res, nil
}

func (r *userRepo) UpdateProfile(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[u.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.RealName = u.RealName
	existing.BirthDate = u.BirthDate
	existing.Gender = u.Gender
	existing.Bio = u.Bio
	return nil
}

func (r *userRepo) UpdateAvatar(_ context.Context, id string, avatar *string, gallery []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Avatar = avatar
	existing.AvatarGallery = append([]string(nil), gallery...)
	return nil
}

func (r *userRepo) TouchLastActive(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	ts := now()
	existing.LastActive = &ts
	return nil
}

// ── rooms ───────────────────────────────────────────────────────────────

type roomRepo struct{ s *Store }

var _ domain.RoomRepository = (*roomRepo)(nil)

func (r *roomRepo) Create(_ context.Context, room *domain.Room, participants []*domain.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[room.ID]; ok {
		return domain.ErrConflict
	}
	if room.PairKey != nil {
		for _, existing := range r.s.rooms {
			if existing.PairKey != nil && *existing.PairKey == *room.PairKey {
				return domain.ErrConflict
			}
		}
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now()
	}
	r.s.rooms[room.ID] = copyRoom(room)
	members := make(map[string]*domain.Participant, len(participants))
	for _, p := range participants {
		cp := *p
		if cp.JoinedAt.IsZero() {
			cp.JoinedAt = now()
		}
		members[p.UserID] = &cp
	}
	r.s.participants[room.ID] = members
	return nil
}

func (r *roomRepo) GetByID(_ context.Context, id string) (*domain.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRoom(room), nil
}

func (r *roomRepo) ListForUser(_ context.Context, userID string) ([]*domain.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var res []*domain.Room
	for roomID, members := range r.s.participants {
		if _, ok := members[userID]; !ok {
			continue
		}
		if room, ok := r.s.rooms[roomID]; ok {
			res = append(res, copyRoom(room))
		}
	}
	return res, nil
}

func (r *roomRepo) FindPrivateBetween(_ context.Context, userA, userB string) (*domain.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	key := domain.PrivatePairKey(userA, userB)
	for _, room := range r.s.rooms {
		if room.PairKey != nil && *room.PairKey == key {
			return copyRoom(room), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *roomRepo) UpdateName(_ context.Context, id string, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return domain.ErrNotFound
	}
	room.Name = &name
	return nil
}

func (r *roomRepo) HideForUser(_ context.Context, roomID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.roomHidden[roomID] == nil {
		r.s.roomHidden[roomID] = make(map[string]struct{})
	}
	r.s.roomHidden[roomID][userID] = struct{}{}
	return nil
}

func (r *roomRepo) UnhideForUser(_ context.Context, roomID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.roomHidden[roomID], userID)
	return nil
}

func (r *roomRepo) ClearHidden(_ context.Context, roomID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.roomHidden, roomID)
	return nil
}

func (r *roomRepo) IsHiddenFor(_ context.Context, roomID, userID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.roomHidden[roomID][userID]
	return ok, nil
}

func (r *roomRepo) HasHidden(_ context.Context, roomID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.roomHidden[roomID]) > 0, nil
}

func (r *roomRepo) DeleteCascade(_ context.Context, roomID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keep []int64
	for _, id := range r.s.msgOrder {
		m, ok := r.s.messages[id]
		if ok && m.RoomID == roomID {
			delete(r.s.messages, id)
			delete(r.s.reactions, id)
			delete(r.s.msgHidden, id)
			continue
		}
		keep = append(keep, id)
	}
	r.s.msgOrder = keep
	delete(r.s.participants, roomID)
	delete(r.s.logs, roomID)
	delete(r.s.roomHidden, roomID)
	delete(r.s.rooms, roomID)
	return nil
}

// ── participants ────────────────────────────────────────────────────────

type participantRepo struct{ s *Store }

var _ domain.ParticipantRepository = (*participantRepo)(nil)

func (r *participantRepo) Add(_ context.Context, p *domain.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	members := r.s.participants[p.RoomID]
	if members == nil {
		members = make(map[string]*domain.Participant)
		r.s.participants[p.RoomID] = members
	}
	if _, ok := members[p.UserID]; ok {
		return domain.ErrConflict
	}
	cp := *p
	if cp.JoinedAt.IsZero() {
		cp.JoinedAt = now()
	}
	members[p.UserID] = &cp
	return nil
}

func (r *participantRepo) Remove(_ context.Context, roomID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.participants[roomID], userID)
	return nil
}

func (r *participantRepo) UpdateRole(_ context.Context, roomID, userID, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participants[roomID][userID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Role = role
	return nil
}

func (r *participantRepo) Get(_ context.Context, roomID, userID string) (*domain.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.participants[roomID][userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *participantRepo) ListForRoom(_ context.Context, roomID string) ([]*domain.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	members := r.s.participants[roomID]
	res := make([]*domain.Participant, 0, len(members))
	for _, p := range members {
		cp := *p
		res = append(res, &cp)
	}
	return res, nil
}

func (r *participantRepo) CountForRoom(_ context.Context, roomID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.participants[roomID]), nil
}

// ── messages ────────────────────────────────────────────────────────────

type messageRepo struct{ s *Store }

var _ domain.MessageRepository = (*messageRepo)(nil)

func (r *messageRepo) Create(_ context.Context, m *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.msgSeq++
	m.ID = r.s.msgSeq
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	r.s.messages[m.ID] = copyMessage(m)
	r.s.msgOrder = append(r.s.msgOrder, m.ID)
	return nil
}

func (r *messageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyMessage(m), nil
}

func (r *messageRepo) UpdateContent(_ context.Context, id int64, senderID, content string) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.SenderID != senderID {
		return nil, domain.ErrNotFound
	}
	m.Content = content
	ts := now()
	m.EditedAt = &ts
	return copyMessage(m), nil
}

func (r *messageRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.messages, id)
	delete(r.s.reactions, id)
	delete(r.s.msgHidden, id)
	for i, mid := range r.s.msgOrder {
		if mid == id {
			r.s.msgOrder = append(r.s.msgOrder[:i], r.s.msgOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (r *messageRepo) ListForRoom(_ context.Context, roomID string) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var res []*domain.Message
	for _, id := range r.s.msgOrder {
		if m, ok := r.s.messages[id]; ok && m.RoomID == roomID {
			res = append(res, copyMessage(m))
		}
	}
	return res, nil
}

func (r *messageRepo) HideForUser(_ context.Context, messageID int64, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[messageID]; !ok {
		return domain.ErrNotFound
	}
	if r.s.msgHidden[messageID] == nil {
		r.s.msgHidden[messageID] = make(map[string]struct{})
	}
	r.s.msgHidden[messageID][userID] = struct{}{}
	return nil
}

func (r *messageRepo) IsHiddenFor(_ context.Context, messageID int64, userID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.msgHidden[messageID][userID]
	return ok, nil
}

// ── reactions ───────────────────────────────────────────────────────────

type reactionRepo struct{ s *Store }

var _ domain.ReactionRepository = (*reactionRepo)(nil)

func (r *reactionRepo) Upsert(_ context.Context, reaction *domain.Reaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.reactions[reaction.MessageID] == nil {
		r.s.reactions[reaction.MessageID] = make(map[string]*domain.Reaction)
	}
	cp := *reaction
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now()
	}
	r.s.reactions[reaction.MessageID][reaction.UserID] = &cp
	return nil
}

func (r *reactionRepo) Delete(_ context.Context, messageID int64, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.reactions[messageID], userID)
	return nil
}

func (r *reactionRepo) ListForMessage(_ context.Context, messageID int64) ([]*domain.Reaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var res []*domain.Reaction
	for _, reaction := range r.s.reactions[messageID] {
		cp := *reaction
		res = append(res, &cp)
	}
	return res, nil
}

// ── blocks ──────────────────────────────────────────────────────────────

type blockRepo struct{ s *Store }

var _ domain.BlockRepository = (*blockRepo)(nil)

func (r *blockRepo) Add(_ context.Context, blockerID, blockedID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.blocks[blockerID] == nil {
		r.s.blocks[blockerID] = make(map[string]struct{})
	}
	r.s.blocks[blockerID][blockedID] = struct{}{}
	return nil
}

func (r *blockRepo) Remove(_ context.Context, blockerID, blockedID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.blocks[blockerID], blockedID)
	return nil
}

func (r *blockRepo) Exists(_ context.Context, blockerID, blockedID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.blocks[blockerID][blockedID]
	return ok, nil
}

func (r *blockRepo) ListRelated(_ context.Context, userID string) (map[string]struct{}, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	related := make(map[string]struct{})
	for blocked := range r.s.blocks[userID] {
		related[blocked] = struct{}{}
	}
	for blocker, blockedSet := range r.s.blocks {
		if _, ok := blockedSet[userID]; ok {
			related[blocker] = struct{}{}
		}
	}
	return related, nil
}

func (r *blockRepo) ListBlockedBy(_ context.Context, blockerID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var res []string
	for blocked := range r.s.blocks[blockerID] {
		res = append(res, blocked)
	}
	return res, nil
}

// ── audit log ───────────────────────────────────────────────────────────

type auditRepo struct{ s *Store }

var _ domain.AuditLogRepository = (*auditRepo)(nil)

func (r *auditRepo) Append(_ context.Context, e *domain.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.logSeq++
	e.ID = r.s.logSeq
	if e.Timestamp.IsZero() {
		e.Timestamp = now()
	}
	cp := *e
	r.s.logs[e.RoomID] = append(r.s.logs[e.RoomID], &cp)
	return nil
}

func (r *auditRepo) ListForRoom(_ context.Context, roomID string) ([]*domain.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entries := r.s.logs[roomID]
	res := make([]*domain.AuditEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		res = append(res, &cp)
	}
	return res, nil
}
