// Package memory implements the persistence interfaces over plain maps.
// It backs service-level tests and the DB_DRIVER=memory mode.
package memory

import (
	"sync"
	"time"

	"chatd/internal/domain"
)

type Store struct {
	mu sync.RWMutex

	users        map[string]*domain.User
	rooms        map[string]*domain.Room
	roomHidden   map[string]map[string]struct{}
	participants map[string]map[string]*domain.Participant
	messages     map[int64]*domain.Message
	msgOrder     []int64
	msgSeq       int64
	msgHidden    map[int64]map[string]struct{}
	reactions    map[int64]map[string]*domain.Reaction
	blocks       map[string]map[string]struct{}
	logs         map[string][]*domain.AuditEntry
	logSeq       int64
}

func New() *Store {
	return &Store{
		users:        make(map[string]*domain.User),
		rooms:        make(map[string]*domain.Room),
		roomHidden:   make(map[string]map[string]struct{}),
		participants: make(map[string]map[string]*domain.Participant),
		messages:     make(map[int64]*domain.Message),
		msgHidden:    make(map[int64]map[string]struct{}),
		reactions:    make(map[int64]map[string]*domain.Reaction),
		blocks:       make(map[string]map[string]struct{}),
		logs:         make(map[string][]*domain.AuditEntry),
	}
}

func (s *Store) Users() domain.UserRepository               { return &userRepo{s} }
func (s *Store) Rooms() domain.RoomRepository               { return &roomRepo{s} }
func (s *Store) Participants() domain.ParticipantRepository { return &participantRepo{s} }
func (s *Store) Messages() domain.MessageRepository         { return &messageRepo{s} }
func (s *Store) Reactions() domain.ReactionRepository       { return &reactionRepo{s} }
func (s *Store) Blocks() domain.BlockRepository             { return &blockRepo{s} }
func (s *Store) AuditLog() domain.AuditLogRepository        { return &auditRepo{s} }

func now() time.Time { return time.Now().UTC() }

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.AvatarGallery = append([]string(nil), u.AvatarGallery...)
	return &cp
}

func copyRoom(r *domain.Room) *domain.Room {
	cp := *r
	if r.PairKey != nil {
		key := *r.PairKey
		cp.PairKey = &key
	}
	return &cp
}

func copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	return &cp
}
