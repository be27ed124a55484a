package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/internal/domain"
	"chatd/internal/service"
	"chatd/internal/store/memory"
)

// fakeDispatcher records every event the services emit so tests can assert
// on delivery without a live hub.
type fakeDispatcher struct {
	mu         sync.Mutex
	roomEvents map[string][]domain.Event
	userEvents map[string][]domain.Event
	broadcasts []domain.Event
	subs       map[string]map[string]bool
	online     map[string]bool
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		roomEvents: make(map[string][]domain.Event),
		userEvents: make(map[string][]domain.Event),
		subs:       make(map[string]map[string]bool),
		online:     make(map[string]bool),
	}
}

func (d *fakeDispatcher) BroadcastToRoom(roomID string, e domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roomEvents[roomID] = append(d.roomEvents[roomID], e)
}

func (d *fakeDispatcher) DeliverToUser(userID string, e domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userEvents[userID] = append(d.userEvents[userID], e)
}

func (d *fakeDispatcher) BroadcastAll(e domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcasts = append(d.broadcasts, e)
}

func (d *fakeDispatcher) SubscribeUser(userID, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs[userID] == nil {
		d.subs[userID] = make(map[string]bool)
	}
	d.subs[userID][roomID] = true
}

func (d *fakeDispatcher) UnsubscribeUser(userID, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs[userID], roomID)
}

func (d *fakeDispatcher) DropRoom(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rooms := range d.subs {
		delete(rooms, roomID)
	}
}

func (d *fakeDispatcher) IsOnline(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online[userID]
}

func (d *fakeDispatcher) userEventNames(userID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.userEvents[userID]))
	for _, e := range d.userEvents[userID] {
		names = append(names, e.Name)
	}
	return names
}

func (d *fakeDispatcher) roomEventNames(roomID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.roomEvents[roomID]))
	for _, e := range d.roomEvents[roomID] {
		names = append(names, e.Name)
	}
	return names
}

func seedUser(t *testing.T, store *memory.Store, name string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.NewString(), Name: name, HashedPassword: "x"}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}

func newRoomService(store *memory.Store, disp *fakeDispatcher) *service.RoomService {
	return service.NewRoomService(
		store.Rooms(), store.Participants(), store.Users(), store.AuditLog(),
		service.NewBlockPolicy(store.Blocks()), disp,
	)
}

func TestStartPrivateChat(t *testing.T) {
	ctx := context.Background()

	t.Run("PairIsIdempotent", func(t *testing.T) {
		store := memory.New()
		disp := newFakeDispatcher()
		svc := newRoomService(store, disp)
		alice := seedUser(t, store, "alice")
		bob := seedUser(t, store, "bob")

		first, err := svc.StartPrivateChat(ctx, alice.ID, bob.ID)
		require.NoError(t, err)

		// Same pair with swapped arguments resolves to the same room.
		second, err := svc.StartPrivateChat(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		// The counterpart is pulled in rather than asked to join.
		assert.Contains(t, disp.userEventNames(bob.ID), domain.EventForceJoinRoom)
	})

	t.Run("UnhidesForRequesterOnly", func(t *testing.T) {
		store := memory.New()
		disp := newFakeDispatcher()
		svc := newRoomService(store, disp)
		alice := seedUser(t, store, "alice")
		bob := seedUser(t, store, "bob")

		room, err := svc.StartPrivateChat(ctx, alice.ID, bob.ID)
		require.NoError(t, err)

		require.NoError(t, store.Rooms().HideForUser(ctx, room.ID, alice.ID))
		require.NoError(t, store.Rooms().HideForUser(ctx, room.ID, bob.ID))

		_, err = svc.StartPrivateChat(ctx, alice.ID, bob.ID)
		require.NoError(t, err)

		hidden, err := store.Rooms().IsHiddenFor(ctx, room.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, hidden)

		hidden, err = store.Rooms().IsHiddenFor(ctx, room.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, hidden)
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		store := memory.New()
		svc := newRoomService(store, newFakeDispatcher())
		alice := seedUser(t, store, "alice")

		_, err := svc.StartPrivateChat(ctx, alice.ID, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SelfTargetRejected", func(t *testing.T) {
		store := memory.New()
		svc := newRoomService(store, newFakeDispatcher())
		alice := seedUser(t, store, "alice")
		bob := seedUser(t, store, "bob")

		// An existing room of alice's must not be mistaken for a self-chat.
		_, err := svc.StartPrivateChat(ctx, alice.ID, bob.ID)
		require.NoError(t, err)

		_, err = svc.StartPrivateChat(ctx, alice.ID, alice.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("LostCreateRaceResolvesExistingRoom", func(t *testing.T) {
		store := memory.New()
		disp := newFakeDispatcher()
		alice := seedUser(t, store, "alice")
		bob := seedUser(t, store, "bob")

		// The lookup misses once, so the service takes the create path even
		// though the competing call below has already inserted the room.
		rooms := &missingOnceRoomRepo{RoomRepository: store.Rooms(), misses: 1}
		svc := service.NewRoomService(
			rooms, store.Participants(), store.Users(), store.AuditLog(),
			service.NewBlockPolicy(store.Blocks()), disp,
		)

		winner, err := newRoomService(store, disp).StartPrivateChat(ctx, bob.ID, alice.ID)
		require.NoError(t, err)

		loser, err := svc.StartPrivateChat(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, winner.ID, loser.ID)

		all, err := store.Rooms().ListForUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("DuplicatePairKeyConflicts", func(t *testing.T) {
		store := memory.New()
		alice := seedUser(t, store, "alice")
		bob := seedUser(t, store, "bob")

		key := domain.PrivatePairKey(alice.ID, bob.ID)
		first := &domain.Room{ID: uuid.NewString(), Kind: domain.RoomPrivate, PairKey: &key, CreatedBy: alice.ID}
		require.NoError(t, store.Rooms().Create(ctx, first, nil))

		second := &domain.Room{ID: uuid.NewString(), Kind: domain.RoomPrivate, PairKey: &key, CreatedBy: bob.ID}
		assert.ErrorIs(t, store.Rooms().Create(ctx, second, nil), domain.ErrConflict)
	})
}

// missingOnceRoomRepo fails the private-pair lookup a fixed number of times
// before delegating, simulating a room inserted between lookup and create.
type missingOnceRoomRepo struct {
	domain.RoomRepository
	misses int
}

func (r *missingOnceRoomRepo) FindPrivateBetween(ctx context.Context, userA, userB string) (*domain.Room, error) {
	if r.misses > 0 {
		r.misses--
		return nil, domain.ErrNotFound
	}
	return r.RoomRepository.FindPrivateBetween(ctx, userA, userB)
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	disp := newFakeDispatcher()
	svc := newRoomService(store, disp)
	owner := seedUser(t, store, "owner")
	m1 := seedUser(t, store, "m1")
	m2 := seedUser(t, store, "m2")

	// Duplicate member ids and the creator's own id collapse.
	room, err := svc.CreateGroup(ctx, owner.ID, "devs", []string{m1.ID, m1.ID, m2.ID, owner.ID})
	require.NoError(t, err)

	parts, err := store.Participants().ListForRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, parts, 3)

	roles := map[string]string{}
	for _, p := range parts {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, domain.RoleOwner, roles[owner.ID])
	assert.Equal(t, domain.RoleMember, roles[m1.ID])
	assert.Equal(t, domain.RoleMember, roles[m2.ID])

	assert.Contains(t, disp.userEventNames(m1.ID), domain.EventForceJoinRoom)
	assert.Contains(t, disp.userEventNames(m2.ID), domain.EventForceJoinRoom)
	require.Len(t, disp.broadcasts, 1)
	assert.Equal(t, domain.EventGroupCreated, disp.broadcasts[0].Name)
}

func TestRemoveParticipant(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	disp := newFakeDispatcher()
	svc := newRoomService(store, disp)
	owner := seedUser(t, store, "owner")
	admin := seedUser(t, store, "admin")
	member := seedUser(t, store, "member")

	room, err := svc.CreateGroup(ctx, owner.ID, "devs", []string{admin.ID, member.ID})
	require.NoError(t, err)
	require.NoError(t, svc.PromoteAdmin(ctx, owner.ID, room.ID, admin.ID))

	t.Run("AdminCannotRemoveAdmin", func(t *testing.T) {
		other := seedUser(t, store, "other-admin")
		require.NoError(t, svc.AddParticipant(ctx, owner.ID, room.ID, other.ID))
		require.NoError(t, svc.PromoteAdmin(ctx, owner.ID, room.ID, other.ID))

		err := svc.RemoveParticipant(ctx, admin.ID, room.ID, other.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("NobodyRemovesOwner", func(t *testing.T) {
		err := svc.RemoveParticipant(ctx, admin.ID, room.ID, owner.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("AdminRemovesMember", func(t *testing.T) {
		require.NoError(t, svc.RemoveParticipant(ctx, admin.ID, room.ID, member.ID))

		_, err := store.Participants().Get(ctx, room.ID, member.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, disp.userEventNames(member.ID), domain.EventForceLeaveRoom)
	})
}

func TestLeaveGroup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	disp := newFakeDispatcher()
	svc := newRoomService(store, disp)
	owner := seedUser(t, store, "owner")
	member := seedUser(t, store, "member")

	room, err := svc.CreateGroup(ctx, owner.ID, "devs", []string{member.ID})
	require.NoError(t, err)

	t.Run("OwnerBlockedWhileOthersRemain", func(t *testing.T) {
		err := svc.LeaveGroup(ctx, owner.ID, room.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("MemberLeaves", func(t *testing.T) {
		require.NoError(t, svc.LeaveGroup(ctx, member.ID, room.ID))
		count, err := store.Participants().CountForRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("LastOwnerLeaves", func(t *testing.T) {
		require.NoError(t, svc.LeaveGroup(ctx, owner.ID, room.ID))
	})
}

func TestDeleteRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("PersonalDeleteHidesOnly", func(t *testing.T) {
		store := memory.New()
		disp := newFakeDispatcher()
		svc := newRoomService(store, disp)
		alice := seedUser(t, store, "alice")
		bob := seedUser(t, store, "bob")

		room, err := svc.StartPrivateChat(ctx, alice.ID, bob.ID)
		require.NoError(t, err)

		require.NoError(t, svc.DeleteRoom(ctx, alice.ID, room.ID, false))

		hidden, err := store.Rooms().IsHiddenFor(ctx, room.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, hidden)

		// The room itself survives.
		_, err = store.Rooms().GetByID(ctx, room.ID)
		assert.NoError(t, err)
	})

	t.Run("MutualGroupDeleteOwnerOnly", func(t *testing.T) {
		store := memory.New()
		disp := newFakeDispatcher()
		svc := newRoomService(store, disp)
		owner := seedUser(t, store, "owner")
		member := seedUser(t, store, "member")

		room, err := svc.CreateGroup(ctx, owner.ID, "devs", []string{member.ID})
		require.NoError(t, err)

		err = svc.DeleteRoom(ctx, member.ID, room.ID, true)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		require.NoError(t, svc.DeleteRoom(ctx, owner.ID, room.ID, true))
		_, err = store.Rooms().GetByID(ctx, room.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, disp.roomEventNames(room.ID), domain.EventForceLeaveRoom)
	})
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	disp := newFakeDispatcher()
	svc := newRoomService(store, disp)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	carol := seedUser(t, store, "carol")

	room, err := svc.StartPrivateChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NoError(t, store.Blocks().Add(ctx, alice.ID, carol.ID))

	snap, err := svc.Snapshot(ctx, alice.ID)
	require.NoError(t, err)

	require.Len(t, snap.Rooms, 1)
	// A private room is presented as the counterpart.
	require.NotNil(t, snap.Rooms[0].Name)
	assert.Equal(t, "bob", *snap.Rooms[0].Name)
	assert.Equal(t, room.ID, snap.Rooms[0].ID)

	assert.Equal(t, alice.ID, snap.MyProfile.ID)
	assert.Equal(t, []string{carol.ID}, snap.MyProfile.BlockedUsers)

	// Blocked users appear with redacted profiles, not removed.
	var carolView *service.UserView
	for i := range snap.Users {
		if snap.Users[i].ID == carol.ID {
			carolView = &snap.Users[i]
		}
	}
	require.NotNil(t, carolView)
	assert.Nil(t, carolView.Avatar)
	assert.Empty(t, carolView.AvatarGallery)
}
