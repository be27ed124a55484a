package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/internal/domain"
	"chatd/internal/service"
	"chatd/internal/store/memory"
)

func TestAvatarGallery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	disp := newFakeDispatcher()
	svc := service.NewUserService(store.Users(), store.Blocks(), disp)
	alice := seedUser(t, store, "alice")

	t.Run("AddPrependsAndSelects", func(t *testing.T) {
		u, err := svc.AddAvatar(ctx, alice.ID, "/img/a1.png")
		require.NoError(t, err)
		u, err = svc.AddAvatar(ctx, alice.ID, "/img/a2.png")
		require.NoError(t, err)

		// Most recent first, newest is current.
		assert.Equal(t, []string{"/img/a2.png", "/img/a1.png"}, u.AvatarGallery)
		require.NotNil(t, u.Avatar)
		assert.Equal(t, "/img/a2.png", *u.Avatar)
	})

	t.Run("SelectExistingEntry", func(t *testing.T) {
		u, err := svc.SelectAvatar(ctx, alice.ID, "/img/a1.png")
		require.NoError(t, err)
		assert.Equal(t, "/img/a1.png", *u.Avatar)
		// Selecting does not reorder the gallery.
		assert.Equal(t, []string{"/img/a2.png", "/img/a1.png"}, u.AvatarGallery)
	})

	t.Run("SelectUnknownEntry", func(t *testing.T) {
		_, err := svc.SelectAvatar(ctx, alice.ID, "/img/missing.png")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DeleteCurrentFallsBack", func(t *testing.T) {
		u, err := svc.DeleteAvatar(ctx, alice.ID, "/img/a1.png")
		require.NoError(t, err)
		assert.Equal(t, []string{"/img/a2.png"}, u.AvatarGallery)
		require.NotNil(t, u.Avatar)
		assert.Equal(t, "/img/a2.png", *u.Avatar)
	})

	t.Run("DeleteLastClearsAvatar", func(t *testing.T) {
		u, err := svc.DeleteAvatar(ctx, alice.ID, "/img/a2.png")
		require.NoError(t, err)
		assert.Empty(t, u.AvatarGallery)
		assert.Nil(t, u.Avatar)
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	disp := newFakeDispatcher()
	svc := service.NewUserService(store.Users(), store.Blocks(), disp)
	alice := seedUser(t, store, "alice")

	bio := "hello there"
	u, err := svc.UpdateProfile(ctx, alice.ID, service.UpdateProfileInput{Bio: &bio})
	require.NoError(t, err)
	require.NotNil(t, u.Bio)
	assert.Equal(t, bio, *u.Bio)

	// Nil fields stay untouched.
	real := "Alice A."
	u, err = svc.UpdateProfile(ctx, alice.ID, service.UpdateProfileInput{RealName: &real})
	require.NoError(t, err)
	require.NotNil(t, u.Bio)
	assert.Equal(t, bio, *u.Bio)
	assert.Equal(t, real, *u.RealName)

	// Every update is announced.
	require.Len(t, disp.broadcasts, 2)
	assert.Equal(t, domain.EventProfileUpdated, disp.broadcasts[0].Name)
}

func TestBlocks(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := service.NewUserService(store.Users(), store.Blocks(), newFakeDispatcher())
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")

	t.Run("SelfBlockRejected", func(t *testing.T) {
		err := svc.Block(ctx, alice.ID, alice.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("BlockIsIdempotent", func(t *testing.T) {
		require.NoError(t, svc.Block(ctx, alice.ID, bob.ID))
		require.NoError(t, svc.Block(ctx, alice.ID, bob.ID))

		ids, err := svc.BlockedUsers(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{bob.ID}, ids)
	})

	t.Run("BlockIsDirected", func(t *testing.T) {
		ids, err := svc.BlockedUsers(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("Unblock", func(t *testing.T) {
		require.NoError(t, svc.Unblock(ctx, alice.ID, bob.ID))
		ids, err := svc.BlockedUsers(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("BlockUnknownTarget", func(t *testing.T) {
		err := svc.Block(ctx, alice.ID, "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
