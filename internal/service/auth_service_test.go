package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatd/internal/domain"
	"chatd/internal/security"
	"chatd/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByName(ctx context.Context, name string) (*domain.User, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	return nil, nil // Not used in auth tests
}

func (m *MockUserRepo) UpdateProfile(ctx context.Context, u *domain.User) error {
	return nil
}

func (m *MockUserRepo) UpdateAvatar(ctx context.Context, id string, avatar *string, gallery []string) error {
	return nil
}

func (m *MockUserRepo) TouchLastActive(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newAuthService(repo domain.UserRepository, disp service.Dispatcher) *service.AuthService {
	tokenSvc := security.NewTokenService("secret", time.Hour, 24*time.Hour)
	hasher := security.NewPasswordHasher(4) // low cost for tests
	return service.NewAuthService(repo, hasher, tokenSvc, disp, zerolog.Nop())
}

func TestRegister(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		disp := newFakeDispatcher()
		svc := newAuthService(mockRepo, disp)

		mockRepo.On("GetByName", mock.Anything, "newuser").Return(nil, domain.ErrNotFound)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Name == "newuser" && u.ID != "" && u.HashedPassword != "Password1!"
		})).Return(nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Name:     "newuser",
			Password: "Password1!",
		})
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "newuser", user.Name)

		// Everyone online hears about the newcomer.
		require.Len(t, disp.broadcasts, 1)
		assert.Equal(t, domain.EventUserRegistered, disp.broadcasts[0].Name)
	})

	t.Run("NameTaken", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		disp := newFakeDispatcher()
		svc := newAuthService(mockRepo, disp)

		existing := &domain.User{ID: "u1", Name: "existing"}
		mockRepo.On("GetByName", mock.Anything, "existing").Return(existing, nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Name:     "existing",
			Password: "Password1!",
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Nil(t, user)
		assert.Empty(t, disp.broadcasts)
	})
}

func TestLogin(t *testing.T) {
	hasher := security.NewPasswordHasher(4)
	hashed, err := hasher.Hash("Password1!")
	require.NoError(t, err)
	stored := &domain.User{ID: "u1", Name: "alice", HashedPassword: hashed}

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo, newFakeDispatcher())

		mockRepo.On("GetByName", mock.Anything, "alice").Return(stored, nil)
		mockRepo.On("TouchLastActive", mock.Anything, "u1").Return(nil)

		user, pair, err := svc.Login(context.Background(), "alice", "Password1!")
		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo, newFakeDispatcher())

		mockRepo.On("GetByName", mock.Anything, "alice").Return(stored, nil)

		_, _, err := svc.Login(context.Background(), "alice", "nope")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo, newFakeDispatcher())

		mockRepo.On("GetByName", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

		_, _, err := svc.Login(context.Background(), "ghost", "whatever")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestRefresh(t *testing.T) {
	tokenSvc := security.NewTokenService("secret", time.Hour, 24*time.Hour)
	hasher := security.NewPasswordHasher(4)

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, hasher, tokenSvc, newFakeDispatcher(), zerolog.Nop())

		refresh, err := tokenSvc.CreateRefresh("u1")
		require.NoError(t, err)
		mockRepo.On("GetByID", mock.Anything, "u1").Return(&domain.User{ID: "u1"}, nil)

		pair, err := svc.Refresh(context.Background(), refresh)
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
	})

	t.Run("AccessTokenRejected", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, hasher, tokenSvc, newFakeDispatcher(), zerolog.Nop())

		access, err := tokenSvc.CreateAccess("u1")
		require.NoError(t, err)

		_, err = svc.Refresh(context.Background(), access)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("GarbageRejected", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, hasher, tokenSvc, newFakeDispatcher(), zerolog.Nop())

		_, err := svc.Refresh(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}
