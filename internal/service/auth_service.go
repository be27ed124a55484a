package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatd/internal/domain"
	"chatd/internal/security"
)

// AuthService handles registration, login, and token refresh.
type AuthService struct {
	users  domain.UserRepository
	hasher *security.PasswordHasher
	tokens *security.TokenService
	disp   Dispatcher
	log    zerolog.Logger
}

func NewAuthService(
	users domain.UserRepository,
	hasher *security.PasswordHasher,
	tokens *security.TokenService,
	disp Dispatcher,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokens: tokens, disp: disp, log: log}
}

type RegisterInput struct {
	Name      string  `json:"name" validate:"required,min=2,max=64"`
	Password  string  `json:"password" validate:"required,min=6,max=128"`
	RealName  *string `json:"real_name"`
	BirthDate *string `json:"birth_date"`
	Gender    *string `json:"gender"`
	Bio       *string `json:"bio"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register creates a new user. The display name is unique; a clash returns
// ErrConflict. Everyone online learns about the newcomer.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if _, err := s.users.GetByName(ctx, in.Name); err == nil {
		return nil, domain.ErrConflict
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ID:             uuid.NewString(),
		Name:           in.Name,
		RealName:       in.RealName,
		BirthDate:      in.BirthDate,
		Gender:         in.Gender,
		Bio:            in.Bio,
		HashedPassword: hashed,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", u.ID).Str("name", u.Name).Msg("user registered")

	s.disp.BroadcastAll(domain.Event{
		Name: domain.EventUserRegistered,
		Data: userView(u, false),
	})
	return u, nil
}

// Login verifies credentials and issues an access/refresh token pair.
func (s *AuthService) Login(ctx context.Context, name, password string) (*domain.User, *TokenPair, error) {
	u, err := s.users.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrUnauthorized
		}
		return nil, nil, err
	}
	if err := s.hasher.Verify(password, u.HashedPassword); err != nil {
		return nil, nil, domain.ErrUnauthorized
	}

	pair, err := s.issuePair(u.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.users.TouchLastActive(ctx, u.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", u.ID).Msg("touch last_active")
	}
	return u, pair, nil
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	if typ, _ := claims["type"].(string); typ != "refresh" {
		return nil, domain.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, domain.ErrUnauthorized
	}
	if _, err := s.users.GetByID(ctx, sub); err != nil {
		return nil, domain.ErrUnauthorized
	}
	return s.issuePair(sub)
}

func (s *AuthService) issuePair(userID string) (*TokenPair, error) {
	access, err := s.tokens.CreateAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	refresh, err := s.tokens.CreateRefresh(userID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
