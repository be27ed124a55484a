package service

import (
	"context"

	"chatd/internal/domain"
)

// UserService covers profile management, avatar gallery upkeep, and block
// relations.
type UserService struct {
	users  domain.UserRepository
	blocks domain.BlockRepository
	disp   Dispatcher
}

func NewUserService(users domain.UserRepository, blocks domain.BlockRepository, disp Dispatcher) *UserService {
	return &UserService{users: users, blocks: blocks, disp: disp}
}

type UpdateProfileInput struct {
	RealName  *string `json:"real_name"`
	BirthDate *string `json:"birth_date"`
	Gender    *string `json:"gender"`
	Bio       *string `json:"bio"`
}

// UpdateProfile patches the user's descriptive fields. Nil means "leave as
// is"; an explicit empty string clears the field. The updated view is
// broadcast so open member lists refresh.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.RealName != nil {
		u.RealName = in.RealName
	}
	if in.BirthDate != nil {
		u.BirthDate = in.BirthDate
	}
	if in.Gender != nil {
		u.Gender = in.Gender
	}
	if in.Bio != nil {
		u.Bio = in.Bio
	}
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}

	s.disp.BroadcastAll(domain.Event{
		Name: domain.EventProfileUpdated,
		Data: userView(u, s.disp.IsOnline(u.ID)),
	})
	return u, nil
}

// AddAvatar prepends the new avatar to the gallery and makes it current.
func (s *UserService) AddAvatar(ctx context.Context, userID, avatarURL string) (*domain.User, error) {
	if avatarURL == "" {
		return nil, domain.ErrInvalidInput
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	gallery := make([]string, 0, len(u.AvatarGallery)+1)
	gallery = append(gallery, avatarURL)
	for _, a := range u.AvatarGallery {
		if a != avatarURL {
			gallery = append(gallery, a)
		}
	}
	u.Avatar = &avatarURL
	u.AvatarGallery = gallery
	if err := s.users.UpdateAvatar(ctx, userID, u.Avatar, gallery); err != nil {
		return nil, err
	}
	s.broadcastProfile(u)
	return u, nil
}

// SelectAvatar makes an existing gallery entry the current avatar.
func (s *UserService) SelectAvatar(ctx context.Context, userID, avatarURL string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, a := range u.AvatarGallery {
		if a == avatarURL {
			found = true
			break
		}
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	u.Avatar = &avatarURL
	if err := s.users.UpdateAvatar(ctx, userID, u.Avatar, u.AvatarGallery); err != nil {
		return nil, err
	}
	s.broadcastProfile(u)
	return u, nil
}

// DeleteAvatar removes the entry from the gallery. If it was the current
// avatar, the most recent remaining entry takes over (nil when empty).
func (s *UserService) DeleteAvatar(ctx context.Context, userID, avatarURL string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	gallery := make([]string, 0, len(u.AvatarGallery))
	for _, a := range u.AvatarGallery {
		if a != avatarURL {
			gallery = append(gallery, a)
		}
	}
	if len(gallery) == len(u.AvatarGallery) {
		return nil, domain.ErrNotFound
	}
	u.AvatarGallery = gallery
	if u.Avatar != nil && *u.Avatar == avatarURL {
		u.Avatar = nil
		if len(gallery) > 0 {
			u.Avatar = &gallery[0]
		}
	}
	if err := s.users.UpdateAvatar(ctx, userID, u.Avatar, gallery); err != nil {
		return nil, err
	}
	s.broadcastProfile(u)
	return u, nil
}

// Block records the directed block edge. Blocking an already-blocked user
// or yourself is a no-op.
func (s *UserService) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return domain.ErrInvalidInput
	}
	if _, err := s.users.GetByID(ctx, blockedID); err != nil {
		return err
	}
	return s.blocks.Add(ctx, blockerID, blockedID)
}

// Unblock removes the directed block edge if present.
func (s *UserService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	return s.blocks.Remove(ctx, blockerID, blockedID)
}

// BlockedUsers returns the ids the user has blocked.
func (s *UserService) BlockedUsers(ctx context.Context, userID string) ([]string, error) {
	return s.blocks.ListBlockedBy(ctx, userID)
}

func (s *UserService) broadcastProfile(u *domain.User) {
	s.disp.BroadcastAll(domain.Event{
		Name: domain.EventProfileUpdated,
		Data: userView(u, s.disp.IsOnline(u.ID)),
	})
}
