package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/features/user/mapper"
	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateDisplayName = errors.New("display name already taken")
	ErrInvalidDisplayName   = errors.New("display name must not be empty")
	ErrAlreadyFollowing     = errors.New("already following")
	ErrNotFollowing         = errors.New("not following")
	ErrInvalidRoles         = errors.New("roles must be non-empty tags")
)

type userService struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) UserService {
	return &userService{
		repo: repo,
	}
}

func (s *userService) get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *userService) List(ctx context.Context) ([]*models.UserInfo, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return mapper.ToUserInfos(users), nil
}

func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*models.UserInfo, error) {
	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapper.ToUserInfo(user), nil
}

// UpdateProfile changes the display fields. Access tokens issued before the
// change stop passing explicit verification.
func (s *userService) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.UserInfo, error) {
	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" {
			return nil, ErrInvalidDisplayName
		}
		if name != user.DisplayName {
			if err := s.repo.UpdateDisplayName(ctx, user, name); err != nil {
				switch {
				case errors.Is(err, repository.ErrDisplayNameTaken):
					return nil, ErrDuplicateDisplayName
				case errors.Is(err, repository.ErrNotFound):
					return nil, ErrUserNotFound
				}
				return nil, fmt.Errorf("failed to update display name: %w", err)
			}
		}
	}

	if update.Bio != nil || update.ProfilePhotoURL != nil {
		if update.Bio != nil {
			user.Bio = *update.Bio
		}
		if update.ProfilePhotoURL != nil {
			user.ProfilePhotoURL = *update.ProfilePhotoURL
		}
		if err := s.repo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}

	logger.Info().Str("user_id", id.String()).Msg("Profile updated")
	return mapper.ToUserInfo(user), nil
}

func (s *userService) Follow(ctx context.Context, followerID, targetID uuid.UUID) (*models.UserInfo, error) {
	target, err := s.get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.HasFollower(followerID) {
		return nil, ErrAlreadyFollowing
	}

	target.Followers = append(target.Followers, followerID)
	if err := s.repo.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to add follower: %w", err)
	}
	return mapper.ToUserInfo(target), nil
}

func (s *userService) Unfollow(ctx context.Context, followerID, targetID uuid.UUID) (*models.UserInfo, error) {
	target, err := s.get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !target.HasFollower(followerID) {
		return nil, ErrNotFollowing
	}

	followers := target.Followers[:0]
	for _, f := range target.Followers {
		if f != followerID {
			followers = append(followers, f)
		}
	}
	target.Followers = followers
	if err := s.repo.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to remove follower: %w", err)
	}
	return mapper.ToUserInfo(target), nil
}

// SetRoles replaces the role list, keeping the first occurrence of each tag.
func (s *userService) SetRoles(ctx context.Context, id uuid.UUID, roles []string) (*models.UserInfo, error) {
	seen := make(map[string]struct{}, len(roles))
	cleaned := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			return nil, ErrInvalidRoles
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) == 0 {
		return nil, ErrInvalidRoles
	}

	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Roles = cleaned
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update roles: %w", err)
	}

	logger.Info().Str("user_id", id.String()).Strs("roles", cleaned).Msg("Roles updated")
	return mapper.ToUserInfo(user), nil
}
