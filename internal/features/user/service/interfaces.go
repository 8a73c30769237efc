package service

import (
	"context"

	"github.com/google/uuid"

	"lascaux-backend/internal/features/user/models"
)

type UserService interface {
	List(ctx context.Context) ([]*models.UserInfo, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.UserInfo, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.UserInfo, error)
	Follow(ctx context.Context, followerID, targetID uuid.UUID) (*models.UserInfo, error)
	Unfollow(ctx context.Context, followerID, targetID uuid.UUID) (*models.UserInfo, error)
	SetRoles(ctx context.Context, id uuid.UUID, roles []string) (*models.UserInfo, error)
}
