// Package mocks provides testify mocks of the credential store.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
)

type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepository) user(args mock.Arguments) (*models.User, error) {
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.user(m.Called(ctx, id))
}

func (m *UserRepository) GetByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	return m.user(m.Called(ctx, walletAddress))
}

func (m *UserRepository) GetByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	return m.user(m.Called(ctx, displayName))
}

func (m *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*models.User)
	return users, args.Error(1)
}

func (m *UserRepository) Update(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepository) UpdateDisplayName(ctx context.Context, user *models.User, displayName string) error {
	return m.Called(ctx, user, displayName).Error(0)
}

func (m *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type RefreshTokenRepository struct {
	mock.Mock
}

func (m *RefreshTokenRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *RefreshTokenRepository) Get(ctx context.Context, userID uuid.UUID, token string) (*models.RefreshToken, error) {
	args := m.Called(ctx, userID, token)
	t, _ := args.Get(0).(*models.RefreshToken)
	return t, args.Error(1)
}

func (m *RefreshTokenRepository) Delete(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	args := m.Called(ctx, userID, token)
	return args.Bool(0), args.Error(1)
}

// Store wires the two mocks behind repository.Store.
type Store struct {
	UserRepo  *UserRepository
	TokenRepo *RefreshTokenRepository
	PingErr   error
}

func NewStore() *Store {
	return &Store{UserRepo: &UserRepository{}, TokenRepo: &RefreshTokenRepository{}}
}

func (s *Store) Users() repository.UserRepository                 { return s.UserRepo }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return s.TokenRepo }
func (s *Store) Ping(context.Context) error                       { return s.PingErr }
func (s *Store) Close() error                                     { return nil }
