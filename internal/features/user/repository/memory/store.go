// Package memory is a process-local credential store for tests and
// single-node development runs (STORE_DRIVER=memory).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
)

type tokenKey struct {
	userID uuid.UUID
	token  string
}

type Store struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]*models.User
	byWallet  map[string]uuid.UUID
	byName    map[string]uuid.UUID
	tokens    map[tokenKey]*models.RefreshToken
	usersRepo *userRepository
	tokenRepo *refreshTokenRepository
}

func New() *Store {
	s := &Store{
		users:    make(map[uuid.UUID]*models.User),
		byWallet: make(map[string]uuid.UUID),
		byName:   make(map[string]uuid.UUID),
		tokens:   make(map[tokenKey]*models.RefreshToken),
	}
	s.usersRepo = &userRepository{s: s}
	s.tokenRepo = &refreshTokenRepository{s: s}
	return s
}

func (s *Store) Users() repository.UserRepository                 { return s.usersRepo }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return s.tokenRepo }
func (s *Store) Ping(ctx context.Context) error                   { return ctx.Err() }
func (s *Store) Close() error                                     { return nil }

type userRepository struct {
	s *Store
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.byWallet[user.WalletAddress]; ok {
		return repository.ErrWalletTaken
	}
	if _, ok := r.s.byName[user.DisplayName]; ok {
		return repository.ErrDisplayNameTaken
	}

	stored := user.Clone()
	stored.Normalize()
	r.s.users[user.ID] = stored
	r.s.byWallet[user.WalletAddress] = user.ID
	r.s.byName[user.DisplayName] = user.ID
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *userRepository) GetByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	return r.getByIndex(ctx, r.s.byWallet, walletAddress)
}

func (r *userRepository) GetByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	return r.getByIndex(ctx, r.s.byName, displayName)
}

func (r *userRepository) getByIndex(ctx context.Context, index map[string]uuid.UUID, key string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.s.users[id].Clone(), nil
}

func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]*models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, u.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}

	next := user.Clone()
	next.Normalize()
	next.WalletAddress = current.WalletAddress
	next.DisplayName = current.DisplayName
	next.CreatedAt = current.CreatedAt
	r.s.users[user.ID] = next
	return nil
}

func (r *userRepository) UpdateDisplayName(ctx context.Context, user *models.User, displayName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.DisplayName == displayName {
		return nil
	}
	if _, taken := r.s.byName[displayName]; taken {
		return repository.ErrDisplayNameTaken
	}

	delete(r.s.byName, current.DisplayName)
	r.s.byName[displayName] = user.ID
	current.DisplayName = displayName
	user.DisplayName = displayName
	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	t := at.UTC()
	u.LastLogin = &t
	return nil
}

type refreshTokenRepository struct {
	s *Store
}

func (r *refreshTokenRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := *token
	stored.ExpiresAt = stored.ExpiresAt.UTC()
	stored.CreatedAt = stored.CreatedAt.UTC()
	r.s.tokens[tokenKey{userID: token.UserID, token: token.Token}] = &stored
	return nil
}

func (r *refreshTokenRepository) Get(ctx context.Context, userID uuid.UUID, token string) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tokens[tokenKey{userID: userID, token: token}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (r *refreshTokenRepository) Delete(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := tokenKey{userID: userID, token: token}
	if _, ok := r.s.tokens[key]; !ok {
		return false, nil
	}
	delete(r.s.tokens, key)
	return true, nil
}

func (r *refreshTokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for key, t := range r.s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.s.tokens, key)
			n++
		}
	}
	return n, nil
}
