package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
)

const (
	keyPrefixUser         = "user:"
	keyPrefixWallet       = "user:wallet:"
	keyPrefixDisplayName  = "user:name:"
	keyUsers              = "users"
	keyPrefixRefreshToken = "refresh_token:"
)

// releaseIfOwner deletes KEYS[1] only while it still maps to ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	client *redis.Client
	users  *userRepository
	tokens *refreshTokenRepository
}

func New(client *redis.Client) *Store {
	return &Store{
		client: client,
		users:  &userRepository{client: client},
		tokens: &refreshTokenRepository{client: client, now: time.Now},
	}
}

func (s *Store) Users() repository.UserRepository                 { return s.users }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return s.tokens }
func (s *Store) Ping(ctx context.Context) error                   { return s.client.Ping(ctx).Err() }
func (s *Store) Close() error                                     { return s.client.Close() }

type userRepository struct {
	client *redis.Client
}

func userKey(id uuid.UUID) string {
	return keyPrefixUser + id.String()
}

// release gives key back only while it still belongs to id.
func (r *userRepository) release(key, id string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := releaseIfOwner.Run(ctx, r.client, []string{key}, id).Err(); err != nil {
			return fmt.Errorf("failed to release %s: %w", key, err)
		}
		return nil
	}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	id := user.ID.String()
	walletKey := keyPrefixWallet + user.WalletAddress
	nameKey := keyPrefixDisplayName + user.DisplayName

	var claims repository.Claims
	ok, err := r.client.SetNX(ctx, walletKey, id, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim wallet address: %w", err)
	}
	if !ok {
		return repository.ErrWalletTaken
	}
	claims.Add(r.release(walletKey, id))

	ok, err = r.client.SetNX(ctx, nameKey, id, 0).Result()
	if err != nil {
		return claims.Rollback(ctx, fmt.Errorf("failed to claim display name: %w", err))
	}
	if !ok {
		return claims.Rollback(ctx, repository.ErrDisplayNameTaken)
	}
	claims.Add(r.release(nameKey, id))

	stored := user.Clone()
	stored.Normalize()
	data, err := json.Marshal(stored)
	if err != nil {
		return claims.Rollback(ctx, fmt.Errorf("failed to marshal user: %w", err))
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, userKey(user.ID), data, 0)
	pipe.SAdd(ctx, keyUsers, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return claims.Rollback(ctx, fmt.Errorf("failed to create user: %w", err))
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	data, err := r.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return decodeUser(data)
}

func (r *userRepository) lookup(ctx context.Context, key string) (*models.User, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt user index %s: %w", key, err)
	}
	return r.GetByID(ctx, id)
}

func (r *userRepository) GetByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	return r.lookup(ctx, keyPrefixWallet+walletAddress)
}

func (r *userRepository) GetByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	return r.lookup(ctx, keyPrefixDisplayName+displayName)
}

func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	ids, err := r.client.SMembers(ctx, keyUsers).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(ids) == 0 {
		return []*models.User{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, keyPrefixUser+id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	users := make([]*models.User, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		user, err := decodeUser([]byte(s))
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// modify applies fn to the stored user under optimistic locking.
func (r *userRepository) modify(ctx context.Context, id uuid.UUID, fn func(stored *models.User)) error {
	key := userKey(id)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return repository.ErrNotFound
			}
			return fmt.Errorf("failed to get user: %w", err)
		}
		stored, err := decodeUser(data)
		if err != nil {
			return err
		}

		fn(stored)
		stored.Normalize()
		next, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	return r.modify(ctx, user.ID, func(stored *models.User) {
		stored.Bio = user.Bio
		stored.ProfilePhotoURL = user.ProfilePhotoURL
		stored.Roles = append([]string(nil), user.Roles...)
		stored.Followers = append([]uuid.UUID(nil), user.Followers...)
		stored.LastLogin = user.LastLogin
		stored.InvitedBy = user.InvitedBy
		stored.Rank = user.Rank
	})
}

func (r *userRepository) UpdateDisplayName(ctx context.Context, user *models.User, displayName string) error {
	current, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if current.DisplayName == displayName {
		return nil
	}

	id := user.ID.String()
	nameKey := keyPrefixDisplayName + displayName
	ok, err := r.client.SetNX(ctx, nameKey, id, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim display name: %w", err)
	}
	if !ok {
		return repository.ErrDisplayNameTaken
	}
	var claims repository.Claims
	claims.Add(r.release(nameKey, id))

	if err := r.modify(ctx, user.ID, func(stored *models.User) { stored.DisplayName = displayName }); err != nil {
		return claims.Rollback(ctx, err)
	}
	if err := r.release(keyPrefixDisplayName+current.DisplayName, id)(ctx); err != nil {
		return err
	}
	user.DisplayName = displayName
	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.modify(ctx, id, func(stored *models.User) {
		t := at.UTC()
		stored.LastLogin = &t
	})
}

func decodeUser(data []byte) (*models.User, error) {
	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	user.Normalize()
	return &user, nil
}

type refreshTokenRepository struct {
	client *redis.Client
	now    func() time.Time
}

// Tokens are hashed into the key to keep keys short; the record carries the
// raw token.
func refreshTokenKey(userID uuid.UUID, token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefixRefreshToken + userID.String() + ":" + hex.EncodeToString(sum[:])
}

func (r *refreshTokenRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	record := *token
	record.ExpiresAt = record.ExpiresAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	ttl := repository.RetentionTTL(record.ExpiresAt, r.now())
	if err := r.client.Set(ctx, refreshTokenKey(token.UserID, token.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (r *refreshTokenRepository) Get(ctx context.Context, userID uuid.UUID, token string) (*models.RefreshToken, error) {
	data, err := r.client.Get(ctx, refreshTokenKey(userID, token)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var record models.RefreshToken
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}
	if record.Token != token {
		return nil, repository.ErrNotFound
	}
	record.ExpiresAt = record.ExpiresAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

func (r *refreshTokenRepository) Delete(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	n, err := r.client.Del(ctx, refreshTokenKey(userID, token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return n > 0, nil
}
