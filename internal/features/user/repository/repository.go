package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lascaux-backend/internal/features/user/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrWalletTaken      = errors.New("wallet address already registered")
	ErrDisplayNameTaken = errors.New("display name already taken")
	// ErrTokenExists is returned by backends whose Save refuses to
	// overwrite an existing refresh-token record.
	ErrTokenExists = errors.New("refresh token already stored")
)

// RetentionGrace is how long an expired refresh-token record is kept before
// backends with native TTLs drop it. Within the grace window an expired
// record is still found, so callers can tell "expired" from "unknown".
const RetentionGrace = 24 * time.Hour

type UserRepository interface {
	// Create stores a new user. It fails with ErrWalletTaken or
	// ErrDisplayNameTaken when either unique attribute is already claimed.
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error)
	GetByDisplayName(ctx context.Context, displayName string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	// Update writes the mutable profile columns. WalletAddress and
	// DisplayName are not changed by Update.
	Update(ctx context.Context, user *models.User) error
	// UpdateDisplayName claims displayName for user and releases the old one.
	UpdateDisplayName(ctx context.Context, user *models.User, displayName string) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type RefreshTokenRepository interface {
	Save(ctx context.Context, token *models.RefreshToken) error
	Get(ctx context.Context, userID uuid.UUID, token string) (*models.RefreshToken, error)
	// Delete reports whether a record existed.
	Delete(ctx context.Context, userID uuid.UUID, token string) (bool, error)
}

// Purger is implemented by refresh-token repositories whose backend has no
// native record expiry. PurgeExpired removes records that expired before
// the given instant and returns how many were removed.
type Purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store bundles both repositories of one backend.
type Store interface {
	Users() UserRepository
	RefreshTokens() RefreshTokenRepository
	Ping(ctx context.Context) error
	Close() error
}

// RetentionTTL is the native TTL for a refresh-token record expiring at
// expiresAt.
func RetentionTTL(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now) + RetentionGrace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
