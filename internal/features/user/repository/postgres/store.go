package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
	postgresplatform "lascaux-backend/internal/platform/postgres"
)

const (
	uniqueViolation       = "23505"
	walletConstraint      = "users_wallet_address_key"
	displayNameConstraint = "users_display_name_key"
)

type Store struct {
	client *postgresplatform.Client
	users  *userRepository
	tokens *refreshTokenRepository
}

func New(client *postgresplatform.Client) *Store {
	db := client.DB()
	return &Store{
		client: client,
		users:  &userRepository{db: db},
		tokens: &refreshTokenRepository{db: db},
	}
}

func (s *Store) Users() repository.UserRepository                 { return s.users }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return s.tokens }
func (s *Store) Ping(ctx context.Context) error                   { return s.client.HealthCheck(ctx) }
func (s *Store) Close() error                                     { return s.client.Close() }

type userRow struct {
	ID              uuid.UUID      `db:"id"`
	WalletAddress   string         `db:"wallet_address"`
	DisplayName     string         `db:"display_name"`
	Bio             string         `db:"bio"`
	ProfilePhotoURL string         `db:"profile_photo_url"`
	Roles           pq.StringArray `db:"roles"`
	Followers       pq.StringArray `db:"followers"`
	CreatedAt       time.Time      `db:"created_at"`
	LastLogin       *time.Time     `db:"last_login"`
	InvitedBy       *uuid.UUID     `db:"invited_by"`
	Rank            string         `db:"rank"`
}

func (r *userRow) toModel() (*models.User, error) {
	followers := make([]uuid.UUID, 0, len(r.Followers))
	for _, f := range r.Followers {
		id, err := uuid.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("corrupt follower id %q: %w", f, err)
		}
		followers = append(followers, id)
	}

	user := &models.User{
		ID:              r.ID,
		WalletAddress:   r.WalletAddress,
		DisplayName:     r.DisplayName,
		Bio:             r.Bio,
		ProfilePhotoURL: r.ProfilePhotoURL,
		Roles:           []string(r.Roles),
		Followers:       followers,
		CreatedAt:       r.CreatedAt,
		LastLogin:       r.LastLogin,
		InvitedBy:       r.InvitedBy,
		Rank:            r.Rank,
	}
	user.Normalize()
	return user, nil
}

func followerStrings(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func rolesArray(roles []string) pq.StringArray {
	if roles == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(roles)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// uniqueError maps a unique violation to the repository sentinel for the
// constraint it hit.
func uniqueError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case walletConstraint:
		return repository.ErrWalletTaken
	case displayNameConstraint:
		return repository.ErrDisplayNameTaken
	}
	return nil
}

type userRepository struct {
	db *sqlx.DB
}

const selectUser = `SELECT id, wallet_address, display_name, bio, profile_photo_url, roles, followers,
	created_at, last_login, invited_by, rank FROM users`

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, wallet_address, display_name, bio, profile_photo_url, roles, followers,
		created_at, last_login, invited_by, rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.WalletAddress, user.DisplayName, user.Bio, user.ProfilePhotoURL,
		rolesArray(user.Roles), followerStrings(user.Followers), user.CreatedAt.UTC(),
		utcPtr(user.LastLogin), user.InvitedBy, user.Rank,
	)
	if err != nil {
		if mapped := uniqueError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, selectUser+" WHERE "+where+" = $1", arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toModel()
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, "id", id)
}

func (r *userRepository) GetByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	return r.getOne(ctx, "wallet_address", walletAddress)
}

func (r *userRepository) GetByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	return r.getOne(ctx, "display_name", displayName)
}

func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, selectUser+" ORDER BY created_at"); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*models.User, 0, len(rows))
	for i := range rows {
		user, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func affected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	query := `UPDATE users SET bio = $1, profile_photo_url = $2, roles = $3, followers = $4,
		last_login = $5, invited_by = $6, rank = $7 WHERE id = $8`

	res, err := r.db.ExecContext(ctx, query,
		user.Bio, user.ProfilePhotoURL, rolesArray(user.Roles), followerStrings(user.Followers),
		utcPtr(user.LastLogin), user.InvitedBy, user.Rank, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return affected(res, "update user")
}

func (r *userRepository) UpdateDisplayName(ctx context.Context, user *models.User, displayName string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET display_name = $1 WHERE id = $2`, displayName, user.ID)
	if err != nil {
		if mapped := uniqueError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to update display name: %w", err)
	}
	if err := affected(res, "update display name"); err != nil {
		return err
	}
	user.DisplayName = displayName
	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return affected(res, "update last login")
}

type refreshTokenRepository struct {
	db *sqlx.DB
}

type refreshTokenRow struct {
	UserID    uuid.UUID `db:"user_id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Postgres has no native TTL; expired rows stay until deleted so they keep
// surfacing as expired rather than unknown.
func (r *refreshTokenRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, token) DO UPDATE SET expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`

	if _, err := r.db.ExecContext(ctx, query, token.UserID, token.Token, token.ExpiresAt.UTC(), token.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (r *refreshTokenRepository) Get(ctx context.Context, userID uuid.UUID, token string) (*models.RefreshToken, error) {
	var row refreshTokenRow
	query := `SELECT user_id, token, expires_at, created_at FROM refresh_tokens WHERE user_id = $1 AND token = $2`
	if err := r.db.GetContext(ctx, &row, query, userID, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return &models.RefreshToken{
		UserID:    row.UserID,
		Token:     row.Token,
		ExpiresAt: row.ExpiresAt.UTC(),
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func (r *refreshTokenRepository) Delete(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		return false, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return n > 0, nil
}

func (r *refreshTokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return n, nil
}
