package cassandra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
	cassandraplatform "lascaux-backend/internal/platform/cassandra"
)

const userColumns = `id, wallet_address, display_name, bio, profile_photo_url, roles, followers,
	created_at, last_login, invited_by, rank`

type Store struct {
	client *cassandraplatform.Client
	users  *userRepository
	tokens *refreshTokenRepository
}

func New(client *cassandraplatform.Client) *Store {
	session := client.Session()
	return &Store{
		client: client,
		users:  &userRepository{session: session},
		tokens: &refreshTokenRepository{session: session, now: time.Now},
	}
}

func (s *Store) Users() repository.UserRepository                 { return s.users }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return s.tokens }
func (s *Store) Ping(ctx context.Context) error                   { return s.client.HealthCheck(ctx) }

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

type userRepository struct {
	session *gocql.Session
}

// claim inserts a row into a uniqueness table with a lightweight
// transaction and reports whether it was applied.
func (r *userRepository) claim(ctx context.Context, table, column, value string, id uuid.UUID) (bool, error) {
	stmt := fmt.Sprintf(`INSERT INTO %s (%s, user_id) VALUES (?, ?) IF NOT EXISTS`, table, column)
	applied, err := r.session.Query(stmt, value, gocql.UUID(id)).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", column, err)
	}
	return applied, nil
}

// release removes a uniqueness row only if it still belongs to id.
func (r *userRepository) release(ctx context.Context, table, column, value string, id uuid.UUID) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE %s = ? IF user_id = ?`, table, column)
	if _, err := r.session.Query(stmt, value, gocql.UUID(id)).WithContext(ctx).MapScanCAS(map[string]interface{}{}); err != nil {
		return fmt.Errorf("failed to release %s: %w", column, err)
	}
	return nil
}

func (r *userRepository) releaser(table, column, value string, id uuid.UUID) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return r.release(ctx, table, column, value, id)
	}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	var claims repository.Claims

	ok, err := r.claim(ctx, "users_by_wallet", "wallet_address", user.WalletAddress, user.ID)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrWalletTaken
	}
	claims.Add(r.releaser("users_by_wallet", "wallet_address", user.WalletAddress, user.ID))

	ok, err = r.claim(ctx, "users_by_display_name", "display_name", user.DisplayName, user.ID)
	if err != nil {
		return claims.Rollback(ctx, err)
	}
	if !ok {
		return claims.Rollback(ctx, repository.ErrDisplayNameTaken)
	}
	claims.Add(r.releaser("users_by_display_name", "display_name", user.DisplayName, user.ID))

	stmt := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err = r.session.Query(stmt,
		gocql.UUID(user.ID), user.WalletAddress, user.DisplayName, user.Bio, user.ProfilePhotoURL,
		user.Roles, toGocqlUUIDs(user.Followers), user.CreatedAt.UTC(), nullableTime(user.LastLogin),
		nullableUUID(user.InvitedBy), user.Rank,
	).WithContext(ctx).Exec()
	if err != nil {
		return claims.Rollback(ctx, fmt.Errorf("failed to create user: %w", err))
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := r.session.Query(`SELECT `+userColumns+` FROM users WHERE id = ?`, gocql.UUID(id)).WithContext(ctx)
	user, err := scanUser(q.Scan)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *userRepository) lookup(ctx context.Context, table, column, value string) (*models.User, error) {
	var id gocql.UUID
	stmt := fmt.Sprintf(`SELECT user_id FROM %s WHERE %s = ?`, table, column)
	if err := r.session.Query(stmt, value).WithContext(ctx).Scan(&id); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up %s: %w", column, err)
	}
	return r.GetByID(ctx, uuid.UUID(id))
}

func (r *userRepository) GetByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	return r.lookup(ctx, "users_by_wallet", "wallet_address", walletAddress)
}

func (r *userRepository) GetByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	return r.lookup(ctx, "users_by_display_name", "display_name", displayName)
}

func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	scanner := r.session.Query(`SELECT ` + userColumns + ` FROM users`).WithContext(ctx).Iter().Scanner()

	var users []*models.User
	for scanner.Next() {
		user, err := scanUser(scanner.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// exists guards plain UPDATEs, which would otherwise upsert a partial row.
func (r *userRepository) exists(ctx context.Context, id uuid.UUID) error {
	var found gocql.UUID
	err := r.session.Query(`SELECT id FROM users WHERE id = ?`, gocql.UUID(id)).WithContext(ctx).Scan(&found)
	if errors.Is(err, gocql.ErrNotFound) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.exists(ctx, user.ID); err != nil {
		return err
	}

	err := r.session.Query(`UPDATE users SET bio = ?, profile_photo_url = ?, roles = ?, followers = ?,
		last_login = ?, invited_by = ?, rank = ? WHERE id = ?`,
		user.Bio, user.ProfilePhotoURL, user.Roles, toGocqlUUIDs(user.Followers),
		nullableTime(user.LastLogin), nullableUUID(user.InvitedBy), user.Rank, gocql.UUID(user.ID),
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateDisplayName(ctx context.Context, user *models.User, displayName string) error {
	current, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if current.DisplayName == displayName {
		return nil
	}

	ok, err := r.claim(ctx, "users_by_display_name", "display_name", displayName, user.ID)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrDisplayNameTaken
	}
	var claims repository.Claims
	claims.Add(r.releaser("users_by_display_name", "display_name", displayName, user.ID))

	err = r.session.Query(`UPDATE users SET display_name = ? WHERE id = ?`, displayName, gocql.UUID(user.ID)).
		WithContext(ctx).Exec()
	if err != nil {
		return claims.Rollback(ctx, fmt.Errorf("failed to update display name: %w", err))
	}

	if err := r.release(ctx, "users_by_display_name", "display_name", current.DisplayName, user.ID); err != nil {
		return err
	}
	user.DisplayName = displayName
	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := r.exists(ctx, id); err != nil {
		return err
	}
	err := r.session.Query(`UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), gocql.UUID(id)).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

type refreshTokenRepository struct {
	session *gocql.Session
	now     func() time.Time
}

// Save inserts through a lightweight transaction, like Delete, so every write
// to a refresh_tokens partition is ordered by Paxos rather than mixing LWT
// and plain timestamps.
func (r *refreshTokenRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	ttl := repository.RetentionTTL(token.ExpiresAt, r.now())
	applied, err := r.session.Query(`INSERT INTO refresh_tokens (user_id, token, expires_at, created_at)
		VALUES (?, ?, ?, ?) IF NOT EXISTS USING TTL ?`,
		gocql.UUID(token.UserID), token.Token, token.ExpiresAt.UTC(), token.CreatedAt.UTC(), int(ttl.Seconds()),
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	if !applied {
		return repository.ErrTokenExists
	}
	return nil
}

func (r *refreshTokenRepository) Get(ctx context.Context, userID uuid.UUID, token string) (*models.RefreshToken, error) {
	var (
		uid       gocql.UUID
		value     string
		expiresAt time.Time
		createdAt time.Time
	)
	err := r.session.Query(`SELECT user_id, token, expires_at, created_at FROM refresh_tokens
		WHERE user_id = ? AND token = ?`, gocql.UUID(userID), token,
	).WithContext(ctx).Scan(&uid, &value, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return &models.RefreshToken{
		UserID:    uuid.UUID(uid),
		Token:     value,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (r *refreshTokenRepository) Delete(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	applied, err := r.session.Query(`DELETE FROM refresh_tokens WHERE user_id = ? AND token = ? IF EXISTS`,
		gocql.UUID(userID), token,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return applied, nil
}

func scanUser(scan func(dest ...interface{}) error) (*models.User, error) {
	var (
		id        gocql.UUID
		user      models.User
		followers []gocql.UUID
		lastLogin time.Time
		invitedBy gocql.UUID
	)
	err := scan(&id, &user.WalletAddress, &user.DisplayName, &user.Bio, &user.ProfilePhotoURL,
		&user.Roles, &followers, &user.CreatedAt, &lastLogin, &invitedBy, &user.Rank)
	if err != nil {
		return nil, err
	}

	user.ID = uuid.UUID(id)
	user.Followers = make([]uuid.UUID, 0, len(followers))
	for _, f := range followers {
		user.Followers = append(user.Followers, uuid.UUID(f))
	}
	if !lastLogin.IsZero() {
		user.LastLogin = &lastLogin
	}
	if invitedBy != (gocql.UUID{}) {
		inviter := uuid.UUID(invitedBy)
		user.InvitedBy = &inviter
	}
	user.Normalize()
	return &user, nil
}

func toGocqlUUIDs(ids []uuid.UUID) []gocql.UUID {
	out := make([]gocql.UUID, 0, len(ids))
	for _, id := range ids {
		out = append(out, gocql.UUID(id))
	}
	return out
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return gocql.UUID(*id)
}
