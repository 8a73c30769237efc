// Package repositorytest holds the behaviour every credential store backend
// must share. Backend packages call Run from their own tests.
package repositorytest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
)

// Run exercises store. Every record it writes uses fresh random keys, so it
// is safe to run against a shared database.
func Run(t *testing.T, store repository.Store) {
	t.Helper()

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, store.Ping(context.Background()))
	})
	t.Run("users", func(t *testing.T) { testUsers(t, store.Users()) })
	t.Run("refresh tokens", func(t *testing.T) { testRefreshTokens(t, store.RefreshTokens()) })
}

// Stored timestamps may be truncated to milliseconds.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newUser() *models.User {
	suffix := uuid.NewString()[:8]
	return &models.User{
		ID:            uuid.New(),
		WalletAddress: "0xwallet-" + suffix,
		DisplayName:   "name-" + suffix,
		Roles:         []string{models.RoleGeneral},
		Followers:     []uuid.UUID{},
		CreatedAt:     now(),
	}
}

func testUsers(t *testing.T, users repository.UserRepository) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		u := newUser()
		u.Bio = "gm"
		u.ProfilePhotoURL = "https://cdn.example.com/a.png"
		inviter := uuid.New()
		u.InvitedBy = &inviter
		require.NoError(t, users.Create(ctx, u))

		byID, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.WalletAddress, byID.WalletAddress)
		assert.Equal(t, u.DisplayName, byID.DisplayName)
		assert.Equal(t, "gm", byID.Bio)
		assert.Equal(t, u.ProfilePhotoURL, byID.ProfilePhotoURL)
		assert.Equal(t, []string{models.RoleGeneral}, byID.Roles)
		assert.Empty(t, byID.Followers)
		assert.Nil(t, byID.LastLogin)
		require.NotNil(t, byID.InvitedBy)
		assert.Equal(t, inviter, *byID.InvitedBy)
		assert.WithinDuration(t, u.CreatedAt, byID.CreatedAt, time.Millisecond)
		assert.Equal(t, time.UTC, byID.CreatedAt.Location())

		byWallet, err := users.GetByWalletAddress(ctx, u.WalletAddress)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byWallet.ID)

		byName, err := users.GetByDisplayName(ctx, u.DisplayName)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byName.ID)
	})

	t.Run("missing records", func(t *testing.T) {
		_, err := users.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = users.GetByWalletAddress(ctx, "0xnobody-"+uuid.NewString())
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = users.GetByDisplayName(ctx, "nobody-"+uuid.NewString())
		assert.ErrorIs(t, err, repository.ErrNotFound)

		assert.ErrorIs(t, users.UpdateLastLogin(ctx, uuid.New(), now()), repository.ErrNotFound)
	})

	t.Run("duplicate wallet", func(t *testing.T) {
		u := newUser()
		require.NoError(t, users.Create(ctx, u))

		dup := newUser()
		dup.WalletAddress = u.WalletAddress
		assert.ErrorIs(t, users.Create(ctx, dup), repository.ErrWalletTaken)

		// The rejected create must not leave its display name claimed.
		other := newUser()
		other.DisplayName = dup.DisplayName
		assert.NoError(t, users.Create(ctx, other))
	})

	t.Run("duplicate display name", func(t *testing.T) {
		u := newUser()
		require.NoError(t, users.Create(ctx, u))

		dup := newUser()
		dup.DisplayName = u.DisplayName
		assert.ErrorIs(t, users.Create(ctx, dup), repository.ErrDisplayNameTaken)

		// The rejected create must not leave its wallet claimed.
		other := newUser()
		other.WalletAddress = dup.WalletAddress
		assert.NoError(t, users.Create(ctx, other))
	})

	t.Run("update mutable fields", func(t *testing.T) {
		u := newUser()
		require.NoError(t, users.Create(ctx, u))

		follower := uuid.New()
		u.Bio = "updated"
		u.Roles = []string{models.RoleAdmin, models.RoleGeneral}
		u.Followers = []uuid.UUID{follower}
		u.Rank = "og"
		require.NoError(t, users.Update(ctx, u))

		got, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "updated", got.Bio)
		assert.Equal(t, []string{models.RoleAdmin, models.RoleGeneral}, got.Roles)
		assert.Equal(t, []uuid.UUID{follower}, got.Followers)
		assert.Equal(t, "og", got.Rank)
		assert.Equal(t, u.WalletAddress, got.WalletAddress)
	})

	t.Run("update display name", func(t *testing.T) {
		u := newUser()
		require.NoError(t, users.Create(ctx, u))
		taken := newUser()
		require.NoError(t, users.Create(ctx, taken))

		assert.ErrorIs(t, users.UpdateDisplayName(ctx, u, taken.DisplayName), repository.ErrDisplayNameTaken)

		oldName := u.DisplayName
		newName := "renamed-" + uuid.NewString()[:8]
		require.NoError(t, users.UpdateDisplayName(ctx, u, newName))
		assert.Equal(t, newName, u.DisplayName)

		got, err := users.GetByDisplayName(ctx, newName)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = users.GetByDisplayName(ctx, oldName)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		// Released names are claimable again.
		reuse := newUser()
		reuse.DisplayName = oldName
		assert.NoError(t, users.Create(ctx, reuse))
	})

	t.Run("update last login", func(t *testing.T) {
		u := newUser()
		require.NoError(t, users.Create(ctx, u))

		at := now().Add(time.Minute)
		require.NoError(t, users.UpdateLastLogin(ctx, u.ID, at))

		got, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.WithinDuration(t, at, *got.LastLogin, time.Millisecond)
		assert.Equal(t, time.UTC, got.LastLogin.Location())
	})

	t.Run("list", func(t *testing.T) {
		a, b := newUser(), newUser()
		require.NoError(t, users.Create(ctx, a))
		require.NoError(t, users.Create(ctx, b))

		all, err := users.List(ctx)
		require.NoError(t, err)

		ids := make(map[uuid.UUID]bool, len(all))
		for _, u := range all {
			ids[u.ID] = true
		}
		assert.True(t, ids[a.ID])
		assert.True(t, ids[b.ID])
	})
}

func testRefreshTokens(t *testing.T, tokens repository.RefreshTokenRepository) {
	ctx := context.Background()

	t.Run("save get delete", func(t *testing.T) {
		userID := uuid.New()
		rt := &models.RefreshToken{
			UserID:    userID,
			Token:     "token-" + uuid.NewString(),
			ExpiresAt: now().Add(time.Hour),
			CreatedAt: now(),
		}
		require.NoError(t, tokens.Save(ctx, rt))

		got, err := tokens.Get(ctx, userID, rt.Token)
		require.NoError(t, err)
		assert.Equal(t, rt.Token, got.Token)
		assert.Equal(t, userID, got.UserID)
		assert.WithinDuration(t, rt.ExpiresAt, got.ExpiresAt, time.Millisecond)
		assert.Equal(t, time.UTC, got.ExpiresAt.Location())

		deleted, err := tokens.Delete(ctx, userID, rt.Token)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = tokens.Delete(ctx, userID, rt.Token)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = tokens.Get(ctx, userID, rt.Token)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("pair is the key", func(t *testing.T) {
		userID := uuid.New()
		first := &models.RefreshToken{UserID: userID, Token: "a-" + uuid.NewString(), ExpiresAt: now().Add(time.Hour), CreatedAt: now()}
		second := &models.RefreshToken{UserID: userID, Token: "b-" + uuid.NewString(), ExpiresAt: now().Add(time.Hour), CreatedAt: now()}
		require.NoError(t, tokens.Save(ctx, first))
		require.NoError(t, tokens.Save(ctx, second))

		_, err := tokens.Get(ctx, uuid.New(), first.Token)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		deleted, err := tokens.Delete(ctx, userID, first.Token)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = tokens.Get(ctx, userID, second.Token)
		assert.NoError(t, err)
	})

	t.Run("expired record is still found", func(t *testing.T) {
		userID := uuid.New()
		rt := &models.RefreshToken{
			UserID:    userID,
			Token:     "expired-" + uuid.NewString(),
			ExpiresAt: now().Add(-time.Hour),
			CreatedAt: now().Add(-2 * time.Hour),
		}
		require.NoError(t, tokens.Save(ctx, rt))

		got, err := tokens.Get(ctx, userID, rt.Token)
		require.NoError(t, err)
		assert.True(t, got.Expired(time.Now()))
	})
	purger, ok := tokens.(repository.Purger)
	if !ok {
		return
	}
	t.Run("purge expired", func(t *testing.T) {
		userID := uuid.New()
		stale := &models.RefreshToken{UserID: userID, Token: "stale-" + uuid.NewString(), ExpiresAt: now().Add(-48 * time.Hour), CreatedAt: now().Add(-72 * time.Hour)}
		recent := &models.RefreshToken{UserID: userID, Token: "recent-" + uuid.NewString(), ExpiresAt: now().Add(-time.Hour), CreatedAt: now().Add(-2 * time.Hour)}
		live := &models.RefreshToken{UserID: userID, Token: "live-" + uuid.NewString(), ExpiresAt: now().Add(time.Hour), CreatedAt: now()}
		for _, rt := range []*models.RefreshToken{stale, recent, live} {
			require.NoError(t, tokens.Save(ctx, rt))
		}

		n, err := purger.PurgeExpired(ctx, time.Now().Add(-repository.RetentionGrace))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = tokens.Get(ctx, userID, stale.Token)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = tokens.Get(ctx, userID, recent.Token)
		assert.NoError(t, err)
		_, err = tokens.Get(ctx, userID, live.Token)
		assert.NoError(t, err)
	})
}

// RunWriteFailures checks that a Create or UpdateDisplayName whose final
// record write fails hands its uniqueness claims back. failWrites switches
// the backend's fault injection for that write on and off; claim and
// release operations must keep working while it is on.
func RunWriteFailures(t *testing.T, store repository.Store, failWrites func(bool)) {
	t.Helper()
	users := store.Users()
	ctx := context.Background()

	t.Run("failed create releases claims", func(t *testing.T) {
		u := newUser()

		failWrites(true)
		err := users.Create(ctx, u)
		failWrites(false)
		require.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrWalletTaken)
		assert.NotErrorIs(t, err, repository.ErrDisplayNameTaken)

		_, err = users.GetByWalletAddress(ctx, u.WalletAddress)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		require.NoError(t, users.Create(ctx, u), "retry must not see leftover claims")
	})

	t.Run("failed rename releases the new name", func(t *testing.T) {
		u := newUser()
		require.NoError(t, users.Create(ctx, u))
		target := "renamed-" + uuid.NewString()[:8]

		failWrites(true)
		err := users.UpdateDisplayName(ctx, u, target)
		failWrites(false)
		require.Error(t, err)

		other := newUser()
		other.DisplayName = target
		assert.NoError(t, users.Create(ctx, other), "new name must be free again")
	})
}
