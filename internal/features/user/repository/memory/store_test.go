package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository/repositorytest"
)

func newTestUser() *models.User {
	return &models.User{
		ID:            uuid.New(),
		WalletAddress: "W1",
		DisplayName:   "D1",
		Roles:         []string{models.RoleGeneral},
		CreatedAt:     time.Now(),
	}
}

func TestStore(t *testing.T) {
	repositorytest.Run(t, New())
}

func TestReadsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := newTestUser()
	require.NoError(t, s.Users().Create(ctx, u))

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	got.Roles[0] = "admin"

	again, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", again.Roles[0])
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
	_, err := s.Users().List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
