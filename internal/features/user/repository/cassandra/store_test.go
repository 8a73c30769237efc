package cassandra

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lascaux-backend/internal/common/config"
	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
	"lascaux-backend/internal/features/user/repository/repositorytest"
	cassandraplatform "lascaux-backend/internal/platform/cassandra"
)

// Set TEST_CASSANDRA_HOSTS (comma separated) to run against a live cluster.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	hosts := os.Getenv("TEST_CASSANDRA_HOSTS")
	if hosts == "" {
		t.Skip("TEST_CASSANDRA_HOSTS not set")
	}
	logger.Setup(os.Stderr, "cassandra-test", false)

	cfg := &config.Config{}
	cfg.Cassandra.Hosts = strings.Split(hosts, ",")
	cfg.Cassandra.Port = 9042
	cfg.Cassandra.Keyspace = "lascaux_test"
	cfg.Cassandra.Consistency = "ONE"
	cfg.Cassandra.ProtoVersion = 4
	cfg.Cassandra.Timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := cassandraplatform.NewClient(ctx, cfg, true)
	require.NoError(t, err)

	store := New(client)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	repositorytest.Run(t, openTestStore(t))
}

func TestRefreshTokenSaveIsConditional(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rt := &models.RefreshToken{UserID: uuid.New(), Token: "lwt-" + uuid.NewString(), ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	require.NoError(t, store.RefreshTokens().Save(ctx, rt))
	assert.ErrorIs(t, store.RefreshTokens().Save(ctx, rt), repository.ErrTokenExists)

	deleted, err := store.RefreshTokens().Delete(ctx, rt.UserID, rt.Token)
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, store.RefreshTokens().Save(ctx, rt), "a deleted token can be stored again")
}
