package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsRollbackReleasesEverything(t *testing.T) {
	var released []string
	var claims Claims
	claims.Add(func(context.Context) error { released = append(released, "wallet"); return nil })
	claims.Add(func(context.Context) error { released = append(released, "name"); return nil })

	insertErr := errors.New("insert timed out")
	err := claims.Rollback(context.Background(), insertErr)

	assert.ErrorIs(t, err, insertErr)
	assert.Equal(t, []string{"name", "wallet"}, released)

	// a second rollback has nothing left to release
	released = nil
	assert.ErrorIs(t, claims.Rollback(context.Background(), insertErr), insertErr)
	assert.Empty(t, released)
}

func TestClaimsRollbackKeepsSentinelAndReleaseErrors(t *testing.T) {
	releaseErr := errors.New("release failed")
	var claims Claims
	claims.Add(func(context.Context) error { return releaseErr })
	claims.Add(func(context.Context) error { return nil })

	err := claims.Rollback(context.Background(), ErrDisplayNameTaken)
	assert.ErrorIs(t, err, ErrDisplayNameTaken)
	assert.ErrorIs(t, err, releaseErr)
}

func TestClaimsRollbackIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	var claims Claims
	claims.Add(func(ctx context.Context) error {
		sawErr = ctx.Err()
		return nil
	})

	err := claims.Rollback(ctx, context.Canceled)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, sawErr)
}
