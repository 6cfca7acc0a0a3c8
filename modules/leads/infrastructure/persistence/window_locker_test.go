package persistence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/leadrouter/pkg/composables"
)

func TestPostgresWindowLocker_ReusesTransaction(t *testing.T) {
	tx := &stubTx{}
	ctx := composables.WithTx(context.Background(), tx)
	locker := NewPostgresWindowLocker(nil, 2*time.Second)

	called := false
	err := locker.WithLock(ctx, "leads.allocation:2026-03-10", func(txCtx context.Context) error {
		called = true
		current, err := composables.UseCurrentTx(txCtx)
		require.NoError(t, err)
		require.Same(t, tx, current)
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Len(t, tx.execs, 2)
	require.Equal(t, "2s", tx.execs[0].args[0])
	require.Contains(t, tx.execs[1].sql, "pg_advisory_xact_lock")
	require.Equal(t, "leads.allocation:2026-03-10", tx.execs[1].args[0])
}

func TestPostgresWindowLocker_PropagatesCallbackError(t *testing.T) {
	tx := &stubTx{}
	ctx := composables.WithTx(context.Background(), tx)
	boom := errors.New("boom")
	err := NewPostgresWindowLocker(nil, 0).WithLock(ctx, "k", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Len(t, tx.execs, 1)
}

func TestRedisWindowLocker_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	called := false
	err := NewRedisWindowLocker(client, time.Second, 100*time.Millisecond).
		WithLock(context.Background(), "leads.allocation:2026-03-10", func(context.Context) error {
			called = true
			return nil
		})
	require.Error(t, err)
	require.False(t, called)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		raw, err := migrationsFS.ReadFile(migrationsDir + "/" + e.Name())
		require.NoError(t, err)
		body := string(raw)
		require.True(t, strings.HasPrefix(body, "-- +goose Up"), e.Name())
		require.Contains(t, body, "-- +goose Down", e.Name())
	}

	err = migrateDB(context.Background(), nil, MigrationDirection("sideways"), nil)
	require.ErrorContains(t, err, "unknown migration direction")
}
