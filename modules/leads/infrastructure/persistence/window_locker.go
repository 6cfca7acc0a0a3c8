package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/pkg/composables"
)

// PostgresWindowLocker serializes allocation decisions with a transaction-scoped
// advisory lock. fn runs inside the same transaction, so the lock is released on
// commit or rollback.
type PostgresWindowLocker struct {
	db      composables.TxBeginner
	timeout time.Duration
}

func NewPostgresWindowLocker(db composables.TxBeginner, timeout time.Duration) *PostgresWindowLocker {
	return &PostgresWindowLocker{db: db, timeout: timeout}
}

func (l *PostgresWindowLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	run := func(txCtx context.Context) error {
		tx, err := composables.UseCurrentTx(txCtx)
		if err != nil {
			return err
		}
		if l.timeout > 0 {
			if _, err := tx.Exec(txCtx, `SELECT set_config('lock_timeout', $1, true)`,
				l.timeout.String()); err != nil {
				return errors.Wrap(err, "failed to set lock_timeout")
			}
		}
		if _, err := tx.Exec(txCtx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return errors.Wrapf(err, "failed to lock %s", key)
		}
		return fn(txCtx)
	}
	if _, err := composables.UseCurrentTx(ctx); err == nil {
		return run(ctx)
	}
	return composables.RunInTx(ctx, l.db, run)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisWindowLocker serializes allocation decisions across processes with a
// SET NX PX lock. The lock expires after ttl even if the holder dies.
type RedisWindowLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisWindowLocker(client redis.UniversalClient, ttl, wait time.Duration) *RedisWindowLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &RedisWindowLocker{client: client, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

func (l *RedisWindowLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return errors.Wrapf(err, "failed to lock %s", key)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return assignment.ErrWindowBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
	defer func() {
		// the caller's context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}()
	return fn(ctx)
}
