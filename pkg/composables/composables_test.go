package composables

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx    *fakeTx
	calls int
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.calls++
	return b.tx, nil
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{}}

	err := RunInTx(context.Background(), db, func(ctx context.Context) error {
		tx, err := UseCurrentTx(ctx)
		require.NoError(t, err)
		require.Same(t, db.tx, tx)
		return nil
	})
	require.NoError(t, err)
	require.True(t, db.tx.committed)
	require.False(t, db.tx.rolledBack)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")

	err := RunInTx(context.Background(), db, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.True(t, db.tx.rolledBack)
	require.False(t, db.tx.committed)
}

func TestInTx_ReusesExistingTx(t *testing.T) {
	existing := &fakeTx{}
	ctx := WithTx(context.Background(), existing)

	called := false
	err := InTx(ctx, func(txCtx context.Context) error {
		called = true
		tx, err := UseCurrentTx(txCtx)
		require.NoError(t, err)
		require.Same(t, existing, tx)
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.False(t, existing.committed)
}

func TestInTx_NoPool(t *testing.T) {
	err := InTx(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrNoPool)

	_, err = UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

func TestUseActor(t *testing.T) {
	_, err := UseActor(context.Background())
	require.ErrorIs(t, err, ErrNoActor)

	id, err := UseActor(WithActor(context.Background(), 42))
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestUseLogger_Fallbacks(t *testing.T) {
	require.NotNil(t, UseLogger(context.Background()))

	logger := logrus.New()
	entry := logger.WithField("request-id", "abc")
	got := UseLogger(WithLogger(context.Background(), entry))
	require.Equal(t, "abc", got.Data["request-id"])
}
