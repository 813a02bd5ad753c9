package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeStarter struct {
	tx   *fakeTx
	err  error
	opts pgx.TxOptions
}

func (f *fakeStarter) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	starter := &fakeStarter{tx: &fakeTx{}}
	require.NoError(t, WithTx(context.Background(), starter, func(pgx.Tx) error { return nil }))
	assert.True(t, starter.tx.committed)
	assert.False(t, starter.tx.rolledBack)
	assert.Equal(t, pgx.RepeatableRead, starter.opts.IsoLevel)
}

func TestWithTxOptionsPassesIsolation(t *testing.T) {
	starter := &fakeStarter{tx: &fakeTx{}}
	require.NoError(t, WithTxOptions(context.Background(), starter, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(pgx.Tx) error { return nil }))
	assert.Equal(t, pgx.ReadCommitted, starter.opts.IsoLevel)
	assert.True(t, starter.tx.committed)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	starter := &fakeStarter{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := WithTx(context.Background(), starter, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, starter.tx.committed)
	assert.True(t, starter.tx.rolledBack)
}

func TestWithTxWrapsBeginAndCommitErrors(t *testing.T) {
	err := WithTx(context.Background(), &fakeStarter{err: errors.New("no conn")}, func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "begin tx")

	starter := &fakeStarter{tx: &fakeTx{commitErr: errors.New("serialization")}}
	err = WithTx(context.Background(), starter, func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "commit tx")
}

func TestUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_cinema_role_active"})
	name, ok := UniqueViolation(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "uq_cinema_role_active", name)

	_, ok = UniqueViolation(&pgconn.PgError{Code: "23503"})
	assert.False(t, ok)
	_, ok = UniqueViolation(errors.New("plain"))
	assert.False(t, ok)
}
