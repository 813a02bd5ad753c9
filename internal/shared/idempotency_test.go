package shared

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreClaim(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Claim(ctx, "assignments.commit", "abc"))
	require.ErrorIs(t, store.Claim(ctx, "assignments.commit", "abc"), ErrIdempotencyConflict)
	require.NoError(t, store.Claim(ctx, "permissions.save", "abc"), "keys are per module")
	assert.Equal(t, time.Hour, mr.TTL("idempotency:assignments.commit:abc"))

	require.NoError(t, store.Release(ctx, "assignments.commit", "abc"))
	require.NoError(t, store.Claim(ctx, "assignments.commit", "abc"))

	require.NoError(t, store.Claim(ctx, "assignments.commit", ""))
	require.NoError(t, store.Claim(ctx, "assignments.commit", ""), "empty keys are not tracked")
	require.Error(t, store.Claim(ctx, "", "abc"))

	mr.FastForward(2 * time.Hour)
	require.NoError(t, store.Claim(ctx, "permissions.save", "abc"))
}

func TestIdempotencyStoreNilSafe(t *testing.T) {
	var store *IdempotencyStore
	require.NoError(t, store.Claim(context.Background(), "m", "k"))
	require.NoError(t, store.Release(context.Background(), "m", "k"))
}

func TestOperatorContext(t *testing.T) {
	ctx := ContextWithOperator(context.Background(), 42)
	id, ok := OperatorFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = OperatorFromContext(context.Background())
	assert.False(t, ok)
	_, ok = OperatorFromContext(ContextWithOperator(context.Background(), 0))
	assert.False(t, ok)
}

func TestAuditLogValidate(t *testing.T) {
	require.Error(t, AuditLog{Action: "assignments.commit"}.Validate())
	require.NoError(t, AuditLog{Action: "assignments.commit", Entity: "employee", EntityID: "1"}.Validate())
	require.Error(t, NewAuditLogger(nil).Record(context.Background(), AuditLog{}))
}
