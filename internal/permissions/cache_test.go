package permissions

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSnapshotCacheServesFromRedis(t *testing.T) {
	_, client := newRedis(t)
	gw := newMemoryGateway(grantsAt("BOOKING_VIEW", cinemaA)...)
	cache := NewSnapshotCache(client, gw, time.Minute)
	ctx := context.Background()
	sel := NewSelection([]int64{cinemaA, cinemaB})

	first, err := cache.Load(ctx, 1, sel)
	require.NoError(t, err)
	second, err := cache.Load(ctx, 1, sel)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.fetches)
	assert.True(t, first.Has("BOOKING_VIEW", cinemaA))
	assert.Equal(t, first.Grants(1), second.Grants(1))
}

func TestSnapshotCacheInvalidateBumpsVersion(t *testing.T) {
	mr, client := newRedis(t)
	gw := newMemoryGateway()
	cache := NewSnapshotCache(client, gw, time.Minute)
	ctx := context.Background()
	sel := NewSelection([]int64{cinemaA})

	_, err := cache.Load(ctx, 1, sel)
	require.NoError(t, err)
	ver, err := cache.Version(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	require.NoError(t, gw.GrantPermissions(ctx, 1, BatchRequest{CinemaIDs: []int64{cinemaA}, PermissionCodes: []string{"REPORT_VIEW"}}))
	require.NoError(t, cache.Invalidate(ctx, 1))

	fresh, err := cache.Load(ctx, 1, sel)
	require.NoError(t, err)
	assert.True(t, fresh.Has("REPORT_VIEW", cinemaA))
	assert.Equal(t, 2, gw.fetches)
	assert.True(t, mr.Exists("permissions:grants:1:v1:101"))
	assert.True(t, mr.Exists("permissions:grants:1:v2:101"))
	assert.Equal(t, time.Minute, mr.TTL("permissions:grants:1:v2:101"))
}

func TestSnapshotCacheKeysPerSelection(t *testing.T) {
	_, client := newRedis(t)
	gw := newMemoryGateway(grantsAt("BOOKING_VIEW", cinemaA, cinemaB)...)
	cache := NewSnapshotCache(client, gw, time.Minute)
	ctx := context.Background()

	a, err := cache.Load(ctx, 1, NewSelection([]int64{cinemaA}))
	require.NoError(t, err)
	b, err := cache.Load(ctx, 1, NewSelection([]int64{cinemaB}))
	require.NoError(t, err)

	assert.Equal(t, 2, gw.fetches)
	assert.False(t, a.Has("BOOKING_VIEW", cinemaB))
	assert.True(t, b.Has("BOOKING_VIEW", cinemaB))
}

func TestSnapshotCacheWithoutRedis(t *testing.T) {
	gw := newMemoryGateway(grantsAt("BOOKING_VIEW", cinemaA)...)
	cache := NewSnapshotCache(nil, gw, time.Minute)
	ctx := context.Background()

	ix, err := cache.Load(ctx, 1, NewSelection([]int64{cinemaA}))
	require.NoError(t, err)
	assert.True(t, ix.Has("BOOKING_VIEW", cinemaA))
	require.NoError(t, cache.Invalidate(ctx, 1))
}

func TestSnapshotCacheConcurrentLoads(t *testing.T) {
	_, client := newRedis(t)
	gw := newMemoryGateway(grantsAt("BOOKING_VIEW", cinemaA)...)
	cache := NewSnapshotCache(client, gw, time.Minute)
	sel := NewSelection([]int64{cinemaA})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ix, err := cache.Load(context.Background(), 1, sel)
			if err == nil && !ix.Has("BOOKING_VIEW", cinemaA) {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	// singleflight plus the Redis copy keep gateway traffic well below one call per reader.
	assert.LessOrEqual(t, gw.fetches, 16)
	assert.GreaterOrEqual(t, gw.fetches, 1)
}

func TestDraftStoreRoundTrip(t *testing.T) {
	mr, client := newRedis(t)
	store := NewDraftStore(client, 30*time.Minute)
	ctx := context.Background()

	_, err := store.Get(ctx, 7, 1)
	require.ErrorIs(t, err, ErrNoDraft)

	state := DraftState{EmployeeID: 1, CinemaIDs: []int64{cinemaA}, PendingGrant: []string{"BOOKING_VIEW"}, PendingRevoke: []string{}}
	require.NoError(t, store.Put(ctx, 7, state))
	assert.Equal(t, 30*time.Minute, mr.TTL("permissions:draft:7:1"))

	got, err := store.Get(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, state, got)

	_, err = store.Get(ctx, 8, 1)
	require.ErrorIs(t, err, ErrNoDraft, "drafts are per operator")

	require.NoError(t, store.Delete(ctx, 7, 1))
	require.NoError(t, store.Delete(ctx, 7, 1))
	_, err = store.Get(ctx, 7, 1)
	require.ErrorIs(t, err, ErrNoDraft)
}

func TestDraftStoreExpires(t *testing.T) {
	mr, client := newRedis(t)
	store := NewDraftStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, 7, DraftState{EmployeeID: 1, CinemaIDs: []int64{cinemaA}}))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, 7, 1)
	require.ErrorIs(t, err, ErrNoDraft)
}
