package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	snapshotPrefix = "permissions:grants"
	versionPrefix  = "permissions:version"
)

// SnapshotCache keeps grant snapshots in Redis under a per-employee version.
// Invalidate bumps the version so older keys are never read again and expire
// on their TTL.
type SnapshotCache struct {
	client  *redis.Client
	gateway Gateway
	ttl     time.Duration
	group   singleflight.Group
}

// NewSnapshotCache instantiates the cache. A nil client disables caching.
func NewSnapshotCache(client *redis.Client, gateway Gateway, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, gateway: gateway, ttl: ttl}
}

// Version returns the employee's snapshot version, initialising when missing.
func (c *SnapshotCache) Version(ctx context.Context, employeeID int64) (int64, error) {
	if c.client == nil {
		return 0, nil
	}
	key := versionKey(employeeID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	return ver, err
}

// Load returns the grants of employeeID at the selected cinemas. Concurrent
// loads of the same key share one gateway call.
func (c *SnapshotCache) Load(ctx context.Context, employeeID int64, selection Selection) (GrantIndex, error) {
	ver, err := c.Version(ctx, employeeID)
	if err != nil {
		return GrantIndex{}, fmt.Errorf("permissions: snapshot version: %w", err)
	}
	key := snapshotKey(employeeID, ver, selection)
	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetch(ctx, key, employeeID, selection)
	})
	select {
	case <-ctx.Done():
		return GrantIndex{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return GrantIndex{}, res.Err
		}
		return NewGrantIndex(res.Val.([]Grant)), nil
	}
}

func (c *SnapshotCache) fetch(ctx context.Context, key string, employeeID int64, selection Selection) ([]Grant, error) {
	if c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var grants []Grant
			if err := json.Unmarshal(payload, &grants); err == nil {
				return grants, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, err
		}
	}
	grants, err := c.gateway.GetEmployeePermissions(ctx, employeeID, selection.IDs())
	if err != nil {
		return nil, fmt.Errorf("permissions: load grants: %w", err)
	}
	if c.client == nil {
		return grants, nil
	}
	raw, err := json.Marshal(grants)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// Invalidate bumps the employee's version.
func (c *SnapshotCache) Invalidate(ctx context.Context, employeeID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(employeeID)).Err()
}

func versionKey(employeeID int64) string {
	return versionPrefix + ":" + strconv.FormatInt(employeeID, 10)
}

func snapshotKey(employeeID, version int64, selection Selection) string {
	ids := selection.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join([]string{
		snapshotPrefix,
		strconv.FormatInt(employeeID, 10),
		"v" + strconv.FormatInt(version, 10),
		strings.Join(parts, ","),
	}, ":")
}
