package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/model"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return NewWithClient(client), mr
}

func TestBundle_RoundTrip(t *testing.T) {
	t.Parallel()

	c, mr := setupTestCache(t)
	ctx := context.Background()
	scope := model.Scope{OrgID: "org-1", ProjectID: "prj"}
	created := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	_, err := c.GetBundle(ctx, scope)
	require.ErrorIs(t, err, ErrCacheMiss)

	bundle := &model.Bundle{
		Items: []model.ContentItem{{
			ID:            "item-1",
			CreatorHandle: "alice",
			Platform:      model.PlatformInstagram,
			CreatedAt:     created,
			Snapshots: []model.Snapshot{
				{CapturedAt: created, IsInitial: true, Counters: model.Counters{Views: 10}},
			},
		}},
		Clicks:    []model.ClickEvent{{LinkID: "l1", IdentityKey: "abc", Timestamp: created}},
		FetchedAt: created,
	}
	require.NoError(t, c.SetBundle(ctx, scope, bundle, 30*time.Second))

	got, err := c.GetBundle(ctx, scope)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "alice", got.Items[0].CreatorHandle)
	assert.Equal(t, int64(10), got.Items[0].Snapshots[0].Views)
	assert.True(t, got.Items[0].Snapshots[0].IsInitial)
	assert.True(t, created.Equal(got.Clicks[0].Timestamp))

	_, err = c.GetBundle(ctx, model.Scope{OrgID: "org-1"})
	require.ErrorIs(t, err, ErrCacheMiss, "scopes are cached independently")

	mr.FastForward(31 * time.Second)
	_, err = c.GetBundle(ctx, scope)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestBundle_ZeroTTLDisablesCaching(t *testing.T) {
	t.Parallel()

	c, _ := setupTestCache(t)
	ctx := context.Background()
	scope := model.Scope{OrgID: "org-1"}

	require.NoError(t, c.SetBundle(ctx, scope, &model.Bundle{}, 0))
	_, err := c.GetBundle(ctx, scope)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestBundle_RedisDown(t *testing.T) {
	t.Parallel()

	c, mr := setupTestCache(t)
	mr.Close()

	_, err := c.GetBundle(context.Background(), model.Scope{OrgID: "org-1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestAllowIngest_TokenBucket(t *testing.T) {
	t.Parallel()

	c, _ := setupTestCache(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	limit := IngestLimit{Rate: 2, Burst: 3}

	for i := 0; i < 3; i++ {
		res, err := c.AllowIngest(ctx, "org-1", "203.0.113.7", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d is within the burst", i)
		assert.Equal(t, int64(2-i), res.Remaining)
	}

	denied, err := c.AllowIngest(ctx, "org-1", "203.0.113.7", limit)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 500*time.Millisecond, denied.RetryAfter)
	assert.Equal(t, now.Add(1500*time.Millisecond), denied.ResetAt)

	now = now.Add(500 * time.Millisecond)
	refilled, err := c.AllowIngest(ctx, "org-1", "203.0.113.7", limit)
	require.NoError(t, err)
	assert.True(t, refilled.Allowed, "one token refills after half a second")
}

func TestAllowIngest_BucketsArePerTenantAndClient(t *testing.T) {
	t.Parallel()

	c, _ := setupTestCache(t)
	ctx := context.Background()
	limit := IngestLimit{Rate: 1, Burst: 1}

	first, err := c.AllowIngest(ctx, "org-1", "203.0.113.7", limit)
	require.NoError(t, err)
	require.True(t, first.Allowed)

	again, err := c.AllowIngest(ctx, "org-1", "203.0.113.7", limit)
	require.NoError(t, err)
	assert.False(t, again.Allowed)

	otherOrg, err := c.AllowIngest(ctx, "org-2", "203.0.113.7", limit)
	require.NoError(t, err)
	assert.True(t, otherOrg.Allowed)

	otherIP, err := c.AllowIngest(ctx, "org-1", "198.51.100.1", limit)
	require.NoError(t, err)
	assert.True(t, otherIP.Allowed)
}

func TestAllowIngest_Errors(t *testing.T) {
	t.Parallel()

	c, mr := setupTestCache(t)

	_, err := c.AllowIngest(context.Background(), "org-1", "203.0.113.7", IngestLimit{Rate: 0, Burst: 3})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	mr.Close()
	_, err = c.AllowIngest(context.Background(), "org-1", "203.0.113.7", IngestLimit{Rate: 1, Burst: 3})
	assert.Error(t, err, "callers decide how to fail")
}
