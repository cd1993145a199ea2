package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/engine"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/model"
	"github.com/pulseboard/pulseboard/internal/testutil"
)

var (
	testScope = model.Scope{OrgID: "org-1", ProjectID: "prj-1"}
	testNow   = time.Date(2026, time.March, 18, 14, 30, 0, 0, time.UTC)
)

type fakeItems struct {
	items []model.ContentItem
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeItems) ListByScope(ctx context.Context, scope model.Scope) ([]model.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.items, f.err
}

type fakeClicks struct {
	clicks    []model.ClickEvent
	err       error
	lastLimit int
}

func (f *fakeClicks) ListRecent(ctx context.Context, scope model.Scope, limit int) ([]model.ClickEvent, error) {
	f.lastLimit = limit
	return f.clicks, f.err
}

type fakeCache struct {
	mu      sync.Mutex
	bundles map[string]*model.Bundle
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{bundles: make(map[string]*model.Bundle)}
}

func (f *fakeCache) GetBundle(ctx context.Context, scope model.Scope) (*model.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.bundles[scope.Key()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return b, nil
}

func (f *fakeCache) SetBundle(ctx context.Context, scope model.Scope, bundle *model.Bundle, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTTL = ttl
	if f.setErr != nil {
		return f.setErr
	}
	f.bundles[scope.Key()] = bundle
	return nil
}

func at(day, hour int) time.Time {
	return time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC)
}

func testItems() []model.ContentItem {
	a := testutil.NewContentItem("a", "alice", at(1, 0),
		testutil.NewSnapshot(at(1, 0), model.Counters{Views: 0}, true),
		testutil.NewSnapshot(at(14, 9), model.Counters{Views: 100, Likes: 10}, false),
		testutil.NewSnapshot(at(17, 9), model.Counters{Views: 160, Likes: 12}, false),
	)
	b := testutil.NewContentItem("b", "bob", at(16, 12),
		testutil.NewSnapshot(at(16, 12), model.Counters{Views: 40}, true),
	)
	b.Platform = model.PlatformInstagram
	return []model.ContentItem{a, b}
}

func newTestService(items ItemStore, clicks ClickStore, bundles BundleCache, recorder metrics.Recorder) *DashboardService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DashboardConfig{
		CacheTTL: time.Minute,
		Now:      func() time.Time { return testNow },
	}
	return NewDashboardService(items, clicks, bundles, cfg, logger, recorder)
}

func TestDashboardService_Series(t *testing.T) {
	t.Parallel()

	clicks := &fakeClicks{clicks: []model.ClickEvent{
		testutil.NewClickEvent(testScope, "l1", at(15, 10)),
		testutil.NewClickEvent(testScope, "l1", at(17, 11)),
	}}
	svc := newTestService(&fakeItems{items: testItems()}, clicks, nil, nil)

	resp, err := svc.Series(context.Background(), SeriesRequest{
		Scope:   testScope,
		Metrics: []engine.Metric{engine.MetricViews, engine.MetricLinkClicks},
		Preset:  "last7days",
	})
	require.NoError(t, err)

	assert.Equal(t, "last7days", resp.Preset)
	assert.Equal(t, at(12, 0), resp.Window.Start)
	assert.Equal(t, engine.Day, resp.Granularity)
	assert.Equal(t, "UTC", resp.Timezone)
	assert.True(t, resp.HasComparison)
	require.Len(t, resp.Series, 2)

	views := resp.Series[0]
	assert.Equal(t, engine.MetricViews, views.Metric)
	require.Len(t, views.Points, 7)
	assert.Equal(t, 200.0, views.Summary.Current)
	require.NotNil(t, views.Summary.PercentChange)
	assert.True(t, views.Summary.PercentChange.New)

	linkClicks := resp.Series[1]
	assert.Equal(t, 2.0, linkClicks.Summary.Current)
	assert.Equal(t, defaultClickLimit, clicks.lastLimit)
}

func TestDashboardService_FilterKeepsPreviousPeriodUnfiltered(t *testing.T) {
	t.Parallel()

	items := testItems()
	items = append(items, testutil.NewContentItem("c", "carol", at(1, 0),
		testutil.NewSnapshot(at(1, 0), model.Counters{}, true),
		testutil.NewSnapshot(at(8, 0), model.Counters{Views: 30}, false),
	))
	items[2].Platform = model.PlatformYouTube

	svc := newTestService(&fakeItems{items: items}, &fakeClicks{}, nil, nil)

	resp, err := svc.Series(context.Background(), SeriesRequest{
		Scope:   testScope,
		Metrics: []engine.Metric{engine.MetricViews},
		Preset:  "last7days",
		Filter:  engine.ItemFilter{Platforms: []model.Platform{model.PlatformTikTok}},
	})
	require.NoError(t, err)

	s := resp.Series[0]
	assert.Equal(t, 160.0, s.Summary.Current)
	require.NotNil(t, s.Summary.Previous)
	assert.Equal(t, 30.0, *s.Summary.Previous)
}

func TestDashboardService_CompareAndGranularityOverrides(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeItems{items: testItems()}, &fakeClicks{}, nil, nil)
	off := false

	resp, err := svc.Series(context.Background(), SeriesRequest{
		Scope:       testScope,
		Metrics:     []engine.Metric{engine.MetricViews},
		Preset:      "last30days",
		Granularity: engine.Week,
		Compare:     &off,
	})
	require.NoError(t, err)

	assert.False(t, resp.HasComparison)
	assert.Equal(t, engine.Week, resp.Granularity)
	assert.Nil(t, resp.Series[0].Summary.Previous)

	resp, err = svc.Series(context.Background(), SeriesRequest{
		Scope:       testScope,
		Metrics:     []engine.Metric{engine.MetricViews},
		Preset:      "ytd",
		Granularity: engine.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, engine.Day, resp.Granularity, "hourly buckets over a year are coarsened")
}

func TestDashboardService_CustomRangeAndAllTime(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeItems{items: testItems()}, &fakeClicks{}, nil, nil)

	from, to := at(14, 0), at(16, 0).Add(24*time.Hour-engine.Instant)
	resp, err := svc.Series(context.Background(), SeriesRequest{
		Scope:   testScope,
		Metrics: []engine.Metric{engine.MetricViews},
		From:    &from,
		To:      &to,
	})
	require.NoError(t, err)
	assert.Equal(t, "custom", resp.Preset)
	assert.Equal(t, []float64{100, 0, 40}, []float64{
		resp.Series[0].Points[0].Value,
		resp.Series[0].Points[1].Value,
		resp.Series[0].Points[2].Value,
	})

	resp, err = svc.Series(context.Background(), SeriesRequest{
		Scope:   testScope,
		Metrics: []engine.Metric{engine.MetricPublishedItems},
		Preset:  "alltime",
	})
	require.NoError(t, err)
	assert.Equal(t, at(1, 0), resp.Window.Start)
	assert.False(t, resp.HasComparison)
	assert.Equal(t, 2.0, resp.Series[0].Summary.Current)
}

func TestDashboardService_InvalidInput(t *testing.T) {
	t.Parallel()

	from := at(1, 0)
	tests := []struct {
		name    string
		req     SeriesRequest
		wantErr error
	}{
		{"missing org", SeriesRequest{Metrics: []engine.Metric{engine.MetricViews}}, ErrMissingScope},
		{"no metrics", SeriesRequest{Scope: testScope}, ErrNoMetrics},
		{"unknown metric", SeriesRequest{Scope: testScope, Metrics: []engine.Metric{"reach"}}, engine.ErrUnknownMetric},
		{"half range", SeriesRequest{Scope: testScope, Metrics: []engine.Metric{engine.MetricViews}, From: &from}, ErrInvalidRange},
		{"unknown granularity", SeriesRequest{Scope: testScope, Metrics: []engine.Metric{engine.MetricViews}, Granularity: "decade"}, engine.ErrUnknownGranularity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder := metrics.NewInMemory()
			svc := newTestService(&fakeItems{}, &fakeClicks{}, nil, recorder)

			_, err := svc.Series(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsInvalidInput(err))
			assert.Equal(t, uint64(1), recorder.Snapshot().SeriesInvalid)
		})
	}
}

func TestDashboardService_StoreFailure(t *testing.T) {
	t.Parallel()

	recorder := metrics.NewInMemory()
	svc := newTestService(&fakeItems{err: errors.New("connection refused")}, &fakeClicks{}, nil, recorder)

	_, err := svc.Series(context.Background(), SeriesRequest{
		Scope:   testScope,
		Metrics: []engine.Metric{engine.MetricViews},
	})
	require.Error(t, err)
	assert.False(t, IsInvalidInput(err))
	assert.Equal(t, uint64(1), recorder.Snapshot().SeriesFailed)
}

func TestDashboardService_CorruptDatasetIsNotInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		items   []model.ContentItem
		wantErr error
	}{
		{
			name:    "negative stored counter",
			items:   []model.ContentItem{{ID: "a", CreatedAt: at(1, 0), Current: model.Counters{Views: -3}}},
			wantErr: engine.ErrNegativeCounter,
		},
		{
			name:    "duplicate stored item",
			items:   []model.ContentItem{{ID: "a", CreatedAt: at(1, 0)}, {ID: "a", CreatedAt: at(2, 0)}},
			wantErr: engine.ErrDuplicateItem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder := metrics.NewInMemory()
			svc := newTestService(&fakeItems{items: tt.items}, &fakeClicks{}, nil, recorder)

			_, err := svc.Series(context.Background(), SeriesRequest{
				Scope:   testScope,
				Metrics: []engine.Metric{engine.MetricViews},
			})
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, IsInvalidInput(err))
			assert.Equal(t, uint64(1), recorder.Snapshot().SeriesFailed)
			assert.Zero(t, recorder.Snapshot().SeriesInvalid)
		})
	}
}

func TestDashboardService_BundleCache(t *testing.T) {
	t.Parallel()

	items := &fakeItems{items: testItems()}
	bundles := newFakeCache()
	recorder := metrics.NewInMemory()
	svc := newTestService(items, &fakeClicks{}, bundles, recorder)

	req := SeriesRequest{Scope: testScope, Metrics: []engine.Metric{engine.MetricViews}}
	for i := 0; i < 3; i++ {
		_, err := svc.Series(context.Background(), req)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, items.calls)
	assert.Equal(t, time.Minute, bundles.lastTTL)

	snap := recorder.Snapshot()
	assert.Equal(t, uint64(1), snap.BundleCacheMisses)
	assert.Equal(t, uint64(2), snap.BundleCacheHits)
	assert.Equal(t, uint64(1), snap.BundleFetchDurationCount)
}

func TestDashboardService_BundleCacheFailsOpen(t *testing.T) {
	t.Parallel()

	items := &fakeItems{items: testItems()}
	bundles := newFakeCache()
	bundles.getErr = errors.New("redis down")
	bundles.setErr = errors.New("redis down")
	svc := newTestService(items, &fakeClicks{}, bundles, nil)

	resp, err := svc.Series(context.Background(), SeriesRequest{
		Scope:   testScope,
		Metrics: []engine.Metric{engine.MetricViews},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Series)
	assert.Equal(t, 1, items.calls)
}

func TestDashboardService_DefaultPreset(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeItems{}, &fakeClicks{}, nil, nil)

	resp, err := svc.Series(context.Background(), SeriesRequest{
		Scope:   testScope,
		Metrics: []engine.Metric{engine.MetricViews},
	})
	require.NoError(t, err)
	assert.Equal(t, "last30days", resp.Preset)
	assert.Equal(t, time.Date(2026, time.February, 17, 0, 0, 0, 0, time.UTC), resp.Window.Start)
	assert.Equal(t, 0.0, resp.Series[0].Summary.Current)
}
