// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/datefilter"
	"github.com/pulseboard/pulseboard/internal/engine"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/model"
)

// Service errors.
var (
	ErrMissingScope = errors.New("org id is required")
	ErrNoMetrics    = errors.New("at least one metric is required")
	ErrInvalidRange = errors.New("from and to must be given together")
)

const (
	defaultClickLimit   = 50000
	defaultFetchTimeout = 10 * time.Second
)

// ItemStore loads content items with their snapshots.
type ItemStore interface {
	ListByScope(ctx context.Context, scope model.Scope) ([]model.ContentItem, error)
}

// ClickStore loads click events.
type ClickStore interface {
	ListRecent(ctx context.Context, scope model.Scope, limit int) ([]model.ClickEvent, error)
}

// BundleCache caches the raw data of a scope between renders.
type BundleCache interface {
	GetBundle(ctx context.Context, scope model.Scope) (*model.Bundle, error)
	SetBundle(ctx context.Context, scope model.Scope, bundle *model.Bundle, ttl time.Duration) error
}

// DashboardConfig holds tunables for DashboardService.
type DashboardConfig struct {
	Location     *time.Location
	Presets      *datefilter.Presets
	CacheTTL     time.Duration
	ClickLimit   int
	FetchTimeout time.Duration

	// Now is overridden in tests.
	Now func() time.Time
}

// DashboardService renders metric series for a tenant scope.
type DashboardService struct {
	items   ItemStore
	clicks  ClickStore
	cache   BundleCache
	cfg     DashboardConfig
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewDashboardService creates a new DashboardService. bundles may be nil to
// disable caching.
func NewDashboardService(items ItemStore, clicks ClickStore, bundles BundleCache, cfg DashboardConfig, logger *slog.Logger, recorder metrics.Recorder) *DashboardService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Presets == nil {
		cfg.Presets = datefilter.Default()
	}
	if cfg.ClickLimit <= 0 {
		cfg.ClickLimit = defaultClickLimit
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DashboardService{
		items:   items,
		clicks:  clicks,
		cache:   bundles,
		cfg:     cfg,
		logger:  logger.With("component", "service.dashboard"),
		metrics: recorder,
	}
}

// SeriesRequest selects what to render.
type SeriesRequest struct {
	Scope   model.Scope
	Metrics []engine.Metric

	// Preset names a date filter; empty means the default preset, or custom
	// when From and To are set.
	Preset string
	From   *time.Time
	To     *time.Time

	// Granularity overrides the preset granularity when set.
	Granularity engine.Granularity
	Filter      engine.ItemFilter

	// Compare disables the previous period when false. Nil follows the preset.
	Compare *bool
	Pad     bool
}

// SeriesResponse is a rendered dashboard.
type SeriesResponse struct {
	Preset        string             `json:"preset"`
	Window        engine.Window      `json:"window"`
	Granularity   engine.Granularity `json:"granularity"`
	Timezone      string             `json:"timezone"`
	HasComparison bool               `json:"has_comparison"`
	Series        []*engine.Series   `json:"series"`
}

// IsInvalidInput reports whether err was caused by the request rather than
// by storage.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrMissingScope) ||
		errors.Is(err, ErrNoMetrics) ||
		errors.Is(err, ErrInvalidRange) ||
		datefilter.IsInvalidInput(err)
}

// Series loads the scope's data once and computes every requested metric
// over the same window concurrently.
func (s *DashboardService) Series(ctx context.Context, req SeriesRequest) (*SeriesResponse, error) {
	start := time.Now()
	resp, err := s.series(ctx, req)
	s.metrics.ObserveSeriesDuration(time.Since(start))

	switch {
	case err == nil:
		s.metrics.IncSeriesComputed("success")
	case IsInvalidInput(err):
		s.metrics.IncSeriesComputed("invalid")
	default:
		s.metrics.IncSeriesComputed("error")
	}
	return resp, err
}

func (s *DashboardService) series(ctx context.Context, req SeriesRequest) (*SeriesResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	bundle, err := s.loadBundle(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	all, err := engine.NewDataset(bundle.Items, bundle.Clicks)
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}

	res, err := s.resolveWindow(req, all)
	if err != nil {
		return nil, err
	}

	granularity := res.Granularity
	if req.Granularity != "" {
		granularity = req.Granularity
	}
	if !granularity.Valid() {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownGranularity, granularity)
	}
	granularity = engine.CoarsenGranularity(res.Window, granularity, s.cfg.Location)

	compare := res.HasComparison
	if req.Compare != nil && !*req.Compare {
		compare = false
	}

	current := all.Filter(req.Filter)

	out := make([]*engine.Series, len(req.Metrics))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range req.Metrics {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			series, err := engine.Compute(current, all, engine.Query{
				Metric:      m,
				Window:      res.Window,
				Granularity: granularity,
				Location:    s.cfg.Location,
				Compare:     compare,
				Pad:         req.Pad,
			})
			if err != nil {
				return fmt.Errorf("compute %s: %w", m, err)
			}
			out[i] = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("series computed",
		"scope", req.Scope.Key(),
		"preset", res.Preset,
		"granularity", granularity,
		"metrics", len(req.Metrics),
		"items", current.Len(),
		"clicks", current.ClickCount(),
	)

	return &SeriesResponse{
		Preset:        res.Preset,
		Window:        res.Window,
		Granularity:   granularity,
		Timezone:      s.cfg.Location.String(),
		HasComparison: compare,
		Series:        out,
	}, nil
}

func validateRequest(req SeriesRequest) error {
	if req.Scope.OrgID == "" {
		return ErrMissingScope
	}
	if len(req.Metrics) == 0 {
		return ErrNoMetrics
	}
	if (req.From == nil) != (req.To == nil) {
		return ErrInvalidRange
	}
	for _, m := range req.Metrics {
		if _, err := engine.ParseMetric(string(m)); err != nil {
			return err
		}
	}
	return nil
}

func (s *DashboardService) resolveWindow(req SeriesRequest, all *engine.Dataset) (datefilter.Resolution, error) {
	preset := req.Preset
	var custom *engine.Window
	if req.From != nil {
		custom = &engine.Window{Start: *req.From, End: *req.To}
		if preset == "" {
			preset = "custom"
		}
	}

	earliest, _ := all.Earliest()
	return s.cfg.Presets.Resolve(preset, s.cfg.Now(), s.cfg.Location, custom, earliest)
}

// loadBundle returns the scope's raw data, from cache when possible. Cache
// failures fall back to the stores.
func (s *DashboardService) loadBundle(ctx context.Context, scope model.Scope) (*model.Bundle, error) {
	if s.cache != nil {
		bundle, err := s.cache.GetBundle(ctx, scope)
		if err == nil {
			s.metrics.IncBundleCacheHit()
			return bundle, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("bundle cache read failed", "scope", scope.Key(), "error", err)
		}
		s.metrics.IncBundleCacheMiss()
	}

	bundle, err := s.fetchBundle(ctx, scope)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBundle(ctx, scope, bundle, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("bundle cache write failed", "scope", scope.Key(), "error", err)
		}
	}
	return bundle, nil
}

func (s *DashboardService) fetchBundle(ctx context.Context, scope model.Scope) (*model.Bundle, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	bundle := &model.Bundle{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.items.ListByScope(gctx, scope)
		if err != nil {
			return fmt.Errorf("load content items: %w", err)
		}
		bundle.Items = items
		return nil
	})
	g.Go(func() error {
		clicks, err := s.clicks.ListRecent(gctx, scope, s.cfg.ClickLimit)
		if err != nil {
			return fmt.Errorf("load click events: %w", err)
		}
		bundle.Clicks = clicks
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bundle.FetchedAt = s.cfg.Now().UTC()
	s.metrics.ObserveBundleFetchDuration(time.Since(start))
	return bundle, nil
}

// Presets returns the preset table in use.
func (s *DashboardService) Presets() *datefilter.Presets {
	return s.cfg.Presets
}
