package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/datefilter"
	"github.com/pulseboard/pulseboard/internal/engine"
	"github.com/pulseboard/pulseboard/internal/handler/dto"
	"github.com/pulseboard/pulseboard/internal/middleware"
	"github.com/pulseboard/pulseboard/internal/model"
	"github.com/pulseboard/pulseboard/internal/service"
)

const dateLayout = "2006-01-02"

// SeriesService renders dashboard series.
type SeriesService interface {
	Series(ctx context.Context, req service.SeriesRequest) (*service.SeriesResponse, error)
	Presets() *datefilter.Presets
}

// SeriesHandler handles dashboard series requests.
type SeriesHandler struct {
	service SeriesService
	loc     *time.Location
	logger  *slog.Logger
}

// NewSeriesHandler creates a new SeriesHandler. Date-only from/to values are
// interpreted in loc.
func NewSeriesHandler(svc SeriesService, loc *time.Location, logger *slog.Logger) *SeriesHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &SeriesHandler{
		service: svc,
		loc:     loc,
		logger:  logger.With("component", "handler.series"),
	}
}

// GetSeries handles GET /api/v1/series.
func (h *SeriesHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "MISSING_SCOPE", middleware.OrgIDHeader+" header is required")
		return
	}

	req, err := h.parseSeriesRequest(r.URL.Query(), scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	resp, err := h.service.Series(r.Context(), req)
	if err != nil {
		if service.IsInvalidInput(err) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			h.logger.Warn("series request timed out", "scope", scope.Key(), "error", err)
			writeError(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Timed out loading dashboard data")
			return
		}
		h.logger.Error("failed to compute series", "scope", scope.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute series")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListPresets handles GET /api/v1/presets.
func (h *SeriesHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	presets := h.service.Presets()

	out := dto.PresetListResponse{Data: make([]dto.PresetResponse, 0, len(presets.Presets))}
	for _, name := range presets.Names() {
		e := presets.Presets[name]
		out.Data = append(out.Data, dto.PresetResponse{
			Name:        name,
			Label:       e.Label,
			Kind:        string(e.Kind),
			Comparison:  e.Comparison,
			Granularity: string(e.Granularity),
			Default:     name == presets.Default,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *SeriesHandler) parseSeriesRequest(q url.Values, scope model.Scope) (service.SeriesRequest, error) {
	req := service.SeriesRequest{
		Scope:  scope,
		Preset: q.Get("preset"),
	}

	for _, m := range multiValue(q, "metric") {
		metric, err := engine.ParseMetric(m)
		if err != nil {
			return req, err
		}
		req.Metrics = append(req.Metrics, metric)
	}

	if g := q.Get("granularity"); g != "" {
		granularity, err := engine.ParseGranularity(g)
		if err != nil {
			return req, err
		}
		req.Granularity = granularity
	}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		if from == "" || to == "" {
			return req, errors.New("from and to must be given together")
		}
		start, err := h.parseInstant(from, false)
		if err != nil {
			return req, fmt.Errorf("invalid from: %w", err)
		}
		end, err := h.parseInstant(to, true)
		if err != nil {
			return req, fmt.Errorf("invalid to: %w", err)
		}
		req.From, req.To = &start, &end
	}

	for _, p := range multiValue(q, "platform") {
		platform := model.Platform(strings.ToLower(p))
		if !platform.Valid() {
			return req, fmt.Errorf("unknown platform %q", p)
		}
		req.Filter.Platforms = append(req.Filter.Platforms, platform)
	}
	req.Filter.CreatorHandles = multiValue(q, "creator")
	req.Filter.ItemIDs = multiValue(q, "item")
	req.Filter.LinkIDs = multiValue(q, "link")

	if v := q.Get("compare"); v != "" {
		compare, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid compare %q", v)
		}
		req.Compare = &compare
	}
	if v := q.Get("pad"); v != "" {
		pad, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid pad %q", v)
		}
		req.Pad = pad
	}

	return req, nil
}

// parseInstant accepts RFC 3339 timestamps or calendar dates. A date used as
// the end of a range covers the whole day.
func (h *SeriesHandler) parseInstant(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(dateLayout, s, h.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	if endOfDay {
		return d.AddDate(0, 0, 1).Add(-engine.Instant), nil
	}
	return d, nil
}

// multiValue collects repeated and comma-separated query values.
func multiValue(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
