package handler

import (
	"fmt"
	"net/http"

	"github.com/pulseboard/pulseboard/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "pulseboard_series_total{status=\"success\"} %d\n", snap.SeriesComputed)
	writeMetric(w, "pulseboard_series_total{status=\"invalid\"} %d\n", snap.SeriesInvalid)
	writeMetric(w, "pulseboard_series_total{status=\"error\"} %d\n", snap.SeriesFailed)
	writeMetric(w, "pulseboard_series_duration_seconds_count %d\n", snap.SeriesDurationCount)
	writeMetric(w, "pulseboard_series_duration_seconds_sum %.6f\n", float64(snap.SeriesDurationTotalNs)/1e9)

	writeMetric(w, "pulseboard_bundle_cache_hits_total %d\n", snap.BundleCacheHits)
	writeMetric(w, "pulseboard_bundle_cache_misses_total %d\n", snap.BundleCacheMisses)
	writeMetric(w, "pulseboard_bundle_fetch_duration_seconds_count %d\n", snap.BundleFetchDurationCount)
	writeMetric(w, "pulseboard_bundle_fetch_duration_seconds_sum %.6f\n", float64(snap.BundleFetchDurationTotalNs)/1e9)

	writeMetric(w, "pulseboard_click_events_published_total{status=\"success\"} %d\n", snap.ClickEventsPublished)
	writeMetric(w, "pulseboard_click_events_published_total{status=\"dropped\"} %d\n", snap.ClickEventsDropped)

	writeMetric(w, "pulseboard_click_events_processed_total{status=\"success\"} %d\n", snap.ClickEventsProcessed)
	writeMetric(w, "pulseboard_click_events_processed_total{status=\"failed\"} %d\n", snap.ClickEventsFailed)
	writeMetric(w, "pulseboard_click_events_processed_total{status=\"dead_lettered\"} %d\n", snap.ClickEventsDeadLettered)

	writeMetric(w, "pulseboard_click_batches_total %d\n", snap.ClickBatchCount)
	writeMetric(w, "pulseboard_click_queue_depth %d\n", snap.ClickQueueDepth)
	writeMetric(w, "pulseboard_click_batch_duration_seconds_count %d\n", snap.ClickBatchDurationCount)
	writeMetric(w, "pulseboard_click_batch_duration_seconds_sum %.6f\n", float64(snap.ClickBatchDurationTotalNs)/1e9)
	writeMetric(w, "pulseboard_click_ingest_lag_seconds_count %d\n", snap.ClickIngestLagCount)
	writeMetric(w, "pulseboard_click_ingest_lag_seconds_sum %.6f\n", float64(snap.ClickIngestLagTotalNs)/1e9)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
