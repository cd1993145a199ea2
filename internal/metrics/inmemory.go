package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	SeriesComputed        uint64
	SeriesInvalid         uint64
	SeriesFailed          uint64
	SeriesDurationCount   uint64
	SeriesDurationTotalNs int64

	BundleCacheHits            uint64
	BundleCacheMisses          uint64
	BundleFetchDurationCount   uint64
	BundleFetchDurationTotalNs int64

	ClickEventsPublished      uint64
	ClickEventsDropped        uint64
	ClickEventsProcessed      uint64
	ClickEventsFailed         uint64
	ClickEventsDeadLettered   uint64
	ClickBatchCount           uint64
	ClickBatchEventsTotal     uint64
	ClickBatchDurationCount   uint64
	ClickBatchDurationTotalNs int64
	ClickQueueDepth           int64
	ClickIngestLagCount       uint64
	ClickIngestLagTotalNs     int64
}

// InMemoryRecorder stores metrics in memory for tests and the /metrics endpoint.
type InMemoryRecorder struct {
	seriesComputed        uint64
	seriesInvalid         uint64
	seriesFailed          uint64
	seriesDurationCount   uint64
	seriesDurationTotalNs int64

	bundleCacheHits            uint64
	bundleCacheMisses          uint64
	bundleFetchDurationCount   uint64
	bundleFetchDurationTotalNs int64

	clickEventsPublished      uint64
	clickEventsDropped        uint64
	clickEventsProcessed      uint64
	clickEventsFailed         uint64
	clickEventsDeadLettered   uint64
	clickBatchCount           uint64
	clickBatchEventsTotal     uint64
	clickBatchDurationCount   uint64
	clickBatchDurationTotalNs int64
	clickQueueDepth           int64
	clickIngestLagCount       uint64
	clickIngestLagTotalNs     int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		SeriesComputed:        atomic.LoadUint64(&m.seriesComputed),
		SeriesInvalid:         atomic.LoadUint64(&m.seriesInvalid),
		SeriesFailed:          atomic.LoadUint64(&m.seriesFailed),
		SeriesDurationCount:   atomic.LoadUint64(&m.seriesDurationCount),
		SeriesDurationTotalNs: atomic.LoadInt64(&m.seriesDurationTotalNs),

		BundleCacheHits:            atomic.LoadUint64(&m.bundleCacheHits),
		BundleCacheMisses:          atomic.LoadUint64(&m.bundleCacheMisses),
		BundleFetchDurationCount:   atomic.LoadUint64(&m.bundleFetchDurationCount),
		BundleFetchDurationTotalNs: atomic.LoadInt64(&m.bundleFetchDurationTotalNs),

		ClickEventsPublished:      atomic.LoadUint64(&m.clickEventsPublished),
		ClickEventsDropped:        atomic.LoadUint64(&m.clickEventsDropped),
		ClickEventsProcessed:      atomic.LoadUint64(&m.clickEventsProcessed),
		ClickEventsFailed:         atomic.LoadUint64(&m.clickEventsFailed),
		ClickEventsDeadLettered:   atomic.LoadUint64(&m.clickEventsDeadLettered),
		ClickBatchCount:           atomic.LoadUint64(&m.clickBatchCount),
		ClickBatchEventsTotal:     atomic.LoadUint64(&m.clickBatchEventsTotal),
		ClickBatchDurationCount:   atomic.LoadUint64(&m.clickBatchDurationCount),
		ClickBatchDurationTotalNs: atomic.LoadInt64(&m.clickBatchDurationTotalNs),
		ClickQueueDepth:           atomic.LoadInt64(&m.clickQueueDepth),
		ClickIngestLagCount:       atomic.LoadUint64(&m.clickIngestLagCount),
		ClickIngestLagTotalNs:     atomic.LoadInt64(&m.clickIngestLagTotalNs),
	}
}

// IncSeriesComputed counts one series computation by outcome.
func (m *InMemoryRecorder) IncSeriesComputed(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.seriesComputed, 1)
	case "invalid":
		atomic.AddUint64(&m.seriesInvalid, 1)
	default:
		atomic.AddUint64(&m.seriesFailed, 1)
	}
}

// ObserveSeriesDuration records the duration of one series request.
func (m *InMemoryRecorder) ObserveSeriesDuration(duration time.Duration) {
	atomic.AddUint64(&m.seriesDurationCount, 1)
	atomic.AddInt64(&m.seriesDurationTotalNs, duration.Nanoseconds())
}

// IncBundleCacheHit increments bundle cache hit counter.
func (m *InMemoryRecorder) IncBundleCacheHit() {
	atomic.AddUint64(&m.bundleCacheHits, 1)
}

// IncBundleCacheMiss increments bundle cache miss counter.
func (m *InMemoryRecorder) IncBundleCacheMiss() {
	atomic.AddUint64(&m.bundleCacheMisses, 1)
}

// ObserveBundleFetchDuration records how long loading a bundle from Postgres took.
func (m *InMemoryRecorder) ObserveBundleFetchDuration(duration time.Duration) {
	atomic.AddUint64(&m.bundleFetchDurationCount, 1)
	atomic.AddInt64(&m.bundleFetchDurationTotalNs, duration.Nanoseconds())
}

// IncClickEventPublished counts a publish attempt by outcome.
func (m *InMemoryRecorder) IncClickEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.clickEventsPublished, 1)
		return
	}
	atomic.AddUint64(&m.clickEventsDropped, 1)
}

// IncClickEventProcessed counts a processed event by outcome.
func (m *InMemoryRecorder) IncClickEventProcessed(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.clickEventsProcessed, 1)
	case "dead_lettered":
		atomic.AddUint64(&m.clickEventsDeadLettered, 1)
	default:
		atomic.AddUint64(&m.clickEventsFailed, 1)
	}
}

// ObserveClickBatchSize records the size of a persisted batch.
func (m *InMemoryRecorder) ObserveClickBatchSize(size int) {
	atomic.AddUint64(&m.clickBatchCount, 1)
	atomic.AddUint64(&m.clickBatchEventsTotal, uint64(size))
}

// ObserveClickBatchDuration records batch processing time.
func (m *InMemoryRecorder) ObserveClickBatchDuration(duration time.Duration) {
	atomic.AddUint64(&m.clickBatchDurationCount, 1)
	atomic.AddInt64(&m.clickBatchDurationTotalNs, duration.Nanoseconds())
}

// SetClickQueueDepth stores the pending plus unread stream length.
func (m *InMemoryRecorder) SetClickQueueDepth(depth int64) {
	atomic.StoreInt64(&m.clickQueueDepth, depth)
}

// ObserveClickIngestLag records the delay between click and persistence.
func (m *InMemoryRecorder) ObserveClickIngestLag(lag time.Duration) {
	atomic.AddUint64(&m.clickIngestLagCount, 1)
	atomic.AddInt64(&m.clickIngestLagTotalNs, lag.Nanoseconds())
}
