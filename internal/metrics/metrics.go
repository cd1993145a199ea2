// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Dashboard metrics
	IncSeriesComputed(status string) // status: "success", "invalid" or "error"
	ObserveSeriesDuration(duration time.Duration)
	IncBundleCacheHit()
	IncBundleCacheMiss()
	ObserveBundleFetchDuration(duration time.Duration)

	// Click ingestion metrics
	IncClickEventPublished(status string) // status: "success" or "dropped"
	IncClickEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveClickBatchSize(size int)
	ObserveClickBatchDuration(duration time.Duration)
	SetClickQueueDepth(depth int64)
	ObserveClickIngestLag(lag time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
