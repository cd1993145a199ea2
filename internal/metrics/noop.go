package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncSeriesComputed is a no-op.
func (n *NoopRecorder) IncSeriesComputed(status string) {}

// ObserveSeriesDuration is a no-op.
func (n *NoopRecorder) ObserveSeriesDuration(duration time.Duration) {}

// IncBundleCacheHit is a no-op.
func (n *NoopRecorder) IncBundleCacheHit() {}

// IncBundleCacheMiss is a no-op.
func (n *NoopRecorder) IncBundleCacheMiss() {}

// ObserveBundleFetchDuration is a no-op.
func (n *NoopRecorder) ObserveBundleFetchDuration(duration time.Duration) {}

// IncClickEventPublished is a no-op.
func (n *NoopRecorder) IncClickEventPublished(status string) {}

// IncClickEventProcessed is a no-op.
func (n *NoopRecorder) IncClickEventProcessed(status string) {}

// ObserveClickBatchSize is a no-op.
func (n *NoopRecorder) ObserveClickBatchSize(size int) {}

// ObserveClickBatchDuration is a no-op.
func (n *NoopRecorder) ObserveClickBatchDuration(duration time.Duration) {}

// SetClickQueueDepth is a no-op.
func (n *NoopRecorder) SetClickQueueDepth(depth int64) {}

// ObserveClickIngestLag is a no-op.
func (n *NoopRecorder) ObserveClickIngestLag(lag time.Duration) {}
