package engine

import (
	"fmt"

	"github.com/pulseboard/pulseboard/internal/model"
)

// Metric identifies a dashboard measure.
type Metric string

// Supported metrics.
const (
	MetricViews            Metric = "views"
	MetricLikes            Metric = "likes"
	MetricComments         Metric = "comments"
	MetricShares           Metric = "shares"
	MetricSaves            Metric = "saves"
	MetricPublishedItems   Metric = "published_items"
	MetricActiveAccounts   Metric = "active_accounts"
	MetricEngagementRate   Metric = "engagement_rate"
	MetricLinkClicks       Metric = "link_clicks"
	MetricUniqueLinkClicks Metric = "unique_link_clicks"
)

// Kind is the aggregation strategy of a metric.
type Kind int

// Aggregation strategies.
const (
	// KindDelta sums counter growth per bucket, plus the initial value of
	// items created inside the bucket.
	KindDelta Kind = iota + 1
	// KindEntityCount counts items created inside the bucket.
	KindEntityCount
	// KindDistinctCount counts distinct creators of items created inside the bucket.
	KindDistinctCount
	// KindRatio divides summed deltas; never averages per-item ratios.
	KindRatio
	// KindRawEvent counts click events inside the bucket.
	KindRawEvent
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindEntityCount:
		return "entity_count"
	case KindDistinctCount:
		return "distinct_count"
	case KindRatio:
		return "ratio"
	case KindRawEvent:
		return "raw_event"
	}
	return "unknown"
}

type counterFunc func(model.Counters) int64

type metricSpec struct {
	kind     Kind
	counter  counterFunc
	distinct bool
}

var metricSpecs = map[Metric]metricSpec{
	MetricViews:            {kind: KindDelta, counter: func(c model.Counters) int64 { return c.Views }},
	MetricLikes:            {kind: KindDelta, counter: func(c model.Counters) int64 { return c.Likes }},
	MetricComments:         {kind: KindDelta, counter: func(c model.Counters) int64 { return c.Comments }},
	MetricShares:           {kind: KindDelta, counter: func(c model.Counters) int64 { return c.Shares }},
	MetricSaves:            {kind: KindDelta, counter: func(c model.Counters) int64 { return c.Saves }},
	MetricPublishedItems:   {kind: KindEntityCount},
	MetricActiveAccounts:   {kind: KindDistinctCount},
	MetricEngagementRate:   {kind: KindRatio},
	MetricLinkClicks:       {kind: KindRawEvent},
	MetricUniqueLinkClicks: {kind: KindRawEvent, distinct: true},
}

// Metrics returns all supported metrics in display order.
func Metrics() []Metric {
	return []Metric{
		MetricViews, MetricLikes, MetricComments, MetricShares, MetricSaves,
		MetricPublishedItems, MetricActiveAccounts, MetricEngagementRate,
		MetricLinkClicks, MetricUniqueLinkClicks,
	}
}

// ParseMetric converts a string into a Metric.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := metricSpecs[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// Kind returns the aggregation strategy of m, or zero for unknown metrics.
func (m Metric) Kind() Kind {
	return metricSpecs[m].kind
}

// Additive reports whether bucket values of m sum to the whole-window value.
// Distinct counts and ratios are not additive.
func (m Metric) Additive() bool {
	spec, ok := metricSpecs[m]
	if !ok {
		return false
	}
	switch spec.kind {
	case KindDelta, KindEntityCount:
		return true
	case KindRawEvent:
		return !spec.distinct
	}
	return false
}

func lookupMetric(m Metric) (metricSpec, error) {
	spec, ok := metricSpecs[m]
	if !ok {
		return metricSpec{}, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	return spec, nil
}

// counterFor returns the counter accessor of a delta metric.
func counterFor(m Metric) (counterFunc, error) {
	spec, err := lookupMetric(m)
	if err != nil {
		return nil, err
	}
	if spec.kind != KindDelta {
		return nil, fmt.Errorf("%w: %q is not a snapshot counter", ErrUnknownMetric, m)
	}
	return spec.counter, nil
}
