package engine

import "fmt"

// Aggregate computes the value of metric m over one bucket.
//
// Delta metrics sum per-item growth: items created before the bucket add
// max(0, value at end - value just before start); items created inside it
// add their initial value plus any growth observed up to the bucket end;
// later items add nothing. Every per-item delta is clamped at zero.
func (d *Dataset) Aggregate(m Metric, iv Interval) (float64, error) {
	spec, err := lookupMetric(m)
	if err != nil {
		return 0, err
	}
	if iv.End.Before(iv.Start) {
		return 0, fmt.Errorf("%w: interval %q ends before it starts", ErrInvalidWindow, iv.Label)
	}

	switch spec.kind {
	case KindDelta:
		return float64(d.deltaSum(iv, spec.counter)), nil
	case KindEntityCount:
		return float64(d.publishedIn(iv)), nil
	case KindDistinctCount:
		return float64(d.activeCreatorsIn(iv)), nil
	case KindRatio:
		return d.engagementRate(iv), nil
	case KindRawEvent:
		if spec.distinct {
			return float64(d.distinctIdentitiesIn(iv)), nil
		}
		return float64(len(d.clicksIn(iv))), nil
	}

	return 0, fmt.Errorf("%w: %q has no aggregation strategy", ErrUnknownMetric, m)
}

func (d *Dataset) deltaSum(iv Interval, counter counterFunc) int64 {
	var total int64
	for _, tl := range d.timelines {
		total += tl.contribution(iv, counter)
	}
	return total
}

func (d *Dataset) publishedIn(iv Interval) int {
	count := 0
	for _, tl := range d.timelines {
		if iv.Contains(tl.item.CreatedAt) {
			count++
		}
	}
	return count
}

func (d *Dataset) activeCreatorsIn(iv Interval) int {
	seen := make(map[string]struct{})
	for _, tl := range d.timelines {
		if iv.Contains(tl.item.CreatedAt) {
			seen[tl.item.CreatorHandle] = struct{}{}
		}
	}
	return len(seen)
}

// engagementRate is (Δlikes + Δcomments) / Δviews × 100 over summed deltas.
func (d *Dataset) engagementRate(iv Interval) float64 {
	views := d.deltaSum(iv, metricSpecs[MetricViews].counter)
	if views == 0 {
		return 0
	}
	likes := d.deltaSum(iv, metricSpecs[MetricLikes].counter)
	comments := d.deltaSum(iv, metricSpecs[MetricComments].counter)
	return float64(likes+comments) / float64(views) * 100
}

func (d *Dataset) distinctIdentitiesIn(iv Interval) int {
	seen := make(map[string]struct{})
	for _, event := range d.clicksIn(iv) {
		seen[event.IdentityKey] = struct{}{}
	}
	return len(seen)
}
