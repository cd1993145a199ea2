package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/pulseboard/pulseboard/internal/model"
)

// timeline is one content item with its snapshots sorted by capture time.
// Snapshots sharing a capture time keep their ingestion order, so the last
// ingested one is the effective value at that instant.
type timeline struct {
	item    model.ContentItem
	snaps   []model.Snapshot
	initial *model.Snapshot
}

func newTimeline(item model.ContentItem) (*timeline, error) {
	if item.Current.HasNegative() {
		return nil, fmt.Errorf("%w: item %s live counters", ErrNegativeCounter, item.ID)
	}

	snaps := make([]model.Snapshot, len(item.Snapshots))
	copy(snaps, item.Snapshots)
	for i := range snaps {
		if snaps[i].HasNegative() {
			return nil, fmt.Errorf("%w: item %s snapshot at %s",
				ErrNegativeCounter, item.ID, snaps[i].CapturedAt.Format(time.RFC3339))
		}
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].CapturedAt.Before(snaps[j].CapturedAt)
	})

	item.Snapshots = nil
	tl := &timeline{item: item, snaps: snaps}
	tl.initial = tl.findInitial()
	return tl, nil
}

// findInitial returns the flagged initial snapshot, else the effective
// snapshot at the earliest capture time, else nil.
func (tl *timeline) findInitial() *model.Snapshot {
	if len(tl.snaps) == 0 {
		return nil
	}
	for i := range tl.snaps {
		if tl.snaps[i].IsInitial {
			return &tl.snaps[i]
		}
	}
	return &tl.snaps[tl.indexAt(tl.snaps[0].CapturedAt)]
}

// indexAt returns the index of the snapshot in effect at t, or -1.
func (tl *timeline) indexAt(t time.Time) int {
	i := sort.Search(len(tl.snaps), func(i int) bool {
		return tl.snaps[i].CapturedAt.After(t)
	})
	return i - 1
}

// valueAtOrBefore forward-fills counter at t.
func (tl *timeline) valueAtOrBefore(t time.Time, counter counterFunc) (int64, bool) {
	i := tl.indexAt(t)
	if i < 0 {
		return 0, false
	}
	return counter(tl.snaps[i].Counters), true
}

// initialValue is the counter at first observation, falling back to the
// live counter when the item has no snapshots.
func (tl *timeline) initialValue(counter counterFunc) int64 {
	if tl.initial != nil {
		return counter(tl.initial.Counters)
	}
	return counter(tl.item.Current)
}

// bracket is the counter used at a bucket boundary. Before the first
// snapshot it resolves to the initial value, so no growth is attributed to
// a bucket unless it has been observed within it.
func (tl *timeline) bracket(t time.Time, counter counterFunc) int64 {
	if v, ok := tl.valueAtOrBefore(t, counter); ok {
		return v
	}
	return tl.initialValue(counter)
}

// contribution is the item's share of a delta metric over iv.
func (tl *timeline) contribution(iv Interval, counter counterFunc) int64 {
	created := tl.item.CreatedAt
	switch {
	case created.After(iv.End):
		return 0
	case created.Before(iv.Start):
		return clampDelta(tl.bracket(iv.End, counter) - tl.bracket(iv.Start.Add(-Instant), counter))
	default:
		initial := tl.initialValue(counter)
		return initial + clampDelta(tl.bracket(iv.End, counter)-initial)
	}
}

func clampDelta(d int64) int64 {
	if d < 0 {
		return 0
	}
	return d
}

// ValueAtOrBefore returns the metric value of the most recent snapshot of
// itemID captured at or before t. ok is false when no such snapshot exists.
func (d *Dataset) ValueAtOrBefore(itemID string, t time.Time, m Metric) (value int64, ok bool, err error) {
	counter, err := counterFor(m)
	if err != nil {
		return 0, false, err
	}
	tl, err := d.timeline(itemID)
	if err != nil {
		return 0, false, err
	}
	value, ok = tl.valueAtOrBefore(t, counter)
	return value, ok, nil
}

// InitialValue returns the metric value of itemID at first observation.
func (d *Dataset) InitialValue(itemID string, m Metric) (int64, error) {
	counter, err := counterFor(m)
	if err != nil {
		return 0, err
	}
	tl, err := d.timeline(itemID)
	if err != nil {
		return 0, err
	}
	return tl.initialValue(counter), nil
}

func (d *Dataset) timeline(itemID string) (*timeline, error) {
	tl, ok := d.byID[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	return tl, nil
}
