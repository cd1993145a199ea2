package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/pulseboard/pulseboard/internal/model"
)

// Dataset is the prepared, read-only input of the engine. Snapshots are
// sorted once per item and click events once by timestamp, so repeated
// lookups across buckets and metrics are binary searches. A Dataset is safe
// for concurrent use.
type Dataset struct {
	timelines []*timeline
	byID      map[string]*timeline
	clicks    []model.ClickEvent
}

// NewDataset validates and indexes items and click events. Inputs are not
// modified. Negative counters and duplicate item ids are rejected.
func NewDataset(items []model.ContentItem, clicks []model.ClickEvent) (*Dataset, error) {
	d := &Dataset{
		timelines: make([]*timeline, 0, len(items)),
		byID:      make(map[string]*timeline, len(items)),
	}

	for _, item := range items {
		if _, dup := d.byID[item.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		tl, err := newTimeline(item)
		if err != nil {
			return nil, err
		}
		d.timelines = append(d.timelines, tl)
		d.byID[item.ID] = tl
	}

	d.clicks = make([]model.ClickEvent, len(clicks))
	copy(d.clicks, clicks)
	sort.SliceStable(d.clicks, func(i, j int) bool {
		return d.clicks[i].Timestamp.Before(d.clicks[j].Timestamp)
	})

	return d, nil
}

// ItemFilter narrows a dataset to a display subset. Empty fields match all.
type ItemFilter struct {
	Platforms      []model.Platform `json:"platforms,omitempty"`
	CreatorHandles []string         `json:"creator_handles,omitempty"`
	ItemIDs        []string         `json:"item_ids,omitempty"`
	LinkIDs        []string         `json:"link_ids,omitempty"`
}

// IsZero reports whether the filter matches everything.
func (f ItemFilter) IsZero() bool {
	return len(f.Platforms) == 0 && len(f.CreatorHandles) == 0 &&
		len(f.ItemIDs) == 0 && len(f.LinkIDs) == 0
}

func (f ItemFilter) matchItem(item model.ContentItem) bool {
	if len(f.Platforms) > 0 && !contains(f.Platforms, item.Platform) {
		return false
	}
	if len(f.CreatorHandles) > 0 && !contains(f.CreatorHandles, item.CreatorHandle) {
		return false
	}
	if len(f.ItemIDs) > 0 && !contains(f.ItemIDs, item.ID) {
		return false
	}
	return true
}

func (f ItemFilter) matchClick(event model.ClickEvent) bool {
	return len(f.LinkIDs) == 0 || contains(f.LinkIDs, event.LinkID)
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Filter returns the subset of d matching f. The subset shares the sorted
// snapshot arrays of d.
func (d *Dataset) Filter(f ItemFilter) *Dataset {
	if f.IsZero() {
		return d
	}

	sub := &Dataset{
		timelines: make([]*timeline, 0, len(d.timelines)),
		byID:      make(map[string]*timeline),
		clicks:    make([]model.ClickEvent, 0, len(d.clicks)),
	}
	for _, tl := range d.timelines {
		if f.matchItem(tl.item) {
			sub.timelines = append(sub.timelines, tl)
			sub.byID[tl.item.ID] = tl
		}
	}
	for _, event := range d.clicks {
		if f.matchClick(event) {
			sub.clicks = append(sub.clicks, event)
		}
	}
	return sub
}

// Len returns the number of content items.
func (d *Dataset) Len() int {
	return len(d.timelines)
}

// ClickCount returns the number of click events.
func (d *Dataset) ClickCount() int {
	return len(d.clicks)
}

// Earliest returns the earliest item creation or click timestamp.
func (d *Dataset) Earliest() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, tl := range d.timelines {
		if !found || tl.item.CreatedAt.Before(earliest) {
			earliest = tl.item.CreatedAt
			found = true
		}
	}
	if len(d.clicks) > 0 && (!found || d.clicks[0].Timestamp.Before(earliest)) {
		earliest = d.clicks[0].Timestamp
		found = true
	}
	return earliest, found
}

// clicksIn returns the click events with timestamps inside iv.
func (d *Dataset) clicksIn(iv Interval) []model.ClickEvent {
	lo := sort.Search(len(d.clicks), func(i int) bool {
		return !d.clicks[i].Timestamp.Before(iv.Start)
	})
	hi := sort.Search(len(d.clicks), func(i int) bool {
		return d.clicks[i].Timestamp.After(iv.End)
	})
	if hi < lo {
		return nil
	}
	return d.clicks[lo:hi]
}
