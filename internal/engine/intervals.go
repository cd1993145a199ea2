package engine

import (
	"fmt"
	"time"
)

// Instant is the smallest representable step between two buckets.
const Instant = time.Nanosecond

// MaxIntervals bounds the output of GenerateIntervals. Callers are expected
// to coarsen the granularity (see CoarsenGranularity) well before this.
const MaxIntervals = 10000

// Window is a time range with both ends inclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that the window is well formed.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: end %s is before start %s",
			ErrInvalidWindow, w.End.Format(time.RFC3339Nano), w.Start.Format(time.RFC3339Nano))
	}
	return nil
}

// Span returns the inclusive length of the window.
func (w Window) Span() time.Duration {
	return w.End.Sub(w.Start) + Instant
}

// Previous returns the window of equal span ending immediately before w.
func (w Window) Previous() Window {
	return Window{
		Start: w.Start.Add(-w.Span()),
		End:   w.Start.Add(-Instant),
	}
}

// Interval is one bucket of a window.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Contains reports whether t falls inside the interval, ends inclusive.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// WholeWindow returns w as a single interval.
func WholeWindow(w Window) Interval {
	return Interval{Start: w.Start, End: w.End}
}

// GenerateIntervals splits w into contiguous calendar buckets at granularity g.
// Buckets are anchored to calendar boundaries in loc and clipped to w, so the
// first bucket starts at w.Start and the last ends at w.End. At least one
// interval is always returned for a valid window.
func GenerateIntervals(w Window, g Granularity, loc *time.Location) ([]Interval, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGranularity, g)
	}
	if loc == nil {
		loc = time.UTC
	}

	start := w.Start.In(loc)
	end := w.End.In(loc)

	intervals := make([]Interval, 0, 8)
	for cur := g.Floor(start); !cur.After(end); cur = g.Step(cur, 1) {
		if len(intervals) == MaxIntervals {
			return nil, fmt.Errorf("%w: window needs more than %d %s buckets", ErrTooManyIntervals, MaxIntervals, g)
		}

		bucketStart := cur
		if bucketStart.Before(start) {
			bucketStart = start
		}
		bucketEnd := g.Step(cur, 1).Add(-Instant)
		if bucketEnd.After(end) {
			bucketEnd = end
		}
		if bucketEnd.Before(bucketStart) {
			continue
		}

		intervals = append(intervals, Interval{
			Start: bucketStart,
			End:   bucketEnd,
			Label: g.Label(cur),
		})
	}

	return intervals, nil
}
