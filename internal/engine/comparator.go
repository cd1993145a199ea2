package engine

import (
	"fmt"
	"time"
)

// WithPreviousPeriod fills the previous-period fields of s.
//
// The previous window has the same span as s.Window and ends one instant
// before it starts. Its buckets are generated independently and paired with
// the current buckets by index; when calendar alignment yields a different
// bucket count (month buckets over unequal months), the current buckets are
// shifted back by the span instead. Values are aggregated over all, the
// unfiltered dataset, so the baseline reflects total historical activity.
//
// With hasComparison false every previous-period field is cleared.
func WithPreviousPeriod(s *Series, all *Dataset, loc *time.Location, hasComparison bool) error {
	if !hasComparison {
		for i := range s.Points {
			s.Points[i].PreviousValue = nil
			s.Points[i].PreviousLabel = ""
		}
		s.Summary.Previous = nil
		s.Summary.Delta = nil
		s.Summary.PercentChange = nil
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	prevWindow := s.Window.Previous()
	prevIntervals, err := GenerateIntervals(prevWindow, s.Granularity, loc)
	if err != nil {
		return fmt.Errorf("previous period intervals: %w", err)
	}
	if len(prevIntervals) != len(s.Points) {
		prevIntervals = shiftIntervals(s.Points, s.Window.Span(), s.Granularity, loc)
	}

	for i := range s.Points {
		value, err := all.Aggregate(s.Metric, prevIntervals[i])
		if err != nil {
			return fmt.Errorf("aggregate previous %s bucket %s: %w", s.Metric, prevIntervals[i].Label, err)
		}
		s.Points[i].PreviousValue = &value
		s.Points[i].PreviousLabel = prevIntervals[i].Label
	}

	previous, err := all.Aggregate(s.Metric, WholeWindow(prevWindow))
	if err != nil {
		return fmt.Errorf("aggregate previous %s window: %w", s.Metric, err)
	}

	delta := s.Summary.Current - previous
	change := PercentChange(s.Summary.Current, previous)
	s.Summary.Previous = &previous
	s.Summary.Delta = &delta
	s.Summary.PercentChange = &change

	return nil
}

// shiftIntervals moves each current bucket back by the window span. The
// shifted buckets no longer sit on calendar units, so coarse ones are
// labelled by the date they start on.
func shiftIntervals(points []Point, by time.Duration, g Granularity, loc *time.Location) []Interval {
	shifted := make([]Interval, len(points))
	for i, p := range points {
		start := p.Start.Add(-by).In(loc)
		label := Day.Label(start)
		if g == Hour {
			label = g.Label(g.Floor(start))
		}
		shifted[i] = Interval{
			Start: start,
			End:   p.End.Add(-by).In(loc),
			Label: label,
		}
	}
	return shifted
}
