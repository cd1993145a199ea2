package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// Point is one bucket of a series.
type Point struct {
	Interval
	Value         float64  `json:"value"`
	PreviousValue *float64 `json:"previous_value,omitempty"`
	PreviousLabel string   `json:"previous_label,omitempty"`
	Padding       bool     `json:"padding,omitempty"`
}

// Series is the engine output for one metric.
type Series struct {
	Metric        Metric      `json:"metric"`
	Granularity   Granularity `json:"granularity"`
	Window        Window      `json:"window"`
	Points        []Point     `json:"points"`
	Summary       Summary     `json:"summary"`
	DomainCeiling float64     `json:"domain_ceiling"`
}

// Summary holds window-level totals. Previous-period fields are nil when the
// window has no comparison period.
type Summary struct {
	Current       float64     `json:"current"`
	Previous      *float64    `json:"previous,omitempty"`
	Delta         *float64    `json:"delta,omitempty"`
	PercentChange *Percentage `json:"percent_change,omitempty"`
}

// Percentage is a period-over-period change. New is set when the previous
// period was zero and the current one is not; Value is then zero.
type Percentage struct {
	Value float64
	New   bool
}

// PercentChange compares current against previous without ever producing
// NaN or Inf: 0 → 0 is 0%, 0 → x is New.
func PercentChange(current, previous float64) Percentage {
	if previous == 0 {
		if current > 0 {
			return Percentage{New: true}
		}
		return Percentage{}
	}
	return Percentage{Value: (current - previous) / previous * 100}
}

// MarshalJSON encodes New as the string "new" and anything else as a number.
func (p Percentage) MarshalJSON() ([]byte, error) {
	if p.New {
		return []byte(`"new"`), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts either a number or "new".
func (p *Percentage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "new" {
			return fmt.Errorf("invalid percentage %q", s)
		}
		*p = Percentage{New: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid percentage: %w", err)
	}
	*p = Percentage{Value: v}
	return nil
}

// Query describes one series computation.
type Query struct {
	Metric      Metric
	Window      Window
	Granularity Granularity
	Location    *time.Location

	// Compare adds previous-period values. Leave false for windows with no
	// natural predecessor, such as all time.
	Compare bool

	// Pad expands single-point series for line rendering.
	Pad bool
}

// Compute runs the full pipeline for one metric: bucket the window, aggregate
// each bucket over current, compare against the previous period over all,
// then derive the chart ceiling and optional padding. all is the unfiltered
// dataset; pass current when no display filter applies.
func Compute(current, all *Dataset, q Query) (*Series, error) {
	if _, err := lookupMetric(q.Metric); err != nil {
		return nil, err
	}
	if all == nil {
		all = current
	}

	intervals, err := GenerateIntervals(q.Window, q.Granularity, q.Location)
	if err != nil {
		return nil, err
	}

	points := make([]Point, len(intervals))
	for i, iv := range intervals {
		value, err := current.Aggregate(q.Metric, iv)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s bucket %s: %w", q.Metric, iv.Label, err)
		}
		points[i] = Point{Interval: iv, Value: value}
	}

	total, err := current.Aggregate(q.Metric, WholeWindow(q.Window))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s window: %w", q.Metric, err)
	}

	series := &Series{
		Metric:      q.Metric,
		Granularity: q.Granularity,
		Window:      q.Window,
		Points:      points,
		Summary:     Summary{Current: total},
	}

	if err := WithPreviousPeriod(series, all, q.Location, q.Compare); err != nil {
		return nil, err
	}

	series.DomainCeiling = DomainCeiling(series.Points)
	if q.Pad {
		series.Points = PadSinglePoint(series.Points, q.Granularity)
	}

	return series, nil
}
