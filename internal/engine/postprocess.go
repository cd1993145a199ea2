package engine

import "sort"

const (
	// outlierFactor is how far max may exceed q3 before the ceiling is capped.
	outlierFactor = 5
	// cappedFactor scales q3 into the capped ceiling.
	cappedFactor = 2
)

// PadSinglePoint expands a one-point series to three points by adding
// copies of it one granularity unit before and after. Longer and empty
// series are returned unchanged.
func PadSinglePoint(points []Point, g Granularity) []Point {
	if len(points) != 1 {
		return points
	}
	p := points[0]
	return []Point{p.shifted(g, -1), p, p.shifted(g, 1)}
}

func (p Point) shifted(g Granularity, n int) Point {
	unit := g.Step(g.Floor(p.Start), n)

	q := p
	q.Interval = Interval{
		Start: unit,
		End:   g.Step(unit, 1).Add(-Instant),
		Label: g.Label(unit),
	}
	if p.PreviousValue != nil {
		v := *p.PreviousValue
		q.PreviousValue = &v
	}
	q.Padding = true
	return q
}

// DomainCeiling suggests a chart ceiling for the current and previous values
// of points. See CappedCeiling.
func DomainCeiling(points []Point) float64 {
	values := make([]float64, 0, 2*len(points))
	for _, p := range points {
		if p.Padding {
			continue
		}
		values = append(values, p.Value)
		if p.PreviousValue != nil {
			values = append(values, *p.PreviousValue)
		}
	}
	return CappedCeiling(values)
}

// CappedCeiling returns max(values), or 2×q3 when max exceeds 5×q3 and q3 is
// positive, so that a single spike does not flatten the rest of a chart.
// q3 is the element at index floor(0.75×n) of the sorted values.
func CappedCeiling(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	maxValue := sorted[len(sorted)-1]
	q3 := sorted[len(sorted)*3/4]

	if q3 > 0 && maxValue > outlierFactor*q3 {
		return cappedFactor * q3
	}
	return maxValue
}
