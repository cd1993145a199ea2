package engine

import (
	"fmt"
	"time"
)

// Granularity is the calendar unit a window is bucketed by.
type Granularity string

// Supported granularities, finest first.
const (
	Hour    Granularity = "hour"
	Day     Granularity = "day"
	Week    Granularity = "week"
	Month   Granularity = "month"
	Quarter Granularity = "quarter"
	Year    Granularity = "year"
)

// WeekStart is the weekday week buckets begin on.
const WeekStart = time.Monday

// Granularities returns all supported granularities, finest first.
func Granularities() []Granularity {
	return []Granularity{Hour, Day, Week, Month, Quarter, Year}
}

// ParseGranularity converts a string into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if !g.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
	return g, nil
}

// Valid reports whether g is a supported granularity.
func (g Granularity) Valid() bool {
	switch g {
	case Hour, Day, Week, Month, Quarter, Year:
		return true
	}
	return false
}

// Floor returns the start of the calendar unit containing t, in t's location.
// Hours are floored in absolute time so the repeated hour of a DST fall-back
// keeps its own bucket. Days and coarser units start at local midnight, or at
// the first existing instant of the date when midnight is skipped.
func (g Granularity) Floor(t time.Time) time.Time {
	loc := t.Location()
	y, m, d := t.Date()

	switch g {
	case Hour:
		return t.Add(-(time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second +
			time.Duration(t.Nanosecond())))
	case Day:
		return startOfDate(y, m, d, loc)
	case Week:
		offset := (int(t.Weekday()) - int(WeekStart) + 7) % 7
		return startOfDate(y, m, d-offset, loc)
	case Month:
		return startOfDate(y, m, 1, loc)
	case Quarter:
		qm := ((int(m)-1)/3)*3 + 1
		return startOfDate(y, time.Month(qm), 1, loc)
	case Year:
		return startOfDate(y, time.January, 1, loc)
	}
	return t
}

// Step returns the start of the unit n units after the one starting at t.
// Calendar units are re-anchored on the target date rather than shifted by
// a fixed offset, so a midnight skipped once does not carry forward.
func (g Granularity) Step(t time.Time, n int) time.Time {
	loc := t.Location()
	y, m, d := t.Date()

	switch g {
	case Hour:
		return t.Add(time.Duration(n) * time.Hour)
	case Day:
		return startOfDate(y, m, d+n, loc)
	case Week:
		return startOfDate(y, m, d+7*n, loc)
	case Month:
		return startOfDate(y, m+time.Month(n), 1, loc)
	case Quarter:
		return startOfDate(y, m+time.Month(3*n), 1, loc)
	case Year:
		return startOfDate(y+n, time.January, 1, loc)
	}
	return t
}

// startOfDate returns the first instant of the calendar date y-m-d in loc.
// Out-of-range months and days are normalised as by time.Date.
func startOfDate(y int, m time.Month, d int, loc *time.Location) time.Time {
	// Noon always exists, so it pins down the normalised date.
	y, m, d = time.Date(y, m, d, 12, 0, 0, 0, loc).Date()

	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if _, _, td := t.Date(); td == d {
		return t
	}
	// Midnight fell in a gap and was normalised onto the previous day; the
	// date begins where that zone period ends.
	if _, end := t.ZoneBounds(); !end.IsZero() {
		if _, _, ed := end.Date(); ed == d {
			return end
		}
	}
	for i := 0; i < 24*60 && t.Day() != d; i++ {
		t = t.Add(time.Minute)
	}
	return t
}

// Label formats the unit starting at t for display.
func (g Granularity) Label(t time.Time) string {
	switch g {
	case Hour:
		label := t.Format("2006-01-02T15:00")
		// A repeated local hour gets its UTC offset to stay distinct.
		if t.Add(-time.Hour).Format("2006-01-02T15") == t.Format("2006-01-02T15") ||
			t.Add(time.Hour).Format("2006-01-02T15") == t.Format("2006-01-02T15") {
			label += t.Format("-07:00")
		}
		return label
	case Day, Week:
		return t.Format("2006-01-02")
	case Month:
		return t.Format("2006-01")
	case Quarter:
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case Year:
		return t.Format("2006")
	}
	return t.Format(time.RFC3339)
}

// coarsening caps the bucket count per granularity. Windows needing more
// buckets than the limit are regrouped at the next coarser unit.
var coarsening = map[Granularity]struct {
	limit int
	next  Granularity
}{
	Hour:    {limit: 168, next: Day},
	Day:     {limit: 90, next: Week},
	Week:    {limit: 52, next: Month},
	Month:   {limit: 120, next: Quarter},
	Quarter: {limit: 80, next: Year},
}

// CoarsenGranularity returns the finest granularity, starting from g, whose
// bucket count for w stays within the display ceiling.
func CoarsenGranularity(w Window, g Granularity, loc *time.Location) Granularity {
	if !g.Valid() || w.Validate() != nil {
		return g
	}
	if loc == nil {
		loc = time.UTC
	}

	for {
		rule, ok := coarsening[g]
		if !ok {
			return g
		}
		if countBuckets(w, g, loc, rule.limit) <= rule.limit {
			return g
		}
		g = rule.next
	}
}

// countBuckets counts the buckets of w at g, stopping once limit is exceeded.
func countBuckets(w Window, g Granularity, loc *time.Location, limit int) int {
	end := w.End.In(loc)
	count := 0
	for cur := g.Floor(w.Start.In(loc)); !cur.After(end); cur = g.Step(cur, 1) {
		count++
		if count > limit {
			break
		}
	}
	return count
}
