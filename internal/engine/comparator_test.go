package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/model"
)

func TestWithPreviousPeriod(t *testing.T) {
	t.Parallel()

	d := mustDataset(t, []model.ContentItem{
		item("a", "alice", day(0),
			snap(day(0), views(0)),
			snap(at(2, 8), views(10)),
			snap(at(5, 8), views(30)),
			snap(at(9, 8), views(35)),
		),
	}, nil)

	s, err := Compute(d, d, Query{Metric: MetricViews, Window: days(8, 14), Granularity: Day, Compare: true})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 5, 0, 0, 0, 0, 0}, values(s.Points))
	assert.Equal(t, []float64{0, 10, 0, 0, 20, 0, 0}, previousValues(t, s.Points))
	assert.Equal(t, "2026-03-01", s.Points[0].PreviousLabel)
	assert.Equal(t, "2026-03-07", s.Points[6].PreviousLabel)

	require.NotNil(t, s.Summary.Previous)
	require.NotNil(t, s.Summary.Delta)
	require.NotNil(t, s.Summary.PercentChange)
	assert.Equal(t, 5.0, s.Summary.Current)
	assert.Equal(t, 30.0, *s.Summary.Previous)
	assert.Equal(t, -25.0, *s.Summary.Delta)
	assert.InDelta(t, -83.333, s.Summary.PercentChange.Value, 1e-3)
	assert.False(t, s.Summary.PercentChange.New)
}

func TestWithPreviousPeriod_UsesUnfilteredDataset(t *testing.T) {
	t.Parallel()

	a := item("a", "alice", day(0), snap(day(0), views(0)), snap(at(9, 1), views(10)))
	b := item("b", "bob", day(0), snap(day(0), views(0)), snap(at(2, 1), views(40)))
	b.Platform = model.PlatformInstagram

	all := mustDataset(t, []model.ContentItem{a, b}, nil)
	current := all.Filter(ItemFilter{Platforms: []model.Platform{model.PlatformTikTok}})

	s, err := Compute(current, all, Query{Metric: MetricViews, Window: days(8, 14), Granularity: Week, Compare: true})
	require.NoError(t, err)

	assert.Equal(t, 10.0, s.Summary.Current)
	require.NotNil(t, s.Summary.Previous)
	assert.Equal(t, 40.0, *s.Summary.Previous, "previous period ignores the display filter")
}

func TestWithPreviousPeriod_NoComparison(t *testing.T) {
	t.Parallel()

	d := mustDataset(t, []model.ContentItem{
		item("a", "alice", day(0), snap(day(0), views(0)), snap(at(2, 8), views(10))),
	}, nil)

	s, err := Compute(d, d, Query{Metric: MetricViews, Window: days(8, 14), Granularity: Day, Compare: true})
	require.NoError(t, err)
	require.NotNil(t, s.Points[0].PreviousValue)

	require.NoError(t, WithPreviousPeriod(s, d, time.UTC, false))

	for _, p := range s.Points {
		assert.Nil(t, p.PreviousValue)
		assert.Empty(t, p.PreviousLabel)
	}
	assert.Nil(t, s.Summary.Previous)
	assert.Nil(t, s.Summary.Delta)
	assert.Nil(t, s.Summary.PercentChange)
}

func TestWithPreviousPeriod_UnalignedMonths(t *testing.T) {
	t.Parallel()

	march := Window{
		Start: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC).Add(-Instant),
	}
	d := mustDataset(t, []model.ContentItem{
		item("a", "alice", time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
			snap(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), views(0)),
			snap(time.Date(2026, time.January, 30, 0, 0, 0, 0, time.UTC), views(5)),
			snap(time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC), views(25)),
		),
	}, nil)

	s, err := Compute(d, d, Query{Metric: MetricViews, Window: march, Granularity: Month, Compare: true})
	require.NoError(t, err)
	require.Len(t, s.Points, 1)

	// The 31-day previous window starts on January 29 and spans two calendar
	// months, so the single March bucket is paired with its shifted copy.
	require.NotNil(t, s.Points[0].PreviousValue)
	assert.Equal(t, 25.0, *s.Points[0].PreviousValue)
	assert.Equal(t, "2026-01-29", s.Points[0].PreviousLabel)
	assert.Equal(t, 25.0, *s.Summary.Previous)
}

func TestWithPreviousPeriod_ShiftedLabelsAreDistinct(t *testing.T) {
	t.Parallel()

	spring := Window{
		Start: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC).Add(-Instant),
	}
	d := mustDataset(t, nil, nil)

	s, err := Compute(d, d, Query{Metric: MetricViews, Window: spring, Granularity: Month, Compare: true})
	require.NoError(t, err)
	require.Len(t, s.Points, 3)

	// The 92-day previous window covers parts of four months, so the three
	// buckets are shifted copies and must not collapse onto one month label.
	seen := make(map[string]bool)
	for i, p := range s.Points {
		assert.False(t, seen[p.PreviousLabel], "point %d repeats label %q", i, p.PreviousLabel)
		seen[p.PreviousLabel] = true
		assert.Len(t, p.PreviousLabel, len("2006-01-02"))
	}
}

func TestPercentChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  float64
		previous float64
		want     Percentage
	}{
		{"growth", 15, 10, Percentage{Value: 50}},
		{"decline", 5, 20, Percentage{Value: -75}},
		{"flat", 7, 7, Percentage{}},
		{"zero to zero", 0, 0, Percentage{}},
		{"zero to positive", 12, 0, Percentage{New: true}},
		{"positive to zero", 0, 4, Percentage{Value: -100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PercentChange(tt.current, tt.previous))
		})
	}
}

func TestPercentage_JSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Summary{Current: 3, PercentChange: &Percentage{New: true}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"current":3,"percent_change":"new"}`, string(data))

	data, err = json.Marshal(Percentage{Value: 12.5})
	require.NoError(t, err)
	assert.Equal(t, `12.5`, string(data))

	var p Percentage
	require.NoError(t, json.Unmarshal([]byte(`"new"`), &p))
	assert.True(t, p.New)

	require.NoError(t, json.Unmarshal([]byte(`-40`), &p))
	assert.Equal(t, Percentage{Value: -40}, p)

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &p))
	assert.Error(t, json.Unmarshal([]byte(`true`), &p))
}
