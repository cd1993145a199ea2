package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/model"
)

// day returns midnight UTC of March n, 2026. March 2, 2026 is a Monday.
func day(n int) time.Time {
	return time.Date(2026, time.March, n, 0, 0, 0, 0, time.UTC)
}

func at(n, hour int) time.Time {
	return day(n).Add(time.Duration(hour) * time.Hour)
}

// days returns the window covering March from..to, whole days.
func days(from, to int) Window {
	return Window{Start: day(from), End: day(to + 1).Add(-Instant)}
}

func views(v int64) model.Counters {
	return model.Counters{Views: v}
}

func snap(t time.Time, c model.Counters) model.Snapshot {
	return model.Snapshot{CapturedAt: t, Counters: c}
}

func initialSnap(t time.Time, c model.Counters) model.Snapshot {
	return model.Snapshot{CapturedAt: t, Counters: c, IsInitial: true}
}

func item(id, creator string, created time.Time, snaps ...model.Snapshot) model.ContentItem {
	return model.ContentItem{
		ID:            id,
		CreatorHandle: creator,
		Platform:      model.PlatformTikTok,
		CreatedAt:     created,
		Snapshots:     snaps,
	}
}

func click(t time.Time, link, identity string) model.ClickEvent {
	return model.ClickEvent{LinkID: link, IdentityKey: identity, Timestamp: t}
}

func mustDataset(t *testing.T, items []model.ContentItem, clicks []model.ClickEvent) *Dataset {
	t.Helper()
	d, err := NewDataset(items, clicks)
	require.NoError(t, err)
	return d
}

func values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func previousValues(t *testing.T, points []Point) []float64 {
	t.Helper()
	out := make([]float64, len(points))
	for i, p := range points {
		require.NotNil(t, p.PreviousValue, "point %d has no previous value", i)
		out[i] = *p.PreviousValue
	}
	return out
}

func sum(vs []float64) float64 {
	var total float64
	for _, v := range vs {
		total += v
	}
	return total
}
