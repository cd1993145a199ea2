// Package datefilter resolves dashboard date-filter presets into concrete
// time windows.
package datefilter

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulseboard/pulseboard/internal/engine"
)

//go:embed presets.yaml
var defaultPresets []byte

var (
	ErrUnknownPreset      = errors.New("unknown date preset")
	ErrMissingCustomRange = errors.New("custom preset requires a from/to range")
	ErrInvalidPreset      = errors.New("invalid preset definition")
)

// Kind selects how a preset computes its window.
type Kind string

const (
	KindDays        Kind = "days"
	KindMonthToDate Kind = "month_to_date"
	KindYearToDate  Kind = "year_to_date"
	KindAllTime     Kind = "all_time"
	KindCustom      Kind = "custom"
)

// Effect is the window a preset resolves to.
type Effect struct {
	Label       string             `yaml:"label"`
	Kind        Kind               `yaml:"kind"`
	Days        int                `yaml:"days,omitempty"`
	OffsetDays  int                `yaml:"offset_days,omitempty"`
	Comparison  bool               `yaml:"comparison"`
	Granularity engine.Granularity `yaml:"granularity,omitempty"`
}

// Presets is a preset table.
type Presets struct {
	Default string            `yaml:"default"`
	Presets map[string]Effect `yaml:"presets"`
}

// Resolution is a resolved preset.
type Resolution struct {
	Preset        string             `json:"preset"`
	Window        engine.Window      `json:"window"`
	HasComparison bool               `json:"has_comparison"`
	Granularity   engine.Granularity `json:"granularity"`
}

// Default returns the built-in preset table.
func Default() *Presets {
	p, err := Parse(defaultPresets)
	if err != nil {
		panic(fmt.Sprintf("datefilter: built-in presets: %v", err))
	}
	return p
}

// Load reads a preset table from path. An empty path returns Default.
func Load(path string) (*Presets, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML preset table.
func Parse(data []byte) (*Presets, error) {
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every preset definition.
func (p *Presets) Validate() error {
	if len(p.Presets) == 0 {
		return fmt.Errorf("%w: no presets defined", ErrInvalidPreset)
	}
	if _, ok := p.Presets[p.Default]; !ok {
		return fmt.Errorf("%w: default preset %q is not defined", ErrInvalidPreset, p.Default)
	}

	for name, e := range p.Presets {
		switch e.Kind {
		case KindDays:
			if e.Days < 1 {
				return fmt.Errorf("%w: %s needs days >= 1", ErrInvalidPreset, name)
			}
			if e.OffsetDays < 0 {
				return fmt.Errorf("%w: %s has a negative offset", ErrInvalidPreset, name)
			}
		case KindMonthToDate, KindYearToDate, KindAllTime, KindCustom:
		default:
			return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidPreset, name, e.Kind)
		}
		if e.Granularity != "" && !e.Granularity.Valid() {
			return fmt.Errorf("%w: %s has unknown granularity %q", ErrInvalidPreset, name, e.Granularity)
		}
	}
	return nil
}

// Names returns the preset names in sorted order.
func (p *Presets) Names() []string {
	names := make([]string, 0, len(p.Presets))
	for name := range p.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve turns a preset into a window relative to now in loc. An empty name
// selects the default preset. custom is required for custom presets and
// ignored otherwise. earliest bounds all-time windows; a zero value means
// there is no data and the window collapses to today.
func (p *Presets) Resolve(name string, now time.Time, loc *time.Location, custom *engine.Window, earliest time.Time) (Resolution, error) {
	if name == "" {
		name = p.Default
	}
	e, ok := p.Presets[name]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	if loc == nil {
		loc = time.UTC
	}

	now = now.In(loc)
	today := startOfDay(now)
	endOfToday := today.AddDate(0, 0, 1).Add(-engine.Instant)

	var w engine.Window
	switch e.Kind {
	case KindDays:
		end := today.AddDate(0, 0, 1-e.OffsetDays).Add(-engine.Instant)
		start := today.AddDate(0, 0, -(e.Days - 1 + e.OffsetDays))
		w = engine.Window{Start: start, End: end}
	case KindMonthToDate:
		w = engine.Window{Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc), End: endOfToday}
	case KindYearToDate:
		w = engine.Window{Start: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc), End: endOfToday}
	case KindAllTime:
		start := today
		if !earliest.IsZero() && earliest.Before(start) {
			start = startOfDay(earliest.In(loc))
		}
		w = engine.Window{Start: start, End: endOfToday}
	case KindCustom:
		if custom == nil {
			return Resolution{}, fmt.Errorf("%w: %s", ErrMissingCustomRange, name)
		}
		if err := custom.Validate(); err != nil {
			return Resolution{}, err
		}
		w = *custom
	default:
		return Resolution{}, fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidPreset, name, e.Kind)
	}

	g := e.Granularity
	if g == "" {
		g = engine.Day
	}

	return Resolution{
		Preset:        name,
		Window:        w,
		HasComparison: e.Comparison,
		Granularity:   g,
	}, nil
}

// IsInvalidInput reports whether err was caused by a bad preset request.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrUnknownPreset) || errors.Is(err, ErrMissingCustomRange) || engine.IsInvalidInput(err)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
