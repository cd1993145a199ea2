package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/engine"
	"github.com/pulseboard/pulseboard/internal/model"
	"github.com/pulseboard/pulseboard/internal/service"
)

const dateLayout = "2006-01-02"

type seriesOptions struct {
	dataFile    string
	metrics     []string
	preset      string
	from        string
	to          string
	granularity string
	compare     bool
	pad         bool
	platforms   []string
	creators    []string
	format      string
}

func newSeriesCmd(root *rootOptions) *cobra.Command {
	opts := &seriesOptions{}

	cmd := &cobra.Command{
		Use:   "series",
		Short: "Compute metric series from a dataset file",
		Example: `  pulse series --data dataset.json --metric views --from 2026-01-01 --to 2026-01-07
  pulse series --data dataset.json --metric views,likes --preset last30days --tz Europe/Paris`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeries(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dataFile, "data", "d", "", "dataset JSON file")
	cmd.Flags().StringSliceVarP(&opts.metrics, "metric", "m", []string{string(engine.MetricViews)}, "metrics to compute")
	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "", "date preset (default is the preset table default)")
	cmd.Flags().StringVar(&opts.from, "from", "", "range start, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&opts.to, "to", "", "range end, YYYY-MM-DD (inclusive) or RFC 3339")
	cmd.Flags().StringVarP(&opts.granularity, "granularity", "g", "", "bucket size: hour, day, week, month, quarter, year")
	cmd.Flags().BoolVar(&opts.compare, "compare", true, "include the previous period")
	cmd.Flags().BoolVar(&opts.pad, "pad", false, "pad single-point series")
	cmd.Flags().StringSliceVar(&opts.platforms, "platform", nil, "only items from these platforms")
	cmd.Flags().StringSliceVar(&opts.creators, "creator", nil, "only items from these creator handles")
	cmd.Flags().StringVarP(&opts.format, "output", "o", "json", "output format: json or table")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runSeries(cmd *cobra.Command, root *rootOptions, opts *seriesOptions) error {
	loc, err := root.location()
	if err != nil {
		return err
	}
	presets, err := root.presets()
	if err != nil {
		return err
	}
	now, err := root.clock()
	if err != nil {
		return err
	}
	if opts.format != "json" && opts.format != "table" {
		return fmt.Errorf("unknown output format %q", opts.format)
	}

	bundle, err := readBundle(opts.dataFile)
	if err != nil {
		return err
	}

	req, err := opts.request(loc)
	if err != nil {
		return err
	}

	store := bundleStore{bundle: bundle}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := service.NewDashboardService(store, store, nil, service.DashboardConfig{
		Location: loc,
		Presets:  presets,
		Now:      now,
	}, logger, nil)

	resp, err := svc.Series(context.Background(), req)
	if err != nil {
		return err
	}

	if opts.format == "table" {
		return writeTable(cmd.OutOrStdout(), resp)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func (o *seriesOptions) request(loc *time.Location) (service.SeriesRequest, error) {
	req := service.SeriesRequest{
		Scope:   model.Scope{OrgID: "local"},
		Preset:  o.preset,
		Compare: &o.compare,
		Pad:     o.pad,
		Filter:  engine.ItemFilter{CreatorHandles: o.creators},
	}

	for _, m := range o.metrics {
		metric, err := engine.ParseMetric(m)
		if err != nil {
			return req, err
		}
		req.Metrics = append(req.Metrics, metric)
	}

	if o.granularity != "" {
		g, err := engine.ParseGranularity(o.granularity)
		if err != nil {
			return req, err
		}
		req.Granularity = g
	}

	for _, p := range o.platforms {
		platform := model.Platform(p)
		if !platform.Valid() {
			return req, fmt.Errorf("unknown platform %q", p)
		}
		req.Filter.Platforms = append(req.Filter.Platforms, platform)
	}

	if o.from != "" || o.to != "" {
		if o.from == "" || o.to == "" {
			return req, fmt.Errorf("--from and --to must be given together")
		}
		from, err := parseInstant(o.from, loc, false)
		if err != nil {
			return req, err
		}
		to, err := parseInstant(o.to, loc, true)
		if err != nil {
			return req, err
		}
		req.From, req.To = &from, &to
	}

	return req, nil
}

func parseInstant(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	if endOfDay {
		return d.AddDate(0, 0, 1).Add(-engine.Instant), nil
	}
	return d, nil
}

func readBundle(path string) (*model.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var bundle model.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return &bundle, nil
}

// bundleStore serves a dataset file as both item and click store.
type bundleStore struct {
	bundle *model.Bundle
}

func (s bundleStore) ListByScope(ctx context.Context, scope model.Scope) ([]model.ContentItem, error) {
	return s.bundle.Items, nil
}

func (s bundleStore) ListRecent(ctx context.Context, scope model.Scope, limit int) ([]model.ClickEvent, error) {
	clicks := s.bundle.Clicks
	if len(clicks) > limit {
		clicks = clicks[len(clicks)-limit:]
	}
	return clicks, nil
}

func writeTable(out io.Writer, resp *service.SeriesResponse) error {
	fmt.Fprintf(out, "preset %s, %s to %s, by %s (%s)\n\n",
		resp.Preset,
		resp.Window.Start.Format(time.RFC3339),
		resp.Window.End.Format(time.RFC3339),
		resp.Granularity,
		resp.Timezone,
	)

	for _, s := range resp.Series {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "%s\t\t\t\n", s.Metric)
		fmt.Fprintln(w, "BUCKET\tVALUE\tPREVIOUS\t")
		for _, p := range s.Points {
			if p.Padding {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", p.Label, formatValue(p.Value), formatOptional(p.PreviousValue))
		}
		fmt.Fprintf(w, "TOTAL\t%s\t%s\t\n", formatValue(s.Summary.Current), formatOptional(s.Summary.Previous))
		if s.Summary.PercentChange != nil {
			fmt.Fprintf(w, "CHANGE\t%s\t\t\n", formatPercent(*s.Summary.PercentChange))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatValue(*v)
}

func formatPercent(p engine.Percentage) string {
	if p.New {
		return "new"
	}
	return strconv.FormatFloat(p.Value, 'f', 1, 64) + "%"
}
