// Package cli implements the pulse command, an offline runner for the
// dashboard engine over a dataset file.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/datefilter"
)

type rootOptions struct {
	timezone    string
	presetsFile string
	now         string
}

func (o *rootOptions) location() (*time.Location, error) {
	loc, err := time.LoadLocation(o.timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", o.timezone, err)
	}
	return loc, nil
}

func (o *rootOptions) presets() (*datefilter.Presets, error) {
	return datefilter.Load(o.presetsFile)
}

// clock returns the reference time presets resolve against.
func (o *rootOptions) clock() (func() time.Time, error) {
	if o.now == "" {
		return time.Now, nil
	}
	t, err := time.Parse(time.RFC3339, o.now)
	if err != nil {
		return nil, fmt.Errorf("invalid --now %q: %w", o.now, err)
	}
	return func() time.Time { return t }, nil
}

// NewRootCmd builds the pulse command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Offline analytics series for social content",
		Long: `Pulse computes dashboard series from a dataset file without a database.

The dataset is the JSON form of a scope bundle: content items with their
counter snapshots, plus link click events. Buckets and presets follow the
same rules as the API server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.timezone, "tz", "UTC", "IANA timezone for calendar buckets")
	rootCmd.PersistentFlags().StringVar(&opts.presetsFile, "presets", "", "YAML preset table (default is the built-in table)")
	rootCmd.PersistentFlags().StringVar(&opts.now, "now", "", "reference time for presets, RFC 3339 (default is the current time)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(newSeriesCmd(opts))
	rootCmd.AddCommand(newPresetsCmd(opts))

	return rootCmd
}

// Execute runs the root command
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}
