package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPresetsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List date-filter presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := opts.presets()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLABEL\tKIND\tGRANULARITY\tCOMPARISON")
			for _, name := range presets.Names() {
				e := presets.Presets[name]
				marker := ""
				if name == presets.Default {
					marker = " *"
				}
				fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%t\n", name, marker, e.Label, e.Kind, e.Granularity, e.Comparison)
			}
			return w.Flush()
		},
	}
}
