package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tellquote/tellquote/internal/currency"
)

func newRatesCommand(deps Deps) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Print the current USD-based rate table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if deps.Rates == nil {
				return errNotConfigured
			}
			fetcher, err := deps.Rates(cmd.Context())
			if err != nil {
				return err
			}
			snap := fetcher.Fetch(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			fetched := "never"
			if snap.Timestamp != nil {
				fetched = snap.Timestamp.Format(time.RFC3339)
			}
			fmt.Fprintf(out, "source: %s (fetched %s)\n", snap.Source, fetched)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, code := range snap.Rates.SortedCodes() {
				name := ""
				if c, ok := currency.Lookup(code); ok {
					name = c.Name
				}
				fmt.Fprintf(tw, "%s\t%.4f\t%s\n", code, snap.Rates[code], name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
