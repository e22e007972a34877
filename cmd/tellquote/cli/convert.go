package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/rates"
)

type conversion struct {
	Amount    float64    `json:"amount"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Result    float64    `json:"result"`
	Formatted string     `json:"formatted"`
	Rate      float64    `json:"rate"`
	Source    string     `json:"source"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func newConvertCommand(deps Deps) *cobra.Command {
	var (
		amount   float64
		from, to string
		live     bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an amount between currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from = strings.ToUpper(strings.TrimSpace(from))
			to = strings.ToUpper(strings.TrimSpace(to))
			if len(from) != 3 || len(to) != 3 {
				return fmt.Errorf("convert: currency codes must have 3 letters, got %q and %q", from, to)
			}
			snap := rates.Snapshot{Rates: currency.FallbackRates(), Source: rates.SourceFallback}
			if live {
				if deps.Rates == nil {
					return errNotConfigured
				}
				fetcher, err := deps.Rates(cmd.Context())
				if err != nil {
					return err
				}
				snap = fetcher.Fetch(cmd.Context())
			}
			result := currency.Convert(amount, from, to, snap.Rates)
			out := conversion{
				Amount:    amount,
				From:      from,
				To:        to,
				Result:    result,
				Formatted: currency.Format(result, to),
				Rate:      currency.Convert(1, from, to, snap.Rates),
				Source:    snap.Source,
				Timestamp: snap.Timestamp,
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (rate %.6g, %s)\n",
				currency.Format(amount, from), out.Formatted, out.Rate, out.Source)
			return err
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount to convert")
	cmd.Flags().StringVar(&from, "from", currency.USD, "source currency code")
	cmd.Flags().StringVar(&to, "to", "", "target currency code")
	cmd.Flags().BoolVar(&live, "live", false, "use live rates instead of the fallback table")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
