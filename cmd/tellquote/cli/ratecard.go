package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRateCardCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratecard",
		Short: "Import or export the rate card",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <file.csv>",
			Short: "Upsert rate card items from a CSV file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, closeFn, err := openRateCard(cmd, deps)
				if err != nil {
					return err
				}
				defer closeFn()

				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("ratecard import: %w", err)
				}
				defer f.Close()

				result, err := store.ImportCSV(cmd.Context(), f)
				if err != nil {
					return fmt.Errorf("ratecard import: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "created %d, updated %d, skipped %d\n", result.Created, result.Updated, result.Skipped)
				for _, msg := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", msg)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "export [file.csv]",
			Short: "Write the rate card as CSV to a file or stdout",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, closeFn, err := openRateCard(cmd, deps)
				if err != nil {
					return err
				}
				defer closeFn()

				var w io.Writer = cmd.OutOrStdout()
				if len(args) == 1 {
					f, err := os.Create(args[0])
					if err != nil {
						return fmt.Errorf("ratecard export: %w", err)
					}
					defer f.Close()
					w = f
				}
				if err := store.ExportCSV(cmd.Context(), w); err != nil {
					return fmt.Errorf("ratecard export: %w", err)
				}
				return nil
			},
		},
	)
	return cmd
}

func openRateCard(cmd *cobra.Command, deps Deps) (RateCardStore, func(), error) {
	if deps.RateCard == nil {
		return nil, nil, errNotConfigured
	}
	store, closeFn, err := deps.RateCard(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return store, closeFn, nil
}
