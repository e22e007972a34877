// Package cli implements the tellquote command tree.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tellquote/tellquote/internal/ratecard"
	"github.com/tellquote/tellquote/internal/rates"
)

// RateFetcher resolves the current rate snapshot.
type RateFetcher interface {
	Fetch(ctx context.Context) rates.Snapshot
}

// RateCardStore imports and exports the rate card.
type RateCardStore interface {
	ImportCSV(ctx context.Context, r io.Reader) (ratecard.ImportResult, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// Deps supplies what the commands need. Constructors run lazily so a
// command only connects to the backends it uses.
type Deps struct {
	Out io.Writer
	Err io.Writer

	Serve    func(ctx context.Context) error
	Rates    func(ctx context.Context) (RateFetcher, error)
	RateCard func(ctx context.Context) (RateCardStore, func(), error)
	Jobs     func() (JobQueue, error)
}

var errNotConfigured = errors.New("cli: command not configured")

// NewRootCommand builds the command tree. Running it without a subcommand
// starts the HTTP server.
func NewRootCommand(deps Deps) *cobra.Command {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Err == nil {
		deps.Err = os.Stderr
	}
	serve := func(cmd *cobra.Command, _ []string) error {
		if deps.Serve == nil {
			return errNotConfigured
		}
		return deps.Serve(cmd.Context())
	}
	root := &cobra.Command{
		Use:           "tellquote",
		Short:         "Quote pricing and currency conversion service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}
	root.SetOut(deps.Out)
	root.SetErr(deps.Err)

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		newConvertCommand(deps),
		newRatesCommand(deps),
		newRateCardCommand(deps),
		newJobsCommand(deps),
	)
	return root
}
