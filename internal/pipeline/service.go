package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/quote"
)

// QuoteSource lists every saved quote.
type QuoteSource interface {
	All(ctx context.Context) ([]*quote.Quote, error)
}

// RateSource provides the conversion table.
type RateSource interface {
	Current(ctx context.Context) currency.Rates
}

// Service builds dashboards from the saved-quote library.
type Service struct {
	quotes          QuoteSource
	rates           RateSource
	defaultCurrency string
	now             func() time.Time
}

// NewService constructs the service. defaultCurrency applies when a request
// names none.
func NewService(quotes QuoteSource, rates RateSource, defaultCurrency string) *Service {
	if !currency.Supported(defaultCurrency) {
		defaultCurrency = currency.USD
	}
	return &Service{
		quotes:          quotes,
		rates:           rates,
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard loads the library and aggregates it.
func (s *Service) Dashboard(ctx context.Context, f Filter) (Dashboard, error) {
	if f.Currency == "" {
		f.Currency = s.defaultCurrency
	}
	quotes, err := s.quotes.All(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("pipeline: load quotes: %w", err)
	}
	rates := currency.FallbackRates()
	if s.rates != nil {
		rates = s.rates.Current(ctx)
	}
	return Build(quotes, rates, f, s.now()), nil
}
