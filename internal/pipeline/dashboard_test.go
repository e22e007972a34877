package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/quote"
)

const tolerance = 1e-6

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func mk(number string, status quote.Status, code string, cost, charge float64, created, start string) *quote.Quote {
	q := quote.New(day(created), quote.Defaults{})
	q.ID = number
	q.QuoteNumber = number
	q.Status = status
	q.Currency = code
	q.Project.StartDate = start
	if charge > 0 {
		q.Sections[quote.SectionProductionTeam].Subsections["Production"] = []quote.LineItem{
			{ID: number + "-1", Name: "Crew", Quantity: 1, Days: 1, Cost: cost, Charge: charge},
		}
	}
	return q
}

func fixtures() []*quote.Quote {
	a := mk("A", quote.StatusDraft, currency.USD, 600, 1000, "2025-06-01", "2025-07-01")
	a.NextFollowUpDate = ptr("2025-06-14")
	b := mk("B", quote.StatusSent, currency.GBP, 395, 790, "2025-06-10", "2025-11-01")
	c := mk("C", quote.StatusWon, currency.USD, 1000, 2000, "2025-05-01", "2025-08-01")
	saved := day("2025-05-20")
	c.SavedAt = &saved
	d := mk("D", quote.StatusDead, currency.USD, 100, 500, "2025-06-05", "2025-07-10")
	e := mk("E", quote.StatusApproved, currency.USD, 150, 300, "2024-12-01", "2025-06-20")
	f := mk("F", "", currency.USD, 0, 0, "2025-06-02", "")
	return []*quote.Quote{a, b, c, d, e, f, nil}
}

func ptr(s string) *string { return &s }

func column(t *testing.T, d Dashboard, status quote.Status) Column {
	t.Helper()
	for _, c := range d.Columns {
		if c.Status == status {
			return c
		}
	}
	t.Fatalf("column %s missing", status)
	return Column{}
}

func numbers(cards []Card) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.QuoteNumber)
	}
	return out
}

func TestBuildYear(t *testing.T) {
	d := Build(fixtures(), currency.FallbackRates(), Filter{Year: 2025, Currency: currency.USD}, now)

	assert.Equal(t, []int{2025, 2024}, d.Years)
	require.Len(t, d.Columns, 4)

	draft := column(t, d, quote.StatusDraft)
	assert.ElementsMatch(t, []string{"A", "F"}, numbers(draft.Quotes))
	assert.InDelta(t, 1000, draft.Total, tolerance)
	assert.Equal(t, "$1,000", draft.Formatted)

	sent := column(t, d, quote.StatusSent)
	assert.Equal(t, 1, sent.Count)
	assert.InDelta(t, 1000, sent.Total, tolerance, "GBP is converted into the dashboard currency")

	assert.InDelta(t, 2000, column(t, d, quote.StatusWon).Total, tolerance)
	assert.InDelta(t, 500, column(t, d, quote.StatusDead).Total, tolerance)

	assert.Equal(t, 1, d.Won.Count)
	assert.InDelta(t, 2000, d.Won.Revenue, tolerance)
	assert.InDelta(t, 1000, d.Won.Profit, tolerance)
	assert.InDelta(t, 50, d.Won.AvgMargin, tolerance)

	assert.Equal(t, 3, d.Pipeline.Count)
	assert.InDelta(t, 2000, d.Pipeline.Revenue, tolerance)
	assert.InDelta(t, 900, d.Pipeline.Profit, tolerance)
	assert.InDelta(t, 30, d.Pipeline.AvgMargin, tolerance)

	assert.Equal(t, 1, d.Attention)
}

func TestBuildForecasts(t *testing.T) {
	d := Build(fixtures(), currency.FallbackRates(), Filter{Year: 2025, Month: 1, Currency: currency.USD}, now)

	// Forecasts ignore the period filter and skip dead quotes.
	assert.InDelta(t, 2300, d.ThreeMonth.Won.Revenue, tolerance)
	assert.InDelta(t, 1150, d.ThreeMonth.Won.Profit, tolerance)
	assert.InDelta(t, 1000, d.ThreeMonth.Pipeline.Revenue, tolerance)
	assert.InDelta(t, 3300, d.ThreeMonth.Total.Revenue, tolerance)

	assert.InDelta(t, 2300, d.SixMonth.Won.Revenue, tolerance)
	assert.InDelta(t, 2000, d.SixMonth.Pipeline.Revenue, tolerance)
	assert.InDelta(t, 900, d.SixMonth.Pipeline.Profit, tolerance)
	assert.InDelta(t, 4300, d.SixMonth.Total.Revenue, tolerance)
	assert.InDelta(t, 2050, d.SixMonth.Total.Profit, tolerance)
}

func TestBuildMonthFilterAndOrder(t *testing.T) {
	d := Build(fixtures(), currency.FallbackRates(), Filter{Year: 2025, Month: 6, Currency: currency.USD}, now)
	assert.Equal(t, 0, column(t, d, quote.StatusWon).Count, "C is filed under its save month")
	assert.Equal(t, []string{"F", "A"}, numbers(column(t, d, quote.StatusDraft).Quotes), "most recently updated first")

	may := Build(fixtures(), currency.FallbackRates(), Filter{Year: 2025, Month: 5}, now)
	assert.Equal(t, []string{"C"}, numbers(column(t, may, quote.StatusWon).Quotes))
	assert.Equal(t, currency.USD, may.Currency)

	legacy := Build(fixtures(), currency.FallbackRates(), Filter{Year: 2024}, now)
	won := column(t, legacy, quote.StatusWon)
	require.Len(t, won.Quotes, 1)
	assert.Equal(t, quote.StatusApproved, won.Quotes[0].Status)
}

func TestBuildDisplayCurrency(t *testing.T) {
	d := Build(fixtures(), currency.FallbackRates(), Filter{Year: 2025, Currency: currency.GBP}, now)
	assert.Equal(t, currency.GBP, d.Currency)
	assert.InDelta(t, 790, column(t, d, quote.StatusSent).Total, tolerance)
	assert.InDelta(t, 790, column(t, d, quote.StatusDraft).Total, tolerance)
	assert.InDelta(t, 50, d.Won.AvgMargin, tolerance)
}

func TestBuildEmpty(t *testing.T) {
	d := Build(nil, nil, Filter{}, now)
	assert.Equal(t, 2025, d.Year)
	assert.Empty(t, d.Years)
	require.Len(t, d.Columns, 4)
	for _, c := range d.Columns {
		assert.NotNil(t, c.Quotes)
		assert.Zero(t, c.Total)
	}
	assert.Zero(t, d.Won.AvgMargin)
}

func TestExpiryHelpers(t *testing.T) {
	q := &quote.Quote{QuoteDate: "2025-06-01", ValidityDays: 30}
	expiry, ok := ExpiryDate(q)
	require.True(t, ok)
	assert.Equal(t, day("2025-07-01"), expiry)
	assert.False(t, IsExpired(q, now))
	assert.False(t, IsExpiringSoon(q, now, ExpiringSoonDays))

	soon := &quote.Quote{QuoteDate: "2025-06-10", ValidityDays: 7}
	assert.True(t, IsExpiringSoon(soon, now, ExpiringSoonDays))
	assert.False(t, IsExpired(soon, now))

	past := &quote.Quote{QuoteDate: "2025-05-01", ValidityDays: 30}
	assert.True(t, IsExpired(past, now))
	assert.False(t, IsExpiringSoon(past, now, ExpiringSoonDays))

	unset := &quote.Quote{QuoteDate: "2025-06-01"}
	expiry, ok = ExpiryDate(unset)
	require.True(t, ok)
	assert.Equal(t, day("2025-07-01"), expiry, "validity defaults to 30 days")

	_, ok = ExpiryDate(&quote.Quote{QuoteDate: "soon"})
	assert.False(t, ok)
	assert.False(t, IsExpired(&quote.Quote{}, now))
}

func TestFollowUpOverdue(t *testing.T) {
	assert.True(t, IsFollowUpOverdue(&quote.Quote{NextFollowUpDate: ptr("2025-06-14")}, now))
	assert.False(t, IsFollowUpOverdue(&quote.Quote{NextFollowUpDate: ptr("2025-06-20")}, now))
	assert.False(t, IsFollowUpOverdue(&quote.Quote{NextFollowUpDate: ptr("whenever")}, now))
	assert.False(t, IsFollowUpOverdue(&quote.Quote{}, now))
}

type staticQuotes struct {
	quotes []*quote.Quote
	err    error
}

func (s staticQuotes) All(context.Context) ([]*quote.Quote, error) { return s.quotes, s.err }

type staticRates struct{}

func (staticRates) Current(context.Context) currency.Rates { return currency.FallbackRates() }

func TestServiceDashboard(t *testing.T) {
	svc := NewService(staticQuotes{quotes: fixtures()}, staticRates{}, "GBP")
	svc.now = func() time.Time { return now }

	d, err := svc.Dashboard(context.Background(), Filter{Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, currency.GBP, d.Currency)

	boom := errors.New("db down")
	_, err = NewService(staticQuotes{err: boom}, nil, "").Dashboard(context.Background(), Filter{})
	assert.ErrorIs(t, err, boom)
}
