// Package pipeline aggregates saved quotes into the sales dashboard: status
// columns, won and pipeline financials and start-date forecasts, all in one
// dashboard currency.
package pipeline

import (
	"math"
	"sort"
	"time"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/pricing"
	"github.com/tellquote/tellquote/internal/quote"
)

// ExpiringSoonDays is the warning window before a quote expires.
const ExpiringSoonDays = 7

// Columns lists the dashboard status columns in display order.
var Columns = []quote.Status{quote.StatusDraft, quote.StatusSent, quote.StatusWon, quote.StatusDead}

// Filter narrows the quotes counted by the dashboard. Month is 1-12, or 0
// for the whole year.
type Filter struct {
	Year     int
	Month    int
	Currency string
}

// Card is one quote on the board.
type Card struct {
	ID              string       `json:"id"`
	QuoteNumber     string       `json:"quoteNumber"`
	Client          string       `json:"client"`
	Title           string       `json:"title"`
	Status          quote.Status `json:"status"`
	TotalCharge     float64      `json:"totalCharge"`
	Formatted       string       `json:"formatted"`
	ExpiryDate      string       `json:"expiryDate,omitempty"`
	Expired         bool         `json:"expired"`
	ExpiringSoon    bool         `json:"expiringSoon"`
	FollowUpOverdue bool         `json:"followUpOverdue"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// Column groups the cards of one status.
type Column struct {
	Status    quote.Status `json:"status"`
	Count     int          `json:"count"`
	Total     float64      `json:"total"`
	Formatted string       `json:"formatted"`
	Quotes    []Card       `json:"quotes"`
}

// Stats summarises a group of quotes.
type Stats struct {
	Count     int     `json:"count"`
	Revenue   float64 `json:"revenue"`
	Profit    float64 `json:"profit"`
	AvgMargin float64 `json:"avgMargin"`
}

// Amount is a revenue/profit pair.
type Amount struct {
	Revenue float64 `json:"revenue"`
	Profit  float64 `json:"profit"`
}

func (a Amount) add(o Amount) Amount {
	return Amount{Revenue: a.Revenue + o.Revenue, Profit: a.Profit + o.Profit}
}

// Forecast splits upcoming business into confirmed and potential.
type Forecast struct {
	Won      Amount `json:"won"`
	Pipeline Amount `json:"pipeline"`
	Total    Amount `json:"total"`
}

// Dashboard is the full board.
type Dashboard struct {
	Currency   string   `json:"currency"`
	Year       int      `json:"year"`
	Month      int      `json:"month"`
	Years      []int    `json:"years"`
	Columns    []Column `json:"columns"`
	Won        Stats    `json:"won"`
	Pipeline   Stats    `json:"pipeline"`
	ThreeMonth Forecast `json:"threeMonth"`
	SixMonth   Forecast `json:"sixMonth"`
	Attention  int      `json:"needsAttention"`
}

type priced struct {
	q       *quote.Quote
	status  quote.Status
	revenue float64
	cost    float64
	margin  float64
}

// Build computes the dashboard. The status columns and financial stats only
// count quotes inside the filter; forecasts look at every quote.
func Build(quotes []*quote.Quote, rates currency.Rates, f Filter, now time.Time) Dashboard {
	display := f.Currency
	if !currency.Supported(display) {
		display = currency.USD
	}
	if f.Year == 0 {
		f.Year = now.Year()
	}
	d := Dashboard{Currency: display, Year: f.Year, Month: f.Month, Years: years(quotes)}

	all := make([]priced, 0, len(quotes))
	for _, q := range quotes {
		if q == nil {
			continue
		}
		all = append(all, price(q, rates, display))
	}

	var selected []priced
	for _, p := range all {
		if inPeriod(p.q, f) {
			selected = append(selected, p)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return recency(selected[i].q).After(recency(selected[j].q))
	})

	byStatus := make(map[quote.Status]*Column, len(Columns))
	for _, status := range Columns {
		d.Columns = append(d.Columns, Column{Status: status, Quotes: []Card{}})
	}
	for i := range d.Columns {
		byStatus[d.Columns[i].Status] = &d.Columns[i]
	}

	var wonMargin, pipelineMargin float64
	for _, p := range selected {
		column := byStatus[columnFor(p.status)]
		card := newCard(p, display, now)
		column.Quotes = append(column.Quotes, card)
		column.Count++
		column.Total += p.revenue
		if card.ExpiringSoon || card.FollowUpOverdue {
			d.Attention++
		}

		switch {
		case p.status.IsWon():
			d.Won.Count++
			d.Won.Revenue += p.revenue
			d.Won.Profit += p.revenue - p.cost
			wonMargin += p.margin
		case p.status == quote.StatusDraft || p.status == quote.StatusSent:
			d.Pipeline.Count++
			d.Pipeline.Revenue += p.revenue
			d.Pipeline.Profit += p.revenue - p.cost
			pipelineMargin += p.margin
		}
	}
	for i := range d.Columns {
		d.Columns[i].Formatted = currency.Format(d.Columns[i].Total, display, currency.WithDecimals(0))
	}
	if d.Won.Count > 0 {
		d.Won.AvgMargin = wonMargin / float64(d.Won.Count)
	}
	if d.Pipeline.Count > 0 {
		d.Pipeline.AvgMargin = pipelineMargin / float64(d.Pipeline.Count)
	}

	d.ThreeMonth, d.SixMonth = forecasts(all, now)
	return d
}

func price(q *quote.Quote, rates currency.Rates, display string) priced {
	totals := pricing.GrandTotalWithFees(q.Sections, q.Fees)
	from := q.Currency
	if from == "" {
		from = currency.USD
	}
	return priced{
		q:       q,
		status:  statusOf(q),
		revenue: currency.Convert(totals.TotalCharge, from, display, rates),
		cost:    currency.Convert(totals.TotalCost, from, display, rates),
		margin:  totals.Margin,
	}
}

func forecasts(all []priced, now time.Time) (Forecast, Forecast) {
	threeOut := now.AddDate(0, 3, 0)
	sixOut := now.AddDate(0, 6, 0)
	var won3, pipe3, won6, pipe6 Amount
	for _, p := range all {
		if p.status == quote.StatusDead {
			continue
		}
		start, ok := parseDate(p.q.Project.StartDate)
		if !ok || start.Before(now) {
			continue
		}
		amount := Amount{Revenue: p.revenue, Profit: p.revenue - p.cost}
		won := p.status.IsWon()
		if !start.After(threeOut) {
			if won {
				won3 = won3.add(amount)
			} else {
				pipe3 = pipe3.add(amount)
			}
		}
		if !start.After(sixOut) {
			if won {
				won6 = won6.add(amount)
			} else {
				pipe6 = pipe6.add(amount)
			}
		}
	}
	return Forecast{Won: won3, Pipeline: pipe3, Total: won3.add(pipe3)},
		Forecast{Won: won6, Pipeline: pipe6, Total: won6.add(pipe6)}
}

func newCard(p priced, display string, now time.Time) Card {
	q := p.q
	card := Card{
		ID:              q.ID,
		QuoteNumber:     q.QuoteNumber,
		Client:          q.Client.Company,
		Title:           q.Project.Title,
		Status:          p.status,
		TotalCharge:     p.revenue,
		Formatted:       currency.Format(p.revenue, display, currency.WithDecimals(0)),
		FollowUpOverdue: IsFollowUpOverdue(q, now),
		UpdatedAt:       q.UpdatedAt,
	}
	if expiry, ok := ExpiryDate(q); ok {
		card.ExpiryDate = expiry.Format(time.DateOnly)
		card.Expired = IsExpired(q, now)
		card.ExpiringSoon = !card.Expired && IsExpiringSoon(q, now, ExpiringSoonDays)
	}
	return card
}

func statusOf(q *quote.Quote) quote.Status {
	if q.Status == "" {
		return quote.StatusDraft
	}
	return q.Status
}

func columnFor(s quote.Status) quote.Status {
	switch {
	case s.IsWon():
		return quote.StatusWon
	case s == quote.StatusSent || s == quote.StatusDead:
		return s
	default:
		return quote.StatusDraft
	}
}

// filedAt is the date a quote is filed under: when it was saved, else when
// it was created.
func filedAt(q *quote.Quote) time.Time {
	if q.SavedAt != nil && !q.SavedAt.IsZero() {
		return q.SavedAt.UTC()
	}
	return q.CreatedAt.UTC()
}

func recency(q *quote.Quote) time.Time {
	if !q.UpdatedAt.IsZero() {
		return q.UpdatedAt
	}
	return filedAt(q)
}

func inPeriod(q *quote.Quote, f Filter) bool {
	at := filedAt(q)
	if at.Year() != f.Year {
		return false
	}
	return f.Month == 0 || int(at.Month()) == f.Month
}

func years(quotes []*quote.Quote) []int {
	seen := map[int]bool{}
	out := []int{}
	for _, q := range quotes {
		if q == nil {
			continue
		}
		y := filedAt(q).Year()
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// ExpiryDate is the quote date plus the validity period (30 days when
// unset).
func ExpiryDate(q *quote.Quote) (time.Time, bool) {
	date, ok := parseDate(q.QuoteDate)
	if !ok {
		return time.Time{}, false
	}
	days := q.ValidityDays
	if days <= 0 {
		days = 30
	}
	return date.AddDate(0, 0, days), true
}

// IsExpired reports whether now is past the expiry date.
func IsExpired(q *quote.Quote, now time.Time) bool {
	expiry, ok := ExpiryDate(q)
	return ok && now.After(expiry)
}

// IsExpiringSoon reports whether the quote expires within threshold days,
// counting partial days as whole ones.
func IsExpiringSoon(q *quote.Quote, now time.Time, threshold int) bool {
	expiry, ok := ExpiryDate(q)
	if !ok {
		return false
	}
	days := int(math.Ceil(expiry.Sub(now).Hours() / 24))
	return days > 0 && days <= threshold
}

// IsFollowUpOverdue reports whether the next follow-up date has passed.
func IsFollowUpOverdue(q *quote.Quote, now time.Time) bool {
	if q.NextFollowUpDate == nil {
		return false
	}
	date, ok := parseDate(*q.NextFollowUpDate)
	return ok && date.Before(now)
}
