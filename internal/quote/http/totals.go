package quotehttp

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/pricing"
	"github.com/tellquote/tellquote/internal/quote"
	"github.com/tellquote/tellquote/internal/quote/export"
)

type sectionTotals struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Cost      float64      `json:"cost"`
	Charge    float64      `json:"charge"`
	Margin    float64      `json:"margin"`
	Band      pricing.Band `json:"band"`
	Formatted string       `json:"formatted"`
}

type totalsResponse struct {
	Version         uint64            `json:"version"`
	Currency        string            `json:"currency"`
	DisplayCurrency string            `json:"displayCurrency"`
	Totals          pricing.FeeTotals `json:"totals"`
	Band            pricing.Band      `json:"band"`
	WithPercentages pricing.Totals    `json:"withPercentages"`
	Sections        []sectionTotals   `json:"sections"`
	Formatted       map[string]string `json:"formatted"`
	ItemCount       int               `json:"itemCount"`
}

// totals reports the grand total in the quote currency, or converted into
// ?currency= when given. withPercentages adds percentage items such as
// contingency on top of the base totals.
func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	summary := store.Summary()
	q := store.Snapshot()

	display := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	if display == "" {
		display = q.Currency
	}
	if !currency.Supported(display) {
		httpx.RespondError(w, fmt.Errorf("%w: %q", quote.ErrInvalidCurrency, display))
		return
	}
	convert := func(v float64) float64 { return v }
	if display != q.Currency && h.rates != nil {
		rates := h.rates.Current(r.Context())
		from := q.Currency
		convert = func(v float64) float64 { return currency.Convert(v, from, display, rates) }
	}

	t := convertFeeTotals(summary.Totals, convert)
	var percentages []quote.LineItem
	q.EachItem(func(_, _ string, item *quote.LineItem) bool {
		if item.IsPercentage {
			percentages = append(percentages, *item)
		}
		return true
	})
	withPct := pricing.TotalWithPercentages(q.Sections, percentages)
	resp := totalsResponse{
		Version:         summary.Version,
		Currency:        q.Currency,
		DisplayCurrency: display,
		Totals:          t,
		Band:            pricing.MarginBand(t.Margin),
		WithPercentages: pricing.Totals{Cost: convert(withPct.Cost), Charge: convert(withPct.Charge)},
		ItemCount:       summary.ItemCount,
		Formatted: map[string]string{
			"baseCharge":       currency.Format(t.BaseCharge, display),
			"managementAmount": currency.Format(t.ManagementAmount, display),
			"commissionAmount": currency.Format(t.CommissionAmount, display),
			"discountAmount":   currency.Format(t.DiscountAmount, display),
			"totalCost":        currency.Format(t.TotalCost, display),
			"totalCharge":      currency.Format(t.TotalCharge, display),
			"profit":           currency.Format(t.Profit, display),
		},
	}
	for _, id := range q.OrderedSectionIDs() {
		st := summary.Sections[id]
		charge := convert(st.Charge)
		resp.Sections = append(resp.Sections, sectionTotals{
			ID:        id,
			Name:      q.DisplayName(id),
			Cost:      convert(st.Cost),
			Charge:    charge,
			Margin:    st.Margin(),
			Band:      pricing.MarginBand(st.Margin()),
			Formatted: currency.Format(charge, display),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// convertFeeTotals maps every amount through convert. Percentages and the
// distribution factor are currency independent.
func convertFeeTotals(t pricing.FeeTotals, convert func(float64) float64) pricing.FeeTotals {
	t.BaseCost = convert(t.BaseCost)
	t.BaseCharge = convert(t.BaseCharge)
	t.ManagementAmount = convert(t.ManagementAmount)
	t.CommissionAmount = convert(t.CommissionAmount)
	t.ChargeBeforeDiscount = convert(t.ChargeBeforeDiscount)
	t.DiscountAmount = convert(t.DiscountAmount)
	t.TotalCost = convert(t.TotalCost)
	t.TotalCharge = convert(t.TotalCharge)
	t.Profit = convert(t.Profit)
	return t
}

func (h *Handler) exportSession(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	h.writeWorkbook(w, r, store.Snapshot())
}

func (h *Handler) exportLibrary(w http.ResponseWriter, r *http.Request) {
	q, err := h.library.Get(r.Context(), chi.URLParam(r, "quoteID"))
	if err != nil {
		h.fail(w, "get library quote", err)
		return
	}
	h.writeWorkbook(w, r, q)
}

func (h *Handler) writeWorkbook(w http.ResponseWriter, r *http.Request, q *quote.Quote) {
	internal, _ := strconv.ParseBool(r.URL.Query().Get("internal"))
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, q, export.Options{Internal: internal}); err != nil {
		h.fail(w, "export quote", err)
		return
	}
	name := q.QuoteNumber
	if name == "" {
		name = "quote"
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
