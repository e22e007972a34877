package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/pricing"
	"github.com/tellquote/tellquote/internal/quote"
	"github.com/tellquote/tellquote/internal/ratecard"
)

var testNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	saved []*quote.Quote
	err   error
}

func (r *recorder) Save(_ context.Context, q *quote.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, q)
	return nil
}

func (r *recorder) last() *quote.Quote {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saved) == 0 {
		return nil
	}
	return r.saved[len(r.saved)-1]
}

type staticCard struct{ items []ratecard.Item }

func (c staticCard) Lookup(context.Context) (ratecard.Lookup, error) {
	return ratecard.NewIndex(c.items), nil
}

type staticRates currency.Rates

func (r staticRates) Current(context.Context) currency.Rates { return currency.Rates(r) }

func newStore(t *testing.T, opts ...func(*Config)) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	tick := testNow
	cfg := Config{
		Persister: rec,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
		Rates: staticRates(currency.FallbackRates()),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewStore(cfg), rec
}

func TestAddLineItemDefaultsAndPersists(t *testing.T) {
	store, rec := newStore(t)
	ctx := context.Background()

	item, err := store.AddLineItem(ctx, quote.SectionProductionTeam, "Production", quote.LineItem{Name: "Producer", Cost: 500, Charge: 800})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 1.0, item.Quantity)
	assert.Equal(t, 1.0, item.Days)
	assert.Equal(t, uint64(1), store.Version())

	saved := rec.last()
	require.NotNil(t, saved)
	items := saved.Sections[quote.SectionProductionTeam].Subsections["Production"]
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
	assert.True(t, saved.UpdatedAt.After(testNow))
}

func TestAddLineItemUnknownTargets(t *testing.T) {
	store, rec := newStore(t)
	ctx := context.Background()

	_, err := store.AddLineItem(ctx, "nope", "x", quote.LineItem{})
	assert.ErrorIs(t, err, quote.ErrSectionNotFound)
	_, err = store.AddLineItem(ctx, quote.SectionCreative, "nope", quote.LineItem{})
	assert.ErrorIs(t, err, quote.ErrSubsectionNotFound)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	assert.Zero(t, store.Version())
	assert.Empty(t, rec.saved)
}

func TestUpdateAndDeleteLineItem(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	item, err := store.AddLineItem(ctx, quote.SectionCreative, "Services", quote.LineItem{Name: "Edit"})
	require.NoError(t, err)

	qty, charge := 3.0, 150.0
	updated, err := store.UpdateLineItem(ctx, quote.SectionCreative, "Services", item.ID, ItemPatch{Quantity: &qty, Charge: &charge})
	require.NoError(t, err)
	assert.Equal(t, "Edit", updated.Name)
	assert.Equal(t, 3.0, updated.Quantity)
	assert.Equal(t, 450.0, store.Totals().BaseCharge)

	require.NoError(t, store.DeleteLineItem(ctx, quote.SectionCreative, "Services", item.ID))
	assert.Zero(t, store.Totals().BaseCharge)
	assert.ErrorIs(t, store.DeleteLineItem(ctx, quote.SectionCreative, "Services", item.ID), quote.ErrItemNotFound)
	_, err = store.UpdateLineItem(ctx, quote.SectionCreative, "Services", "missing", ItemPatch{})
	assert.ErrorIs(t, err, quote.ErrItemNotFound)
}

func TestMovePreservesTotalsAndID(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	a, err := store.AddLineItem(ctx, quote.SectionProductionTeam, "Production", quote.LineItem{Name: "A", Quantity: 2, Days: 3, Cost: 100, Charge: 180})
	require.NoError(t, err)
	_, err = store.AddLineItem(ctx, quote.SectionCreative, "Services", quote.LineItem{Name: "B", Cost: 40, Charge: 90})
	require.NoError(t, err)
	before := store.Totals()

	require.NoError(t, store.MoveLineItem(ctx, quote.SectionProductionTeam, "Production", a.ID, quote.SectionCreative, "Services"))
	after := store.Totals()
	assert.Equal(t, before.BaseCost, after.BaseCost)
	assert.Equal(t, before.BaseCharge, after.BaseCharge)

	snap := store.Snapshot()
	assert.Empty(t, snap.Sections[quote.SectionProductionTeam].Subsections["Production"])
	moved := snap.Sections[quote.SectionCreative].Subsections["Services"]
	require.Len(t, moved, 2)
	assert.Equal(t, a.ID, moved[1].ID)

	err = store.MoveLineItem(ctx, quote.SectionCreative, "Services", a.ID, quote.SectionCreative, "missing")
	assert.ErrorIs(t, err, quote.ErrSubsectionNotFound)
	assert.Len(t, store.Snapshot().Sections[quote.SectionCreative].Subsections["Services"], 2)
}

func TestSetRegionRelinksByIDThenName(t *testing.T) {
	card := staticCard{items: []ratecard.Item{
		{ID: "rc-1", Name: "Camera Operator (renamed)", Pricing: ratecard.Pricing{
			currency.RegionGulf: {Cost: ratecard.Money{Amount: 80, BaseCurrency: currency.KWD}, Charge: ratecard.Money{Amount: 120, BaseCurrency: currency.KWD}},
		}},
		{ID: "rc-2", Name: "Sound Engineer", Pricing: ratecard.Pricing{
			currency.RegionGulf: {Cost: ratecard.Money{Amount: 90}, Charge: ratecard.Money{Amount: 130}},
		}},
		{ID: "rc-3", Name: "Producer", Pricing: ratecard.CreatePricing(100, 1.5)},
	}}
	store, _ := newStore(t, func(c *Config) { c.RateCard = card })
	ctx := context.Background()
	sub := "Technical Crew"

	byID, err := store.AddLineItem(ctx, quote.SectionProductionTeam, sub, quote.LineItem{Name: "Camera Operator", RateCardItemID: "rc-1", Cost: 1, Charge: 2})
	require.NoError(t, err)
	byName, err := store.AddLineItem(ctx, quote.SectionProductionTeam, sub, quote.LineItem{Name: "Sound Engineer", Cost: 1, Charge: 2})
	require.NoError(t, err)
	usd, err := store.AddLineItem(ctx, quote.SectionProductionTeam, sub, quote.LineItem{Name: "Producer", RateCardItemID: "rc-3"})
	require.NoError(t, err)
	stale, err := store.AddLineItem(ctx, quote.SectionProductionTeam, sub, quote.LineItem{Name: "Unknown", Cost: 7, Charge: 9})
	require.NoError(t, err)

	require.NoError(t, store.SetRegion(ctx, currency.RegionGulf))
	snap := store.Snapshot()
	assert.Equal(t, currency.RegionGulf, snap.Region)
	assert.Equal(t, currency.KWD, snap.Currency)

	got := map[string]quote.LineItem{}
	for _, item := range snap.Sections[quote.SectionProductionTeam].Subsections[sub] {
		got[item.ID] = item
	}
	assert.Equal(t, 80.0, got[byID.ID].Cost)
	assert.Equal(t, 120.0, got[byID.ID].Charge)
	assert.Equal(t, 90.0, got[byName.ID].Cost)
	assert.Equal(t, "rc-2", got[byName.ID].RateCardItemID)
	// 120 USD at the fallback KWD rate.
	assert.InDelta(t, 37.2, got[usd.ID].Cost, 1e-9)
	assert.Equal(t, 7.0, got[stale.ID].Cost)

	assert.ErrorIs(t, store.SetRegion(ctx, "ATLANTIS"), quote.ErrInvalidRegion)
}

func TestSetFeesClamps(t *testing.T) {
	store, rec := newStore(t)
	ctx := context.Background()
	mgmt, disc := 150.0, -5.0
	fees, err := store.SetFees(ctx, FeesPatch{ManagementFee: &mgmt, Discount: &disc})
	require.NoError(t, err)
	assert.Equal(t, 100.0, fees.ManagementFee)
	assert.Zero(t, fees.Discount)

	comm := 10.0
	fees, err = store.SetFees(ctx, FeesPatch{CommissionFee: &comm})
	require.NoError(t, err)
	assert.Equal(t, 100.0, fees.ManagementFee)
	assert.Equal(t, 10.0, fees.CommissionFee)
	assert.Equal(t, 10.0, rec.last().Fees.CommissionFee)
}

func TestSetCurrencyConvertsAndRounds(t *testing.T) {
	rates := currency.Rates{currency.USD: 1, currency.GBP: 0.79}
	store, _ := newStore(t, func(c *Config) { c.Rates = staticRates(rates) })
	ctx := context.Background()
	item, err := store.AddLineItem(ctx, quote.SectionCreative, "Services", quote.LineItem{Name: "Design", Cost: 100, Charge: 333.33})
	require.NoError(t, err)
	version := store.Version()

	require.NoError(t, store.SetCurrency(ctx, currency.USD))
	assert.Equal(t, version, store.Version(), "same currency is a no-op")

	require.NoError(t, store.SetCurrency(ctx, currency.GBP))
	snap := store.Snapshot()
	assert.Equal(t, currency.GBP, snap.Currency)
	got := snap.Sections[quote.SectionCreative].Subsections["Services"][0]
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, 79.0, got.Cost)
	assert.Equal(t, 263.33, got.Charge)

	assert.ErrorIs(t, store.SetCurrency(ctx, "XXX"), quote.ErrInvalidCurrency)
}

func TestPersistenceFailureKeepsMutation(t *testing.T) {
	rec := &recorder{err: quote.NewSaveError(quote.SaveKindQuota, errors.New("OOM command not allowed"))}
	store, _ := newStore(t, func(c *Config) { c.Persister = rec })

	_, err := store.AddLineItem(context.Background(), quote.SectionCreative, "Services", quote.LineItem{Name: "X", Charge: 10})
	require.Error(t, err)
	kind, ok := quote.SaveErrorKind(err)
	require.True(t, ok)
	assert.Equal(t, quote.SaveKindQuota, kind)
	assert.ErrorIs(t, err, httpx.ErrStorage)
	assert.Equal(t, 10.0, store.Totals().BaseCharge)

	rec.err = errors.New("connection reset")
	err = store.SetInternalNotes(context.Background(), "x")
	kind, _ = quote.SaveErrorKind(err)
	assert.Equal(t, quote.SaveKindIO, kind)
}

func TestSummaryIsMemoisedByVersion(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	first := store.Summary()
	assert.Zero(t, first.Totals.Margin)
	assert.Zero(t, first.ItemCount)

	_, err := store.AddLineItem(ctx, quote.SectionCreative, "Services", quote.LineItem{Cost: 600, Charge: 1200})
	require.NoError(t, err)
	mgmt, disc := 5.0, 10.0
	_, err = store.SetFees(ctx, FeesPatch{ManagementFee: &mgmt, Discount: &disc})
	require.NoError(t, err)

	s := store.Summary()
	assert.Equal(t, uint64(2), s.Version)
	assert.Equal(t, 1, s.ItemCount)
	assert.InDelta(t, 1134, s.Totals.TotalCharge, 1e-9)
	assert.Equal(t, pricing.Totals{Cost: 600, Charge: 1200}, s.Sections[quote.SectionCreative])
}

func TestSectionStructureOperations(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	order := store.Snapshot().OrderedSectionIDs()

	expanded, err := store.ToggleSection(ctx, order[0])
	require.NoError(t, err)
	assert.False(t, expanded)

	require.NoError(t, store.MoveSection(ctx, order[0], Down))
	moved := store.Snapshot().SectionOrder
	assert.Equal(t, order[1], moved[0])
	assert.Equal(t, order[0], moved[1])

	version := store.Version()
	require.NoError(t, store.MoveSection(ctx, order[0], Up))
	require.NoError(t, store.MoveSection(ctx, order[0], Up))
	assert.Equal(t, version+1, store.Version(), "moving past the top is a no-op")

	require.NoError(t, store.UpdateSectionName(ctx, order[0], "  Crew  "))
	assert.Equal(t, "Crew", store.Snapshot().DisplayName(order[0]))
	require.NoError(t, store.UpdateSectionName(ctx, order[0], " "))
	_, overridden := store.Snapshot().SectionNames[order[0]]
	assert.False(t, overridden)
}

func TestCustomSubsections(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := quote.SectionCreative

	require.NoError(t, store.AddCustomSubsection(ctx, id, "Motion"))
	err := store.AddCustomSubsection(ctx, id, "Motion")
	assert.ErrorIs(t, err, quote.ErrDuplicateSubsection)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)

	section := store.Snapshot().Sections[id]
	assert.Contains(t, section.CustomSubsections, "Motion")
	names := section.OrderedSubsections()
	assert.Equal(t, "Motion", names[len(names)-1])

	require.NoError(t, store.ReorderSubsections(ctx, id, []string{"Motion", "Services"}))
	assert.Equal(t, "Motion", store.Snapshot().Sections[id].OrderedSubsections()[0])
	assert.ErrorIs(t, store.ReorderSubsections(ctx, id, []string{"Ghost"}), quote.ErrSubsectionNotFound)

	require.NoError(t, store.UpdateSubsectionName(ctx, id, "Motion", "Motion Graphics"))
	assert.Equal(t, "Motion Graphics", store.Snapshot().Sections[id].SubsectionDisplayName("Motion"))
	require.NoError(t, store.UpdateSubsectionName(ctx, id, "Motion", "Motion"))
	assert.Equal(t, "Motion", store.Snapshot().Sections[id].SubsectionDisplayName("Motion"))
}

func TestStatusAndDealFlow(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateQuoteStatus(ctx, quote.StatusSent, "emailed", ""))
	require.NoError(t, store.UpdateQuoteStatus(ctx, quote.StatusDead, "", "u1"))
	assert.ErrorIs(t, store.UpdateQuoteStatus(ctx, "lost", "", ""), quote.ErrInvalidStatus)

	require.NoError(t, store.SetNextFollowUpDate(ctx, "2025-07-01"))
	require.NoError(t, store.SetLostReason(ctx, "budget", "went elsewhere"))
	require.NoError(t, store.SetInternalNotes(ctx, "call back in Q3"))
	assert.ErrorIs(t, store.SetNextFollowUpDate(ctx, "July"), quote.ErrInvalidDocument)

	snap := store.Snapshot()
	assert.Equal(t, quote.StatusDead, snap.Status)
	require.Len(t, snap.StatusHistory, 2)
	assert.Equal(t, "default", snap.StatusHistory[0].UserID)
	assert.Equal(t, "u1", snap.StatusHistory[1].UserID)
	require.NotNil(t, snap.NextFollowUpDate)
	assert.Equal(t, "2025-07-01", *snap.NextFollowUpDate)
	require.NotNil(t, snap.LostReason)
	assert.Equal(t, "budget", *snap.LostReason)

	require.NoError(t, store.SetNextFollowUpDate(ctx, ""))
	assert.Nil(t, store.Snapshot().NextFollowUpDate)
}

func TestHeaderFields(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	company, email := "Acme", "ops@acme.test"
	start := "2025-09-01"

	require.NoError(t, store.SetQuoteNumber(ctx, " QT-2025-4242 "))
	require.NoError(t, store.SetQuoteDate(ctx, "2025-06-03"))
	require.NoError(t, store.SetValidityDays(ctx, 45))
	require.NoError(t, store.SetClientDetails(ctx, ClientPatch{Company: &company, Email: &email}))
	require.NoError(t, store.SetProjectDetails(ctx, ProjectPatch{StartDate: &start}))
	require.NoError(t, store.SetPreparedBy(ctx, "pm-1"))

	assert.ErrorIs(t, store.SetQuoteNumber(ctx, " "), quote.ErrInvalidDocument)
	assert.ErrorIs(t, store.SetQuoteDate(ctx, "03/06/2025"), quote.ErrInvalidDocument)
	assert.ErrorIs(t, store.SetValidityDays(ctx, 0), quote.ErrInvalidDocument)

	snap := store.Snapshot()
	assert.Equal(t, "QT-2025-4242", snap.QuoteNumber)
	assert.Equal(t, "2025-06-03", snap.QuoteDate)
	assert.Equal(t, 45, snap.ValidityDays)
	assert.Equal(t, "Acme", snap.Client.Company)
	assert.Equal(t, "ops@acme.test", snap.Client.Email)
	assert.Equal(t, "broadcast", snap.Project.Type)
	assert.Equal(t, start, snap.Project.StartDate)
	assert.Equal(t, "pm-1", snap.PreparedBy)
}

func TestResetAndLoad(t *testing.T) {
	store, rec := newStore(t)
	ctx := context.Background()
	_, err := store.AddLineItem(ctx, quote.SectionCreative, "Services", quote.LineItem{Charge: 10})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))
	assert.Zero(t, store.Totals().BaseCharge)
	assert.True(t, quote.WellFormedNumber(store.Snapshot().QuoteNumber))

	doc, err := json.Marshal(map[string]any{
		"quoteNumber": "QT-2024-1111",
		"currency":    "GBP",
		"client":      map[string]any{"company": "Loaded"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Load(ctx, doc))
	snap := store.Snapshot()
	assert.Equal(t, "QT-2024-1111", snap.QuoteNumber)
	assert.Equal(t, "GBP", snap.Currency)
	assert.Equal(t, "Loaded", snap.Client.Company)
	assert.Len(t, snap.Sections, len(quote.SectionOrder()))
	assert.Equal(t, "QT-2024-1111", rec.last().QuoteNumber)

	assert.ErrorIs(t, store.Load(ctx, []byte("{")), quote.ErrInvalidDocument)
}

func TestLoadedExtraSectionAcceptsSubsections(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	doc := []byte(`{"quoteNumber":"QT-2026-1234","sections":{"extra":{"id":"extra","name":"Extra"},"ghost":null}}`)
	require.NoError(t, store.Load(ctx, doc))

	snap := store.Snapshot()
	assert.NotContains(t, snap.Sections, "ghost")
	require.Contains(t, snap.Sections, "extra")
	assert.NotNil(t, snap.Sections["extra"].Subsections)

	require.NotPanics(t, func() {
		require.NoError(t, store.AddCustomSubsection(ctx, "extra", "Misc"))
	})
	_, err := store.AddLineItem(ctx, "extra", "Misc", quote.LineItem{Name: "Runner", Charge: 40})
	require.NoError(t, err)
	assert.InDelta(t, 40, store.Totals().BaseCharge, 1e-9)
}

func TestConcurrentMutations(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.AddLineItem(ctx, quote.SectionCreative, "Services", quote.LineItem{Cost: 1, Charge: 2})
			_ = store.Summary()
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(20), store.Version())
	assert.Equal(t, 20, store.Summary().ItemCount)
}
