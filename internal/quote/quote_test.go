package quote

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellquote/tellquote/internal/platform/httpx"
)

var now = time.Date(2025, 4, 10, 8, 30, 0, 0, time.UTC)

func TestNewQuoteInstantiatesSchema(t *testing.T) {
	q := New(now, Defaults{NumberPrefix: "tq"})
	assert.True(t, strings.HasPrefix(q.QuoteNumber, "TQ-2025-"))
	assert.True(t, WellFormedNumber(q.QuoteNumber))
	assert.Equal(t, "SEA", q.Region)
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, 30, q.ValidityDays)
	assert.Equal(t, StatusDraft, q.Status)
	assert.Equal(t, "2025-04-10", q.QuoteDate)
	require.Len(t, q.Sections, len(SectionOrder()))
	for _, id := range SectionOrder() {
		def, ok := LookupSchema(id)
		require.True(t, ok)
		section := q.Sections[id]
		assert.True(t, section.IsExpanded)
		for _, sub := range def.Subsections {
			assert.Empty(t, section.Subsections[sub])
		}
	}
}

func TestNewNumberRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		n := NewNumber("", now)
		require.True(t, WellFormedNumber(n), n)
		var year, seq int
		_, err := fmtSscanf(n, &year, &seq)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, seq, 1000)
		assert.LessOrEqual(t, seq, 9999)
	}
}

func TestDecodeRequiresTopLevelFields(t *testing.T) {
	valid := `{"quoteNumber":"QT-2025-1234","currency":"USD","region":"SEA","sections":{},"fees":{}}`
	q, err := Decode([]byte(valid))
	require.NoError(t, err)
	assert.Len(t, q.Sections, len(SectionOrder()))
	assert.Equal(t, StatusDraft, q.Status)

	for _, doc := range []string{
		`not json`,
		`null`,
		`{"currency":"USD","region":"SEA","sections":{},"fees":{}}`,
		`{"quoteNumber":"QT-1","currency":"USD","region":"SEA","sections":[],"fees":{}}`,
		`{"quoteNumber":"QT-1","currency":"USD","region":"SEA","sections":{},"fees":null}`,
	} {
		_, err := Decode([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidDocument, doc)
		assert.ErrorIs(t, err, httpx.ErrValidation, doc)
	}
}

func TestDecodeOrNewFallsBack(t *testing.T) {
	q, err := DecodeOrNew([]byte(`{"broken":`), now, Defaults{})
	assert.Error(t, err)
	require.NotNil(t, q)
	assert.Len(t, q.Sections, len(SectionOrder()))

	q, err = DecodeOrNew(nil, now, Defaults{})
	assert.NoError(t, err)
	assert.NotEmpty(t, q.QuoteNumber)
}

func TestLenientNumericDecoding(t *testing.T) {
	doc := `{"quoteNumber":"QT-2025-1234","currency":"USD","region":"SEA",
		"fees":{"managementFee":"10","commissionFee":null,"discount":"abc","distributeFees":true},
		"sections":{"creative":{"id":"creative","subsections":{"Services":[
			{"id":"a","name":"Edit","quantity":"2","days":true,"cost":"x","charge":150}
		]}}}}`
	q, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 10.0, q.Fees.ManagementFee)
	assert.Zero(t, q.Fees.CommissionFee)
	assert.Zero(t, q.Fees.Discount)
	assert.True(t, q.Fees.DistributeFees)

	item := q.Sections[SectionCreative].Subsections["Services"][0]
	assert.Equal(t, "Edit", item.Name)
	assert.Equal(t, 2.0, item.Quantity)
	assert.Zero(t, item.Days)
	assert.Zero(t, item.Cost)
	assert.Equal(t, 150.0, item.Charge)
	assert.Equal(t, "Creative", q.Sections[SectionCreative].Name)
}

func TestMergeOverlaysDefaults(t *testing.T) {
	q, err := Merge([]byte(`{"quoteNumber":"QT-2024-9999","client":{"company":"Acme"}}`), now, Defaults{})
	require.NoError(t, err)
	assert.Equal(t, "QT-2024-9999", q.QuoteNumber)
	assert.Equal(t, "Acme", q.Client.Company)
	assert.Equal(t, "broadcast", q.Project.Type)
	assert.Len(t, q.Sections, len(SectionOrder()))
}

func TestValidateNumbers(t *testing.T) {
	q := New(now, Defaults{})
	require.NoError(t, ValidateNumbers(q))

	q.Fees.Discount = math.NaN()
	q.Sections[SectionCreative].Subsections["Services"] = []LineItem{{ID: "x", Quantity: 1, Days: math.Inf(1)}}
	err := ValidateNumbers(q)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonFiniteValue)
	assert.Contains(t, err.Error(), "fees.discount")
	assert.Contains(t, err.Error(), "creative/Services/x.days")
}

func TestCloneIsDeep(t *testing.T) {
	q := New(now, Defaults{})
	q.Sections[SectionCreative].Subsections["Services"] = []LineItem{{ID: "a", Cost: 1}}
	date := "2025-05-01"
	q.NextFollowUpDate = &date

	c := q.Clone()
	c.Sections[SectionCreative].Subsections["Services"][0].Cost = 99
	c.Sections[SectionCreative].CustomSubsections = append(c.Sections[SectionCreative].CustomSubsections, "Extra")
	*c.NextFollowUpDate = "2030-01-01"
	c.SectionOrder[0] = "changed"

	assert.Equal(t, 1.0, q.Sections[SectionCreative].Subsections["Services"][0].Cost)
	assert.Empty(t, q.Sections[SectionCreative].CustomSubsections)
	assert.Equal(t, "2025-05-01", *q.NextFollowUpDate)
	assert.Equal(t, SectionProductionTeam, q.SectionOrder[0])
}

func TestOrderedSubsections(t *testing.T) {
	section := NewSection(schema[SectionProductionTeam])
	section.Subsections["Drivers"] = []LineItem{}
	section.CustomSubsections = []string{"Drivers"}
	section.Subsections["Orphan"] = []LineItem{}

	assert.Equal(t, []string{"Production", "Technical Crew", "Production Management", "Drivers", "Orphan"}, section.OrderedSubsections())

	section.SubsectionOrder = []string{"Drivers", "Production"}
	assert.Equal(t, []string{"Drivers", "Production", "Orphan", "Production Management", "Technical Crew"}, section.OrderedSubsections())
}

func TestEachItemFollowsDisplayOrder(t *testing.T) {
	q := New(now, Defaults{})
	q.Sections[SectionExpenses].Subsections["Services"] = []LineItem{{ID: "last"}}
	q.Sections[SectionProductionTeam].Subsections["Technical Crew"] = []LineItem{{ID: "second"}}
	q.Sections[SectionProductionTeam].Subsections["Production"] = []LineItem{{ID: "first"}}

	var ids []string
	q.EachItem(func(_, _ string, item *LineItem) bool {
		ids = append(ids, item.ID)
		return true
	})
	assert.Equal(t, []string{"first", "second", "last"}, ids)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusApproved.IsWon())
	assert.True(t, StatusWon.IsWon())
	assert.False(t, StatusSent.IsWon())
	assert.False(t, Status("lost").Valid())
}

func TestSaveErrorMapsToHTTPSentinels(t *testing.T) {
	assert.ErrorIs(t, NewSaveError(SaveKindQuota, nil), httpx.ErrStorage)
	assert.ErrorIs(t, NewSaveError(SaveKindInvalid, nil), httpx.ErrValidation)
	assert.ErrorIs(t, NewSaveError(SaveKindIO, nil), httpx.ErrUpstream)

	var decoded Quote
	require.NoError(t, json.Unmarshal([]byte(`{"status":"won"}`), &decoded))
	assert.Equal(t, StatusWon, decoded.Status)
}

func fmtSscanf(number string, year, seq *int) (int, error) {
	return fmt.Sscanf(number[strings.Index(number, "-")+1:], "%d-%d", year, seq)
}
