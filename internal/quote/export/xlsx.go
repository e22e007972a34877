// Package export renders quotes as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/pricing"
	"github.com/tellquote/tellquote/internal/quote"
)

const (
	clientSheet  = "Quote"
	costingSheet = "Costing"
)

// Options controls the workbook.
type Options struct {
	// Internal adds a costing sheet with cost, charge and margin per line.
	Internal bool
}

type styles struct {
	title, header, section, sub, money, label, total int
}

// WriteXLSX renders q as a workbook. Quotes carrying non-finite numbers are
// refused.
func WriteXLSX(w io.Writer, q *quote.Quote, opts Options) error {
	if err := quote.ValidateNumbers(q); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), clientSheet); err != nil {
		return fmt.Errorf("set sheet name: %w", err)
	}
	st, err := newStyles(f, q.Currency)
	if err != nil {
		return err
	}
	totals := pricing.GrandTotalWithFees(q.Sections, q.Fees)
	if err := writeClientSheet(f, st, q, totals); err != nil {
		return err
	}
	if opts.Internal {
		if _, err := f.NewSheet(costingSheet); err != nil {
			return fmt.Errorf("add costing sheet: %w", err)
		}
		if err := writeCostingSheet(f, st, q, totals); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write excel: %w", err)
	}
	return nil
}

func newStyles(f *excelize.File, code string) (styles, error) {
	var (
		st  styles
		err error
	)
	numFmt := currency.Symbol(code) + "#,##0.00"
	if code == currency.IDR {
		numFmt = currency.Symbol(code) + "#,##0"
	}
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}}},
		{&st.header, &excelize.Style{
			Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
		}},
		{&st.section, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}}},
		{&st.sub, &excelize.Style{Font: &excelize.Font{Italic: true}}},
		{&st.money, &excelize.Style{CustomNumFmt: &numFmt}},
		{&st.label, &excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: &excelize.Alignment{Horizontal: "right"}}},
		{&st.total, &excelize.Style{Font: &excelize.Font{Bold: true}, CustomNumFmt: &numFmt}},
	}
	for _, d := range defs {
		if *d.dst, err = f.NewStyle(d.style); err != nil {
			return st, fmt.Errorf("create style: %w", err)
		}
	}
	return st, nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func writeClientSheet(f *excelize.File, st styles, q *quote.Quote, totals pricing.FeeTotals) error {
	s := clientSheet
	_ = f.SetColWidth(s, "A", "A", 44)
	_ = f.SetColWidth(s, "B", "C", 8)
	_ = f.SetColWidth(s, "D", "E", 16)

	title := q.Project.Title
	if title == "" {
		title = "Quotation"
	}
	_ = f.SetCellValue(s, "A1", sanitize(title))
	_ = f.SetCellStyle(s, "A1", "A1", st.title)
	_ = f.SetCellValue(s, "A2", "Quote "+q.QuoteNumber+" · "+q.QuoteDate)
	_ = f.SetCellValue(s, "A3", sanitize(q.Client.Company))

	row := 5
	for i, h := range []string{"Description", "Qty", "Days", "Rate", "Total"} {
		c, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(s, c, h)
	}
	_ = f.SetCellStyle(s, cell("A", row), cell("E", row), st.header)
	row++

	rate := func(charge float64) float64 {
		if q.Fees.DistributeFees {
			return totals.DistributedRate(charge)
		}
		return charge
	}
	for _, sectionID := range q.OrderedSectionIDs() {
		section := q.Sections[sectionID]
		if pricing.SectionTotal(section.Subsections).Charge == 0 {
			continue
		}
		_ = f.SetCellValue(s, cell("A", row), sanitize(q.DisplayName(sectionID)))
		_ = f.SetCellStyle(s, cell("A", row), cell("E", row), st.section)
		row++
		for _, sub := range section.OrderedSubsections() {
			items := section.Subsections[sub]
			if len(items) == 0 {
				continue
			}
			_ = f.SetCellValue(s, cell("A", row), sanitize(section.SubsectionDisplayName(sub)))
			_ = f.SetCellStyle(s, cell("A", row), cell("A", row), st.sub)
			row++
			for _, item := range items {
				unit := rate(item.Charge)
				_ = f.SetSheetRow(s, cell("A", row), &[]any{
					sanitize(item.Name), item.Quantity, item.Days, unit, unit * item.Quantity * item.Days,
				})
				_ = f.SetCellStyle(s, cell("D", row), cell("E", row), st.money)
				row++
			}
		}
	}

	row++
	fees := pricing.ClampFees(q.Fees)
	summary := []struct {
		label string
		value float64
		show  bool
	}{
		{"Subtotal", totals.BaseCharge, !q.Fees.DistributeFees},
		{fmt.Sprintf("Management fee (%g%%)", fees.ManagementFee), totals.ManagementAmount, !q.Fees.DistributeFees && totals.ManagementAmount != 0},
		{fmt.Sprintf("Commission (%g%%)", fees.CommissionFee), totals.CommissionAmount, !q.Fees.DistributeFees && totals.CommissionAmount != 0},
		{"Subtotal", totals.ChargeBeforeDiscount, q.Fees.DistributeFees},
		{fmt.Sprintf("Discount (%g%%)", fees.Discount), -totals.DiscountAmount, totals.DiscountAmount != 0},
	}
	for _, line := range summary {
		if !line.show {
			continue
		}
		_ = f.SetCellValue(s, cell("D", row), line.label)
		_ = f.SetCellStyle(s, cell("D", row), cell("D", row), st.label)
		_ = f.SetCellValue(s, cell("E", row), line.value)
		_ = f.SetCellStyle(s, cell("E", row), cell("E", row), st.money)
		row++
	}
	_ = f.SetCellValue(s, cell("D", row), "Total ("+q.Currency+")")
	_ = f.SetCellStyle(s, cell("D", row), cell("D", row), st.label)
	_ = f.SetCellValue(s, cell("E", row), totals.TotalCharge)
	_ = f.SetCellStyle(s, cell("E", row), cell("E", row), st.total)
	row += 2
	_ = f.SetCellValue(s, cell("A", row), fmt.Sprintf("Valid for %d days from %s", q.ValidityDays, q.QuoteDate))
	return nil
}

func writeCostingSheet(f *excelize.File, st styles, q *quote.Quote, totals pricing.FeeTotals) error {
	s := costingSheet
	_ = f.SetColWidth(s, "A", "C", 28)
	_ = f.SetColWidth(s, "D", "K", 13)

	headers := []string{"Section", "Subsection", "Item", "Qty", "Days", "Unit Cost", "Unit Charge", "Total Cost", "Total Charge", "Margin %", "Rate Card Id"}
	for i, h := range headers {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(s, c, h)
	}
	_ = f.SetCellStyle(s, "A1", "K1", st.header)

	row := 2
	q.EachItem(func(sectionID, sub string, item *quote.LineItem) bool {
		line := pricing.LineTotal(*item)
		_ = f.SetSheetRow(s, cell("A", row), &[]any{
			sanitize(q.DisplayName(sectionID)), sanitize(q.Sections[sectionID].SubsectionDisplayName(sub)), sanitize(item.Name),
			item.Quantity, item.Days, item.Cost, item.Charge, line.Cost, line.Charge,
			pricing.LineMargin(*item), item.RateCardItemID,
		})
		_ = f.SetCellStyle(s, cell("F", row), cell("I", row), st.money)
		row++
		return true
	})
	row++
	for _, line := range []struct {
		label string
		value float64
	}{
		{"Total cost", totals.TotalCost},
		{"Total charge", totals.TotalCharge},
		{"Profit", totals.Profit},
	} {
		_ = f.SetCellValue(s, cell("H", row), line.label)
		_ = f.SetCellStyle(s, cell("H", row), cell("H", row), st.label)
		_ = f.SetCellValue(s, cell("I", row), line.value)
		_ = f.SetCellStyle(s, cell("I", row), cell("I", row), st.total)
		row++
	}
	_ = f.SetCellValue(s, cell("H", row), "Margin %")
	_ = f.SetCellStyle(s, cell("H", row), cell("H", row), st.label)
	_ = f.SetCellValue(s, cell("I", row), totals.Margin)
	return nil
}

func sanitize(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + v
	}
	return v
}
