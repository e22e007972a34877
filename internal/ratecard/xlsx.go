package ratecard

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tellquote/tellquote/internal/currency"
)

const sheetName = "Rate Card"

// ExportXLSX writes the rate card as a workbook with one row per item and a
// cost/charge column pair per region.
func (s *Service) ExportXLSX(ctx context.Context, w io.Writer) error {
	items, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("set sheet name: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("create money style: %w", err)
	}

	headers := CSVHeaders()
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetCellStyle(sheetName, "A1", last+"1", headerStyle); err != nil {
		return err
	}

	for r, item := range items {
		row := r + 2
		values := []any{item.ID, item.Section, sanitizeCell(item.Name), sanitizeCell(item.Description), item.Unit}
		for _, region := range currency.RegionIDs() {
			price := item.Pricing[region]
			values = append(values, price.Cost.Amount, price.Charge.Amount)
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	if len(items) > 0 {
		first, _ := excelize.CoordinatesToCellName(len(baseHeaders)+1, 2)
		end, _ := excelize.CoordinatesToCellName(len(headers), len(items)+1)
		if err := f.SetCellStyle(sheetName, first, end, moneyStyle); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheetName, "C", "D", 32)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	_, err = f.WriteTo(w)
	return err
}

// sanitizeCell stops spreadsheet apps from evaluating user text as a formula.
func sanitizeCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@':
		return "'" + v
	}
	return v
}
