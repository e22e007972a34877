package ratecard

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tellquote/tellquote/internal/currency"
)

var baseHeaders = []string{"id", "section", "name", "description", "unit"}

// CSVHeaders returns the import/export header row.
func CSVHeaders() []string {
	headers := append([]string(nil), baseHeaders...)
	for _, region := range currency.RegionIDs() {
		headers = append(headers, region+"_cost", region+"_charge")
	}
	return headers
}

// ImportResult summarises an import run.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Imported is the number of items written.
func (r ImportResult) Imported() int {
	return r.Created + r.Updated
}

// ImportCSV upserts rows by id. Rows without an id get a fresh one; prices
// that fail to parse are read as 0.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, fmt.Errorf("%w: empty file", ErrInvalidImport)
		}
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}
	if _, ok := index["name"]; !ok {
		return ImportResult{}, fmt.Errorf("%w: missing name column", ErrInvalidImport)
	}

	existing, err := s.repo.List(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	known := make(map[string]Item, len(existing))
	for _, item := range existing {
		known[item.ID] = item
	}

	var (
		result ImportResult
		batch  []Item
		line   = 1
	)
	now := s.now()
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if blankRecord(record) {
			continue
		}
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		item := Item{
			ID:          field("id"),
			Section:     field("section"),
			Name:        field("name"),
			Description: field("description"),
			Unit:        field("unit"),
			Pricing:     EmptyPricing(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for _, region := range currency.RegionIDs() {
			_, hasCost := index[region+"_cost"]
			_, hasCharge := index[region+"_charge"]
			if !hasCost || !hasCharge {
				continue
			}
			price := item.Pricing[region]
			price.Cost.Amount = parseAmount(field(region + "_cost"))
			price.Charge.Amount = parseAmount(field(region + "_charge"))
			item.Pricing[region] = price
		}
		if item.Name == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, errEmptyName))
			continue
		}
		if item.ID == "" {
			item.ID = s.newID()
		}
		prev, exists := known[item.ID]
		if exists {
			item.CreatedAt = prev.CreatedAt
		}
		normalised, err := normalise(item)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		known[normalised.ID] = normalised
		batch = append(batch, normalised)
		if exists {
			result.Updated++
		} else {
			result.Created++
		}
	}
	if err := s.repo.Upsert(ctx, batch...); err != nil {
		return ImportResult{}, err
	}
	s.logger.Info("rate card csv import",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

// ExportCSV writes every item using CSVHeaders.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	items, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeaders()); err != nil {
		return err
	}
	for _, item := range items {
		row := []string{item.ID, item.Section, item.Name, item.Description, item.Unit}
		for _, region := range currency.RegionIDs() {
			price := item.Pricing[region]
			row = append(row, formatAmount(price.Cost.Amount), formatAmount(price.Charge.Amount))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTemplate writes an import template with example rows.
func WriteTemplate(w io.Writer) error {
	writer := csv.NewWriter(w)
	rows := [][]string{
		CSVHeaders(),
		{"", defaultSections[0].ID, "Example Service Name", "Service description goes here", UnitDay, "100", "150", "120", "180", "150", "225", "130", "195"},
		{"", defaultSections[1].ID, "Another Service", "Another description", UnitDay, "200", "300", "240", "360", "300", "450", "260", "390"},
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

// ImportJSON appends items from a JSON array, skipping names that already
// exist (case-insensitive). Imported items always get fresh ids.
func (s *Service) ImportJSON(ctx context.Context, r io.Reader) (ImportResult, error) {
	var incoming []Item
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return ImportResult{}, fmt.Errorf("%w: expected array of items: %v", ErrInvalidImport, err)
	}
	existing, err := s.repo.List(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	names := make(map[string]bool, len(existing))
	for _, item := range existing {
		names[strings.ToLower(item.Name)] = true
	}
	var (
		result ImportResult
		batch  []Item
	)
	now := s.now()
	for _, item := range incoming {
		key := strings.ToLower(strings.TrimSpace(item.Name))
		if key == "" || names[key] {
			result.Skipped++
			continue
		}
		item.ID = s.newID()
		item.Name = strings.TrimSpace(item.Name)
		item.CreatedAt = now
		item.UpdatedAt = now
		normalised, err := normalise(item)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}
		names[key] = true
		batch = append(batch, normalised)
		result.Created++
	}
	if err := s.repo.Upsert(ctx, batch...); err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

// ExportJSON writes every item as an indented JSON array.
func (s *Service) ExportJSON(ctx context.Context, w io.Writer) error {
	items, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	if items == nil {
		items = []Item{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func parseAmount(raw string) float64 {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.InexactFloat64()
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
