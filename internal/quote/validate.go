package quote

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var requiredFields = []string{"quoteNumber", "currency", "region", "sections", "fees"}

// Decode parses a persisted quote document. It performs a shallow structural
// check: every required top-level field must be present, and sections and fees
// must be objects. Missing schema sections are filled in.
func Decode(raw []byte) (*Quote, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	for _, field := range requiredFields {
		value, ok := top[field]
		if !ok || string(value) == "null" {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidDocument, field)
		}
	}
	for _, field := range []string{"sections", "fees"} {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(top[field], &obj); err != nil {
			return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidDocument, field)
		}
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if q.QuoteNumber == "" {
		return nil, fmt.Errorf("%w: empty quoteNumber", ErrInvalidDocument)
	}
	EnsureSchema(&q)
	return &q, nil
}

// DecodeOrNew decodes raw, falling back to a fresh quote when the document is
// missing or malformed. The returned error reports why the fallback happened.
func DecodeOrNew(raw []byte, now time.Time, d Defaults) (*Quote, error) {
	if len(raw) == 0 {
		return New(now, d), nil
	}
	q, err := Decode(raw)
	if err != nil {
		return New(now, d), err
	}
	return q, nil
}

// Merge overlays a partial document onto a fresh quote, the way a saved
// library entry is opened in the editor.
func Merge(raw []byte, now time.Time, d Defaults) (*Quote, error) {
	q := New(now, d)
	if err := json.Unmarshal(raw, q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	EnsureSchema(q)
	q.UpdatedAt = now.UTC()
	return q, nil
}

// ValidateNumbers reports every non-finite fee or line item value. Rendering
// and export refuse documents that fail this check.
func ValidateNumbers(q *Quote) error {
	if q == nil {
		return fmt.Errorf("%w: nil quote", ErrInvalidDocument)
	}
	var errs []error
	check := func(field string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNonFiniteValue, field))
		}
	}
	check("fees.managementFee", q.Fees.ManagementFee)
	check("fees.commissionFee", q.Fees.CommissionFee)
	check("fees.discount", q.Fees.Discount)
	q.EachItem(func(sectionID, sub string, item *LineItem) bool {
		prefix := fmt.Sprintf("%s/%s/%s", sectionID, sub, item.ID)
		check(prefix+".quantity", item.Quantity)
		check(prefix+".days", item.Days)
		check(prefix+".cost", item.Cost)
		check(prefix+".charge", item.Charge)
		return true
	})
	return errors.Join(errs...)
}
