package quote

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// flexNumber decodes JSON numbers, numeric strings and anything else
// (null, booleans, garbage) as 0. Persisted documents written by older
// clients carry all of these.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	*n = 0
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*n = flexNumber(v)
	return nil
}

// UnmarshalJSON coerces numeric fields leniently.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	type alias LineItem
	aux := struct {
		*alias
		Quantity     flexNumber `json:"quantity"`
		Days         flexNumber `json:"days"`
		Cost         flexNumber `json:"cost"`
		Charge       flexNumber `json:"charge"`
		PercentValue flexNumber `json:"percentValue"`
	}{alias: (*alias)(li)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	li.Quantity = float64(aux.Quantity)
	li.Days = float64(aux.Days)
	li.Cost = float64(aux.Cost)
	li.Charge = float64(aux.Charge)
	li.PercentValue = float64(aux.PercentValue)
	return nil
}

// UnmarshalJSON coerces fee percentages leniently.
func (f *Fees) UnmarshalJSON(data []byte) error {
	type alias Fees
	aux := struct {
		*alias
		ManagementFee flexNumber `json:"managementFee"`
		CommissionFee flexNumber `json:"commissionFee"`
		Discount      flexNumber `json:"discount"`
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.ManagementFee = float64(aux.ManagementFee)
	f.CommissionFee = float64(aux.CommissionFee)
	f.Discount = float64(aux.Discount)
	return nil
}
