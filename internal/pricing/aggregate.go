package pricing

import "github.com/tellquote/tellquote/internal/quote"

// SubsectionTotal sums the line totals of items.
func SubsectionTotal(items []quote.LineItem) Totals {
	var total Totals
	for _, item := range items {
		total = total.Add(LineTotal(item))
	}
	return total
}

// SectionTotal sums every subsection of a section.
func SectionTotal(subsections map[string][]quote.LineItem) Totals {
	var total Totals
	for _, items := range subsections {
		total = total.Add(SubsectionTotal(items))
	}
	return total
}

// GrandTotal sums every section, expanded or collapsed.
func GrandTotal(sections map[string]*quote.Section) Totals {
	var total Totals
	for _, section := range sections {
		if section == nil {
			continue
		}
		total = total.Add(SectionTotal(section.Subsections))
	}
	return total
}

// SectionTotals returns the per-section rollup keyed by section id.
func SectionTotals(sections map[string]*quote.Section) map[string]Totals {
	out := make(map[string]Totals, len(sections))
	for id, section := range sections {
		if section == nil {
			continue
		}
		out[id] = SectionTotal(section.Subsections)
	}
	return out
}

// CountItems counts line items across all sections.
func CountItems(sections map[string]*quote.Section) int {
	count := 0
	for _, section := range sections {
		if section == nil {
			continue
		}
		for _, items := range section.Subsections {
			count += len(items)
		}
	}
	return count
}

// TotalWithPercentages adds percentage items (contingency and the like) on
// top of the grand total. Each percentage item contributes base*pct/100 to
// both cost and charge.
func TotalWithPercentages(sections map[string]*quote.Section, percentageItems []quote.LineItem) Totals {
	base := GrandTotal(sections)
	var extra Totals
	for _, item := range percentageItems {
		pct := num(item.PercentValue)
		if !item.IsPercentage || pct == 0 {
			continue
		}
		extra.Cost += base.Cost * pct / 100
		extra.Charge += base.Charge * pct / 100
	}
	return base.Add(extra)
}
