// Package quote defines the quote document: its sections, line items, fees
// and deal-flow metadata, together with the section schema and load-time
// validation.
package quote

import (
	"time"
)

// Status is the deal-flow state of a quote.
type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusWon   Status = "won"
	StatusDead  Status = "dead"
	// StatusApproved is a legacy status treated as won.
	StatusApproved Status = "approved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusWon, StatusDead, StatusApproved:
		return true
	}
	return false
}

// IsWon reports whether the status counts as confirmed business.
func (s Status) IsWon() bool {
	return s == StatusWon || s == StatusApproved
}

// LineItem is a priced row. Cost and Charge are per unit and denominated in
// the quote's currency.
type LineItem struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Quantity       float64 `json:"quantity"`
	Days           float64 `json:"days"`
	Cost           float64 `json:"cost"`
	Charge         float64 `json:"charge"`
	Unit           string  `json:"unit,omitempty"`
	RateCardItemID string  `json:"rateCardItemId,omitempty"`
	IsPercentage   bool    `json:"isPercentage,omitempty"`
	PercentValue   float64 `json:"percentValue,omitempty"`
}

// Section groups line items into named subsections.
type Section struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Color             string                `json:"color"`
	Subsections       map[string][]LineItem `json:"subsections"`
	CustomSubsections []string              `json:"customSubsections"`
	SubsectionOrder   []string              `json:"subsectionOrder,omitempty"`
	SubsectionNames   map[string]string     `json:"subsectionNames,omitempty"`
	IsExpanded        bool                  `json:"isExpanded"`
}

// Fees are percentages applied to the aggregated charge.
type Fees struct {
	ManagementFee  float64 `json:"managementFee"`
	CommissionFee  float64 `json:"commissionFee"`
	Discount       float64 `json:"discount"`
	DistributeFees bool    `json:"distributeFees"`
}

// Client holds the customer contact captured on a quote.
type Client struct {
	Company   string  `json:"company"`
	ContactID *string `json:"contactId"`
	Contact   string  `json:"contact"`
	Role      string  `json:"role"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Notes     string  `json:"notes"`
}

// Project describes the production being quoted.
type Project struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Venue       string `json:"venue"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Description string `json:"description"`
}

// StatusChange records a status transition.
type StatusChange struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId"`
	Note      string    `json:"note"`
}

// Quote is the aggregate root of a quote document.
type Quote struct {
	ID               string              `json:"id,omitempty"`
	QuoteNumber      string              `json:"quoteNumber"`
	Currency         string              `json:"currency"`
	Region           string              `json:"region"`
	QuoteDate        string              `json:"quoteDate"`
	ValidityDays     int                 `json:"validityDays"`
	Status           Status              `json:"status"`
	IsLocked         bool                `json:"isLocked"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
	SavedAt          *time.Time          `json:"savedAt,omitempty"`
	Client           Client              `json:"client"`
	Project          Project             `json:"project"`
	Fees             Fees                `json:"fees"`
	PreparedBy       string              `json:"preparedBy"`
	SectionOrder     []string            `json:"sectionOrder"`
	SectionNames     map[string]string   `json:"sectionNames"`
	Sections         map[string]*Section `json:"sections"`
	StatusHistory    []StatusChange      `json:"statusHistory"`
	NextFollowUpDate *string             `json:"nextFollowUpDate"`
	LostReason       *string             `json:"lostReason"`
	LostReasonNotes  string              `json:"lostReasonNotes"`
	InternalNotes    string              `json:"internalNotes"`
}

// EachItem calls fn for every line item in section order, then subsection
// order. Returning false stops the walk.
func (q *Quote) EachItem(fn func(sectionID, subsection string, item *LineItem) bool) {
	if q == nil {
		return
	}
	for _, sectionID := range q.OrderedSectionIDs() {
		section := q.Sections[sectionID]
		if section == nil {
			continue
		}
		for _, sub := range section.OrderedSubsections() {
			items := section.Subsections[sub]
			for i := range items {
				if !fn(sectionID, sub, &items[i]) {
					return
				}
			}
		}
	}
}

// OrderedSectionIDs returns SectionOrder followed by any section not listed there.
func (q *Quote) OrderedSectionIDs() []string {
	seen := make(map[string]bool, len(q.Sections))
	out := make([]string, 0, len(q.Sections))
	for _, id := range q.SectionOrder {
		if _, ok := q.Sections[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range SectionOrder() {
		if _, ok := q.Sections[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range sortedKeys(q.Sections) {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// DisplayName returns the overridden section name when set.
func (q *Quote) DisplayName(sectionID string) string {
	if name := q.SectionNames[sectionID]; name != "" {
		return name
	}
	if s := q.Sections[sectionID]; s != nil {
		return s.Name
	}
	return sectionID
}

// OrderedSubsections returns SubsectionOrder when set, otherwise the schema
// subsections followed by custom ones in creation order. Subsections holding
// items but missing from both lists are appended alphabetically.
func (s *Section) OrderedSubsections() []string {
	seen := make(map[string]bool, len(s.Subsections))
	out := make([]string, 0, len(s.Subsections))
	add := func(name string) {
		if _, ok := s.Subsections[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	if len(s.SubsectionOrder) > 0 {
		for _, name := range s.SubsectionOrder {
			add(name)
		}
	} else {
		if def, ok := LookupSchema(s.ID); ok {
			for _, name := range def.Subsections {
				add(name)
			}
		}
		for _, name := range s.CustomSubsections {
			add(name)
		}
	}
	for _, name := range sortedKeys(s.Subsections) {
		add(name)
	}
	return out
}

// SubsectionDisplayName returns the renamed subsection label when set.
func (s *Section) SubsectionDisplayName(name string) string {
	if label := s.SubsectionNames[name]; label != "" {
		return label
	}
	return name
}

// Clone returns a deep copy of the quote.
func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	out := *q
	out.SavedAt = cloneTime(q.SavedAt)
	out.Client.ContactID = cloneString(q.Client.ContactID)
	out.NextFollowUpDate = cloneString(q.NextFollowUpDate)
	out.LostReason = cloneString(q.LostReason)
	out.SectionOrder = append([]string(nil), q.SectionOrder...)
	out.SectionNames = cloneStringMap(q.SectionNames)
	out.StatusHistory = append([]StatusChange(nil), q.StatusHistory...)
	out.Sections = make(map[string]*Section, len(q.Sections))
	for id, section := range q.Sections {
		out.Sections[id] = section.Clone()
	}
	return &out
}

// Clone returns a deep copy of the section.
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	out := *s
	out.Subsections = make(map[string][]LineItem, len(s.Subsections))
	for name, items := range s.Subsections {
		out.Subsections[name] = append([]LineItem{}, items...)
	}
	out.CustomSubsections = append([]string{}, s.CustomSubsections...)
	out.SubsectionOrder = append([]string(nil), s.SubsectionOrder...)
	out.SubsectionNames = cloneStringMap(s.SubsectionNames)
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
