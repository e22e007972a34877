package quote

import (
	"sort"
	"time"

	"github.com/tellquote/tellquote/internal/currency"
)

// Section identifiers defined by the schema.
const (
	SectionProductionTeam      = "productionTeam"
	SectionProductionEquipment = "productionEquipment"
	SectionCreative            = "creative"
	SectionLogistics           = "logistics"
	SectionExpenses            = "expenses"
)

// SectionDef is the schema entry a quote section is instantiated from.
type SectionDef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Color       string   `json:"color"`
	Subsections []string `json:"subsections"`
}

var sectionOrder = []string{
	SectionProductionTeam,
	SectionProductionEquipment,
	SectionCreative,
	SectionLogistics,
	SectionExpenses,
}

var schema = map[string]SectionDef{
	SectionProductionTeam: {
		ID:          SectionProductionTeam,
		Name:        "Production Team",
		Color:       "#3B82F6",
		Subsections: []string{"Production", "Technical Crew", "Production Management"},
	},
	SectionProductionEquipment: {
		ID:          SectionProductionEquipment,
		Name:        "Production Equipment",
		Color:       "#06B6D4",
		Subsections: []string{"Video", "Audio", "Cameras", "Graphics", "VT", "Cabling", "Other"},
	},
	SectionCreative: {
		ID:          SectionCreative,
		Name:        "Creative",
		Color:       "#EC4899",
		Subsections: []string{"Services"},
	},
	SectionLogistics: {
		ID:          SectionLogistics,
		Name:        "Logistics",
		Color:       "#F59E0B",
		Subsections: []string{"Services"},
	},
	SectionExpenses: {
		ID:          SectionExpenses,
		Name:        "Expenses",
		Color:       "#10B981",
		Subsections: []string{"Services"},
	},
}

// SectionOrder lists schema section ids in default display order.
func SectionOrder() []string {
	out := make([]string, len(sectionOrder))
	copy(out, sectionOrder)
	return out
}

// LookupSchema returns the schema definition for a section id.
func LookupSchema(id string) (SectionDef, bool) {
	def, ok := schema[id]
	if !ok {
		return SectionDef{}, false
	}
	def.Subsections = append([]string(nil), def.Subsections...)
	return def, true
}

// NewSection instantiates a schema section with empty subsections.
func NewSection(def SectionDef) *Section {
	subs := make(map[string][]LineItem, len(def.Subsections))
	for _, name := range def.Subsections {
		subs[name] = []LineItem{}
	}
	return &Section{
		ID:                def.ID,
		Name:              def.Name,
		Color:             def.Color,
		Subsections:       subs,
		CustomSubsections: []string{},
		IsExpanded:        true,
	}
}

// NewSections instantiates every schema section.
func NewSections() map[string]*Section {
	out := make(map[string]*Section, len(sectionOrder))
	for _, id := range sectionOrder {
		out[id] = NewSection(schema[id])
	}
	return out
}

// Defaults configures New.
type Defaults struct {
	NumberPrefix string
	Region       string
	Currency     string
	ValidityDays int
}

// New builds an empty quote stamped at now.
func New(now time.Time, d Defaults) *Quote {
	region := d.Region
	if _, ok := currency.LookupRegion(region); !ok {
		region = currency.RegionSEA
	}
	code := d.Currency
	if !currency.Supported(code) {
		code = currency.USD
	}
	validity := d.ValidityDays
	if validity <= 0 {
		validity = 30
	}
	now = now.UTC()
	return &Quote{
		QuoteNumber:   NewNumber(d.NumberPrefix, now),
		Currency:      code,
		Region:        region,
		QuoteDate:     now.Format(time.DateOnly),
		ValidityDays:  validity,
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		Project:       Project{Type: "broadcast"},
		PreparedBy:    "default",
		SectionOrder:  SectionOrder(),
		SectionNames:  map[string]string{},
		Sections:      NewSections(),
		StatusHistory: []StatusChange{},
	}
}

// EnsureSchema adds any schema section or subsection missing from q and
// initialises nil collections on every section, including ones the schema
// does not define. Persisted quotes that predate a schema change
// stay loadable this way.
func EnsureSchema(q *Quote) {
	if q.Sections == nil {
		q.Sections = map[string]*Section{}
	}
	if q.SectionNames == nil {
		q.SectionNames = map[string]string{}
	}
	if len(q.SectionOrder) == 0 {
		q.SectionOrder = SectionOrder()
	}
	if q.StatusHistory == nil {
		q.StatusHistory = []StatusChange{}
	}
	if q.Status == "" {
		q.Status = StatusDraft
	}
	for _, id := range sectionOrder {
		def := schema[id]
		section := q.Sections[id]
		if section == nil {
			q.Sections[id] = NewSection(def)
			continue
		}
		if section.ID == "" {
			section.ID = id
		}
		if section.Name == "" {
			section.Name = def.Name
		}
		if section.Color == "" {
			section.Color = def.Color
		}
		if section.Subsections == nil {
			section.Subsections = map[string][]LineItem{}
		}
		for _, name := range def.Subsections {
			if _, ok := section.Subsections[name]; !ok {
				section.Subsections[name] = []LineItem{}
			}
		}
		if section.CustomSubsections == nil {
			section.CustomSubsections = []string{}
		}
	}
	for id, section := range q.Sections {
		if section == nil {
			delete(q.Sections, id)
			continue
		}
		if section.ID == "" {
			section.ID = id
		}
		if section.Subsections == nil {
			section.Subsections = map[string][]LineItem{}
		}
		if section.CustomSubsections == nil {
			section.CustomSubsections = []string{}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
