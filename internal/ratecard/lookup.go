package ratecard

import "context"

// Lookup resolves rate card items for a quote being re-priced.
type Lookup interface {
	ByID(id string) (Item, bool)
	ByName(name string) (Item, bool)
}

// Index is an in-memory Lookup over a snapshot of the rate card.
type Index struct {
	byID   map[string]Item
	byName map[string]Item
}

// NewIndex indexes items by id and exact name. The first item wins on a
// duplicated name.
func NewIndex(items []Item) *Index {
	idx := &Index{
		byID:   make(map[string]Item, len(items)),
		byName: make(map[string]Item, len(items)),
	}
	for _, item := range items {
		idx.byID[item.ID] = item
		if _, ok := idx.byName[item.Name]; !ok {
			idx.byName[item.Name] = item
		}
	}
	return idx
}

// ByID implements Lookup.
func (i *Index) ByID(id string) (Item, bool) {
	if id == "" {
		return Item{}, false
	}
	item, ok := i.byID[id]
	return item, ok
}

// ByName implements Lookup.
func (i *Index) ByName(name string) (Item, bool) {
	item, ok := i.byName[name]
	return item, ok
}

// Lookup snapshots the current rate card.
func (s *Service) Lookup(ctx context.Context) (Lookup, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return NewIndex(items), nil
}
