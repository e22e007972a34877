package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tellquote/tellquote/internal/quote"
)

// Direction moves a section within the section order.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ToggleSection flips a section's expanded state and returns the new state.
func (s *Store) ToggleSection(ctx context.Context, sectionID string) (bool, error) {
	var expanded bool
	err := s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		section, err := findSection(q, sectionID)
		if err != nil {
			return false, err
		}
		section.IsExpanded = !section.IsExpanded
		expanded = section.IsExpanded
		return true, nil
	})
	return expanded, err
}

// MoveSection swaps a section with its neighbour. Moving past either end is
// a no-op.
func (s *Store) MoveSection(ctx context.Context, sectionID string, dir Direction) error {
	if dir != Up && dir != Down {
		return fmt.Errorf("%w: direction %q", quote.ErrInvalidDocument, dir)
	}
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		if _, err := findSection(q, sectionID); err != nil {
			return false, err
		}
		order := q.OrderedSectionIDs()
		i := slices.Index(order, sectionID)
		j := i + 1
		if dir == Up {
			j = i - 1
		}
		if j < 0 || j >= len(order) {
			return false, nil
		}
		order[i], order[j] = order[j], order[i]
		q.SectionOrder = order
		return true, nil
	})
}

// UpdateSectionName overrides a section's display name. A blank name
// restores the default.
func (s *Store) UpdateSectionName(ctx context.Context, sectionID, name string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		if _, err := findSection(q, sectionID); err != nil {
			return false, err
		}
		if q.SectionNames == nil {
			q.SectionNames = map[string]string{}
		}
		if name = strings.TrimSpace(name); name != "" {
			q.SectionNames[sectionID] = name
		} else {
			delete(q.SectionNames, sectionID)
		}
		return true, nil
	})
}

// AddCustomSubsection adds an empty subsection. Names are unique within a
// section.
func (s *Store) AddCustomSubsection(ctx context.Context, sectionID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty subsection name", quote.ErrInvalidDocument)
	}
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		section, err := findSection(q, sectionID)
		if err != nil {
			return false, err
		}
		if _, exists := section.Subsections[name]; exists {
			return false, fmt.Errorf("%w: %s/%s", quote.ErrDuplicateSubsection, sectionID, name)
		}
		section.Subsections[name] = []quote.LineItem{}
		section.CustomSubsections = append(section.CustomSubsections, name)
		if len(section.SubsectionOrder) > 0 {
			section.SubsectionOrder = append(section.SubsectionOrder, name)
		}
		return true, nil
	})
}

// ReorderSubsections sets the display order of a section's subsections.
// Every name must exist and appear once.
func (s *Store) ReorderSubsections(ctx context.Context, sectionID string, order []string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		section, err := findSection(q, sectionID)
		if err != nil {
			return false, err
		}
		seen := make(map[string]bool, len(order))
		for _, name := range order {
			if _, ok := section.Subsections[name]; !ok {
				return false, fmt.Errorf("%w: %s/%s", quote.ErrSubsectionNotFound, sectionID, name)
			}
			if seen[name] {
				return false, fmt.Errorf("%w: %s listed twice", quote.ErrInvalidDocument, name)
			}
			seen[name] = true
		}
		section.SubsectionOrder = append([]string(nil), order...)
		return true, nil
	})
}

// UpdateSubsectionName sets a subsection's display name. A blank name, or
// one equal to the original, removes the override.
func (s *Store) UpdateSubsectionName(ctx context.Context, sectionID, original, name string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		section, _, err := findSubsection(q, sectionID, original)
		if err != nil {
			return false, err
		}
		if section.SubsectionNames == nil {
			section.SubsectionNames = map[string]string{}
		}
		if name = strings.TrimSpace(name); name != "" && name != original {
			section.SubsectionNames[original] = name
		} else {
			delete(section.SubsectionNames, original)
		}
		return true, nil
	})
}

// UpdateQuoteStatus sets the status and appends it to the history.
func (s *Store) UpdateQuoteStatus(ctx context.Context, status quote.Status, note, userID string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", quote.ErrInvalidStatus, status)
	}
	if userID == "" {
		userID = "default"
	}
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		q.Status = status
		q.StatusHistory = append(q.StatusHistory, quote.StatusChange{
			Status:    status,
			Timestamp: s.now(),
			UserID:    userID,
			Note:      note,
		})
		return true, nil
	})
}

// SetNextFollowUpDate sets or, with an empty date, clears the follow-up date.
func (s *Store) SetNextFollowUpDate(ctx context.Context, date string) error {
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return fmt.Errorf("%w: follow-up date %q", quote.ErrInvalidDocument, date)
		}
	}
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		if date == "" {
			q.NextFollowUpDate = nil
		} else {
			q.NextFollowUpDate = &date
		}
		return true, nil
	})
}

// SetLostReason records why a deal was lost. An empty reason clears it.
func (s *Store) SetLostReason(ctx context.Context, reason, notes string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		if reason == "" {
			q.LostReason = nil
		} else {
			q.LostReason = &reason
		}
		q.LostReasonNotes = notes
		return true, nil
	})
}

// SetInternalNotes replaces the internal notes.
func (s *Store) SetInternalNotes(ctx context.Context, notes string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		q.InternalNotes = notes
		return true, nil
	})
}

// Reset replaces the quote with a fresh one.
func (s *Store) Reset(ctx context.Context) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		*q = *quote.New(s.now(), s.defaults)
		return true, nil
	})
}

// Load merges a saved document over a fresh quote and makes it current.
func (s *Store) Load(ctx context.Context, raw []byte) error {
	loaded, err := quote.Merge(raw, s.now(), s.defaults)
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		*q = *loaded
		return true, nil
	})
}
