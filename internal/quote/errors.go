package quote

import (
	"errors"
	"fmt"

	"github.com/tellquote/tellquote/internal/platform/httpx"
)

var (
	ErrInvalidDocument     = fmt.Errorf("quote: invalid document: %w", httpx.ErrValidation)
	ErrInvalidRegion       = fmt.Errorf("quote: unknown region: %w", httpx.ErrValidation)
	ErrInvalidCurrency     = fmt.Errorf("quote: unknown currency: %w", httpx.ErrValidation)
	ErrInvalidStatus       = fmt.Errorf("quote: unknown status: %w", httpx.ErrValidation)
	ErrNonFiniteValue      = fmt.Errorf("quote: non-finite numeric value: %w", httpx.ErrValidation)
	ErrSectionNotFound     = fmt.Errorf("quote: section not found: %w", httpx.ErrNotFound)
	ErrSubsectionNotFound  = fmt.Errorf("quote: subsection not found: %w", httpx.ErrNotFound)
	ErrItemNotFound        = fmt.Errorf("quote: line item not found: %w", httpx.ErrNotFound)
	ErrDuplicateSubsection = fmt.Errorf("quote: subsection already exists: %w", httpx.ErrDuplicate)
)

// SaveKind classifies a persistence failure.
type SaveKind string

const (
	SaveKindQuota   SaveKind = "quota"
	SaveKindInvalid SaveKind = "invalid"
	SaveKindIO      SaveKind = "io"
)

// SaveError is returned by persisters when a quote could not be stored.
type SaveError struct {
	Kind SaveKind
	Err  error
}

func (e *SaveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("quote: save failed (%s)", e.Kind)
	}
	return fmt.Sprintf("quote: save failed (%s): %v", e.Kind, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Is lets callers match a SaveError against the httpx status sentinels.
func (e *SaveError) Is(target error) bool {
	switch e.Kind {
	case SaveKindQuota:
		return target == httpx.ErrStorage
	case SaveKindInvalid:
		return target == httpx.ErrValidation
	case SaveKindIO:
		return target == httpx.ErrUpstream
	}
	return false
}

// NewSaveError wraps err with a persistence failure kind.
func NewSaveError(kind SaveKind, err error) *SaveError {
	return &SaveError{Kind: kind, Err: err}
}

// SaveErrorKind extracts the failure kind from err.
func SaveErrorKind(err error) (SaveKind, bool) {
	var saveErr *SaveError
	if errors.As(err, &saveErr) {
		return saveErr.Kind, true
	}
	return "", false
}
