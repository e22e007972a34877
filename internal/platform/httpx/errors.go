package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
	ErrStorage    = errors.New("storage quota exceeded")
	ErrUpstream   = errors.New("upstream unavailable")
)

// StatusFor maps a domain error to its HTTP status and title.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict, "Duplicate"
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity, "Validation Failed"
	case errors.Is(err, ErrStorage):
		return http.StatusInsufficientStorage, "Storage Full"
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "Upstream Error"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal
// errors never leak their message.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, title, detail)
}
