// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 4 << 20

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string            `json:"type,omitempty"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes a bounded JSON request body into target.
func DecodeJSON(r *http.Request, target any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrValidation)
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Bind decodes the body into target and runs struct validation. Validation
// failures are written as a 422 problem with per-field messages; the
// returned bool reports whether the caller may continue.
func Bind(w http.ResponseWriter, r *http.Request, v *validator.Validate, target any) bool {
	if err := DecodeJSON(r, target); err != nil {
		RespondError(w, err)
		return false
	}
	return Validate(w, v, target)
}

// Validate runs struct validation on an already populated target, e.g. a
// DTO built from query parameters.
func Validate(w http.ResponseWriter, v *validator.Validate, target any) bool {
	if v == nil {
		return true
	}
	if err := v.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			RespondError(w, fmt.Errorf("%w: %v", ErrValidation, err))
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[lowerFirst(fe.Field())] = fieldMessage(fe)
		}
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Fields: fields,
		})
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	default:
		return "is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
