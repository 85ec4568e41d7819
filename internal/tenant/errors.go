package tenant

import (
	"errors"
	"strings"
)

// ErrTenantNotFound is returned when no program has the requested id.
var ErrTenantNotFound = errors.New("tenant not found")

// Reasons attached to a FieldError.
const (
	ReasonRequired = "required"
	ReasonInvalid  = "invalid"
)

// FieldError names one missing or malformed request field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FieldErrors collects every offending field of a request.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Field + " is " + e.Reason
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

// Fields returns the offending field names in report order.
func (fe FieldErrors) Fields() []string {
	names := make([]string, len(fe))
	for i, e := range fe {
		names[i] = e.Field
	}
	return names
}
