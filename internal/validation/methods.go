package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Validator defines validation methods
type Validator struct {
	Errors map[string]string
}

// New creates a new validator
func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

// Valid checks if there are any validation errors
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError adds an error to the validator. The first error for a field wins.
func (v *Validator) AddError(field, message string) {
	if _, exists := v.Errors[field]; !exists {
		v.Errors[field] = message
	}
}

// Check adds an error if the condition is false
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.AddError(field, message)
	}
}

// Required checks if a string is not empty
func (v *Validator) Required(field string, value interface{}) {
	if value == nil {
		v.AddError(field, "must not be nil")
		return
	}

	switch val := value.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		v.Check(trimmed != "", field, "must not be empty")
	case decimal.Decimal:
		v.Check(!val.IsZero(), field, "must not be zero")
	case float64:
		v.Check(val != 0, field, "must not be zero")
	case int:
		v.Check(val != 0, field, "must not be zero")
	}
}

// MaxLength checks if a string has at most n characters
func (v *Validator) MaxLength(field string, value string, n int) {
	v.Check(len(value) <= n, field, fmt.Sprintf("must not be more than %d characters long", n))
}

// Amount checks a money value is positive, within limit and has at most
// scale decimal places.
func (v *Validator) Amount(field string, value, limit decimal.Decimal, scale int32) {
	v.Check(value.IsPositive(), field, "must be greater than zero")
	v.Check(value.LessThanOrEqual(limit), field, fmt.Sprintf("must not exceed %s", limit))
	v.Check(value.Equal(value.Truncate(scale)), field, fmt.Sprintf("must have at most %d decimal places", scale))
}

// Error renders the collected errors as "field: message" pairs in field
// order.
func (v *Validator) Error() string {
	fields := make([]string, 0, len(v.Errors))
	for field := range v.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.Errors[field])
	}
	return strings.Join(parts, "; ")
}
