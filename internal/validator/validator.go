package validator

import (
	"regexp"
	"slices"
)

// EmailRX matches the address format recommended by the W3C for email inputs.
var (
	EmailRX = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+\\/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")
)

// Validator collects validation errors keyed by field name.
type Validator struct {
	Errors map[string]string // Maps field names to their first error message.
}

// New initializes a new Validator instance with an empty map for errors.
func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

// Valid returns true if the Validator contains no errors.
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError records message for key unless key already has an error.
func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message // Later messages for the same field are dropped.
	}
}

// Check adds an error message to the Validator if the provided condition is false.
func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// In reports whether value is one of list. Used with Filters.SortSafelist.
func In(value string, list ...string) bool {
	return slices.Contains(list, value)
}

// Matches reports whether value matches rx.
func Matches(value string, rx *regexp.Regexp) bool {
	return rx.MatchString(value)
}
