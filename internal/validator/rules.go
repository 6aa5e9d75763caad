package validator

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// FieldRule is a declarative set of checks for one top-level field of a decoded JSON body.
// Rules are built by chaining, for example:
//
//	validator.Body("name").IsString().MinLength(1).WithMessage("Must include a name (non-empty string)")
//
// A rule never stops a request by itself; Apply records the first failing check in a Validator.
type FieldRule struct {
	key      string
	optional bool
	checks   []fieldCheck
}

type fieldCheck struct {
	ok         func(value any) bool
	message    string
	overridden bool
}

// Body starts a rule for the body field named key.
func Body(key string) *FieldRule {
	return &FieldRule{key: key}
}

func (f *FieldRule) add(message string, ok func(value any) bool) *FieldRule {
	f.checks = append(f.checks, fieldCheck{ok: ok, message: message})
	return f
}

// IsString requires the field to be a JSON string.
func (f *FieldRule) IsString() *FieldRule {
	return f.add("must be a string", func(value any) bool {
		_, ok := value.(string)
		return ok
	})
}

// MinLength requires a string of at least n characters.
func (f *FieldRule) MinLength(n int) *FieldRule {
	return f.add(fmt.Sprintf("must be at least %d characters long", n), func(value any) bool {
		s, ok := value.(string)
		return ok && utf8.RuneCountInString(s) >= n
	})
}

// MaxLength requires a string of at most n bytes.
func (f *FieldRule) MaxLength(n int) *FieldRule {
	return f.add(fmt.Sprintf("must not be more than %d bytes long", n), func(value any) bool {
		s, ok := value.(string)
		return ok && len(s) <= n
	})
}

// IsEmail requires a string matching EmailRX.
func (f *FieldRule) IsEmail() *FieldRule {
	return f.add("must be a valid email address", func(value any) bool {
		s, ok := value.(string)
		return ok && Matches(s, EmailRX)
	})
}

// IsInt requires a JSON number without a fractional part.
func (f *FieldRule) IsInt() *FieldRule {
	return f.add("must be an integer value", func(value any) bool {
		n, ok := value.(float64)
		return ok && n == math.Trunc(n)
	})
}

// Custom adds an arbitrary check with its own message.
func (f *FieldRule) Custom(message string, ok func(value any) bool) *FieldRule {
	return f.add(message, ok)
}

// WithMessage replaces the message of every check added so far that has not already
// been given one.
func (f *FieldRule) WithMessage(message string) *FieldRule {
	for i := range f.checks {
		if !f.checks[i].overridden {
			f.checks[i].message = message
			f.checks[i].overridden = true
		}
	}
	return f
}

// Optional skips the rule entirely when the field is absent from the body.
func (f *FieldRule) Optional() *FieldRule {
	f.optional = true
	return f
}

// Apply runs the rule against body and records the first failure in v.
func (f *FieldRule) Apply(v *Validator, body map[string]any) {
	value, present := body[f.key]
	if !present && f.optional {
		return
	}

	for _, c := range f.checks {
		if !c.ok(value) {
			v.AddError(f.key, c.message)
			return
		}
	}
}
