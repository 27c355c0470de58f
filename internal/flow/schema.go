// README: Field schema descriptors and the data-driven validator shared by flow input and output.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FieldType tags the value kind a field accepts.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeEnum   FieldType = "enum"
	TypeList   FieldType = "list"
)

// Field declares one named value and its constraints.
// Zero-valued constraints are not enforced; Min/Max are pointers so that 0 can be a bound.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Default     string
	MinLength   int
	MaxLength   int
	Min         *float64
	Max         *float64
	Values      []string
}

// Schema is an ordered list of fields. Order drives error reporting and backend schema layout.
type Schema []Field

// Field returns the declared field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names lists the field names in declaration order.
func (s Schema) Names() []string {
	out := make([]string, 0, len(s))
	for _, f := range s {
		out = append(out, f.Name)
	}
	return out
}

// check reports a malformed schema (duplicate names, unknown types, contradictory bounds).
func (s Schema) check() error {
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if !isIdentifier(f.Name) {
			return fmt.Errorf("%w: invalid field name %q", ErrInvalidSchema, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		seen[f.Name] = true

		switch f.Type {
		case TypeString, TypeNumber, TypeList:
		case TypeEnum:
			if len(f.Values) == 0 {
				return fmt.Errorf("%w: enum field %q has no values", ErrInvalidSchema, f.Name)
			}
		default:
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidSchema, f.Name, f.Type)
		}
		if f.MaxLength > 0 && f.MinLength > f.MaxLength {
			return fmt.Errorf("%w: field %q min_length > max_length", ErrInvalidSchema, f.Name)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("%w: field %q min > max", ErrInvalidSchema, f.Name)
		}
		if f.Default != "" {
			if _, v := coerce(f, f.Default); v != nil {
				return fmt.Errorf("%w: field %q default: %s", ErrInvalidSchema, f.Name, v.Message)
			}
		}
	}
	return nil
}

// Reason classifies a single field violation.
type Reason string

const (
	MissingField        Reason = "missing_field"
	TypeMismatch        Reason = "type_mismatch"
	ConstraintViolation Reason = "constraint_violation"
)

// Violation describes why one field was rejected.
type Violation struct {
	Field   string `json:"field"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// ValidationError carries every violated field of one validation pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields groups violation messages by field name, the shape form handlers report back.
func (e *ValidationError) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Violations))
	for _, v := range e.Violations {
		out[v.Field] = append(out[v.Field], v.Message)
	}
	return out
}

// Values holds validated values: string, float64 or []string depending on the field type.
type Values map[string]any

// ValidateInput validates textual form input.
func ValidateInput(schema Schema, raw map[string]string) (Values, error) {
	m := make(map[string]any, len(raw))
	for k, v := range raw {
		m[k] = v
	}
	return Validate(schema, m)
}

// Validate checks raw against schema and coerces every declared field to its type.
// A blank value for a field with a default counts as absent. Undeclared keys are ignored. The returned error is a *ValidationError listing all violations.
func Validate(schema Schema, raw map[string]any) (Values, error) {
	out := make(Values, len(schema))
	var violations []Violation

	for _, f := range schema {
		rv, ok := raw[f.Name]
		if s, isStr := rv.(string); isStr && f.Default != "" && strings.TrimSpace(s) == "" {
			ok = false
		}
		if !ok || rv == nil {
			if f.Default != "" {
				rv = f.Default
			} else if f.Required {
				violations = append(violations, Violation{Field: f.Name, Reason: MissingField, Message: f.Name + " is required"})
				continue
			} else {
				continue
			}
		}

		v, violation := coerce(f, rv)
		if violation != nil {
			violations = append(violations, *violation)
			continue
		}
		out[f.Name] = v
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return out, nil
}

func coerce(f Field, rv any) (any, *Violation) {
	switch f.Type {
	case TypeString:
		s, ok := rv.(string)
		if !ok {
			return nil, mismatch(f, "a string")
		}
		return s, checkLength(f, s)

	case TypeEnum:
		s, ok := rv.(string)
		if !ok {
			return nil, mismatch(f, "a string")
		}
		s = strings.TrimSpace(s)
		for _, allowed := range f.Values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, &Violation{
			Field:   f.Name,
			Reason:  ConstraintViolation,
			Message: fmt.Sprintf("%s must be one of %s", f.Name, strings.Join(f.Values, ", ")),
		}

	case TypeNumber:
		n, ok := toNumber(rv)
		if !ok {
			return nil, mismatch(f, "a number")
		}
		if f.Min != nil && n < *f.Min {
			return nil, &Violation{Field: f.Name, Reason: ConstraintViolation, Message: fmt.Sprintf("%s must be at least %s", f.Name, formatNumber(*f.Min))}
		}
		if f.Max != nil && n > *f.Max {
			return nil, &Violation{Field: f.Name, Reason: ConstraintViolation, Message: fmt.Sprintf("%s must be at most %s", f.Name, formatNumber(*f.Max))}
		}
		return n, nil

	case TypeList:
		items, ok := toList(rv)
		if !ok {
			return nil, mismatch(f, "a list of strings")
		}
		if f.MinLength > 0 && len(items) < f.MinLength {
			return nil, &Violation{Field: f.Name, Reason: ConstraintViolation, Message: fmt.Sprintf("%s must have at least %d items", f.Name, f.MinLength)}
		}
		if f.MaxLength > 0 && len(items) > f.MaxLength {
			return nil, &Violation{Field: f.Name, Reason: ConstraintViolation, Message: fmt.Sprintf("%s must have at most %d items", f.Name, f.MaxLength)}
		}
		return items, nil
	}
	return nil, mismatch(f, string(f.Type))
}

func checkLength(f Field, s string) *Violation {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if f.MinLength > 0 && n < f.MinLength {
		msg := fmt.Sprintf("%s must be at least %d characters", f.Name, f.MinLength)
		if f.MinLength == 1 {
			msg = f.Name + " must not be empty"
		}
		return &Violation{Field: f.Name, Reason: ConstraintViolation, Message: msg}
	}
	if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
		return &Violation{Field: f.Name, Reason: ConstraintViolation, Message: fmt.Sprintf("%s must be at most %d characters", f.Name, f.MaxLength)}
	}
	return nil
}

func mismatch(f Field, want string) *Violation {
	return &Violation{Field: f.Name, Reason: TypeMismatch, Message: fmt.Sprintf("%s must be %s", f.Name, want)}
}

func toNumber(rv any) (float64, bool) {
	var n float64
	switch v := rv.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func toList(rv any) ([]string, bool) {
	switch v := rv.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		out := []string{}
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
