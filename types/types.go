package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSchema is returned when a form definition is structurally malformed.
var ErrInvalidSchema = errors.New("invalid schema")

// SchemaError describes which field of a form definition is malformed.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidSchema, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidSchema, e.Path, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrInvalidSchema }

// FormField is either a leaf holding a value or a group holding subfields.
// A group never carries a value of its own.
type FormField struct {
	Name      string      `json:"name" jsonschema:"required,description=The name of the field"`
	Type      string      `json:"type" jsonschema:"required,description=The type of the field (e.g. text, number, address, phone number, email, date)"`
	Value     any         `json:"value" jsonschema:"description=The user's response for this field or null when unanswered"`
	Subfields []FormField `json:"subfields,omitempty" jsonschema:"description=Nested fields of a composite field"`
}

// IsGroup reports whether the field is composite.
func (f FormField) IsGroup() bool {
	return len(f.Subfields) > 0
}

// Filled reports whether the field, and every subfield below it, holds a value.
func (f FormField) Filled() bool {
	if f.IsGroup() {
		for _, sub := range f.Subfields {
			if !sub.Filled() {
				return false
			}
		}
		return true
	}
	return f.Value != nil
}

func (f FormField) clone() FormField {
	out := f
	if f.Subfields != nil {
		out.Subfields = make([]FormField, len(f.Subfields))
		for i, sub := range f.Subfields {
			out.Subfields[i] = sub.clone()
		}
	}
	return out
}

// FormSchema is a named form whose field order is the asking order.
type FormSchema struct {
	Name   string      `json:"name" jsonschema:"required,description=The name of the form"`
	Fields []FormField `json:"fields" jsonschema:"required,description=The ordered fields of the form"`
}

// NewFormSchema validates the field tree and returns a detached copy of it.
func NewFormSchema(name string, fields []FormField) (FormSchema, error) {
	if len(fields) == 0 {
		return FormSchema{}, &SchemaError{Reason: "form has no fields"}
	}
	if err := validateFields("", fields); err != nil {
		return FormSchema{}, err
	}
	s := FormSchema{Name: name, Fields: cloneFields(fields)}
	s.normalize()
	return s, nil
}

func validateFields(prefix string, fields []FormField) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		path := joinPath(prefix, f.Name)
		if strings.TrimSpace(f.Name) == "" {
			return &SchemaError{Path: prefix, Reason: "field name is empty"}
		}
		if _, dup := seen[f.Name]; dup {
			return &SchemaError{Path: path, Reason: "duplicate field name"}
		}
		seen[f.Name] = struct{}{}
		if !f.IsGroup() {
			if _, err := NormalizeValue(f.Value); err != nil {
				return &SchemaError{Path: path, Reason: err.Error()}
			}
			continue
		}
		if f.Value != nil {
			return &SchemaError{Path: path, Reason: "field declares both a value and subfields"}
		}
		if err := validateFields(path, f.Subfields); err != nil {
			return err
		}
	}
	return nil
}

// Validate re-checks the structural invariants of an already built schema.
func (s FormSchema) Validate() error {
	if len(s.Fields) == 0 {
		return &SchemaError{Reason: "form has no fields"}
	}
	return validateFields("", s.Fields)
}

// Clone returns a deep copy so callers can mutate values without aliasing.
func (s FormSchema) Clone() FormSchema {
	return FormSchema{Name: s.Name, Fields: cloneFields(s.Fields)}
}

// Filled reports whether every leaf of the form holds a value.
func (s FormSchema) Filled() bool {
	for _, f := range s.Fields {
		if !f.Filled() {
			return false
		}
	}
	return true
}

// Leaves returns every leaf field in asking order.
func (s FormSchema) Leaves() []FieldInfo {
	var out []FieldInfo
	walkLeaves("", "", s.Fields, func(info FieldInfo, _ FormField) {
		out = append(out, info)
	})
	return out
}

// Missing returns the leaves that are still unanswered, in asking order.
func (s FormSchema) Missing() []FieldInfo {
	var out []FieldInfo
	walkLeaves("", "", s.Fields, func(info FieldInfo, f FormField) {
		if f.Value == nil {
			out = append(out, info)
		}
	})
	return out
}

// Values renders the answers as a nested object keyed by field name.
func (s FormSchema) Values() map[string]any {
	return fieldValues(s.Fields)
}

func fieldValues(fields []FormField) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.IsGroup() {
			out[f.Name] = fieldValues(f.Subfields)
			continue
		}
		out[f.Name] = f.Value
	}
	return out
}

// normalize clears values on groups and coerces leaf values to string or float64.
func (s *FormSchema) normalize() {
	normalizeFields(s.Fields)
}

func normalizeFields(fields []FormField) {
	for i := range fields {
		if fields[i].IsGroup() {
			fields[i].Value = nil
			normalizeFields(fields[i].Subfields)
			continue
		}
		fields[i].Subfields = nil
		fields[i].Value, _ = NormalizeValue(fields[i].Value)
	}
}

// NormalizeValue maps a decoded JSON value onto the value domain of a leaf:
// nil, a non-blank string, or a float64.
func NormalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return val, nil
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val.String())
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func cloneFields(fields []FormField) []FormField {
	if fields == nil {
		return nil
	}
	out := make([]FormField, len(fields))
	for i, f := range fields {
		out[i] = f.clone()
	}
	return out
}

func walkLeaves(pointer, path string, fields []FormField, fn func(FieldInfo, FormField)) {
	for i, f := range fields {
		ptr := pointer + "/" + strconv.Itoa(i)
		p := joinPath(path, f.Name)
		if f.IsGroup() {
			walkLeaves(ptr+"/subfields", p, f.Subfields, fn)
			continue
		}
		fn(FieldInfo{
			JSONPointer: "/fields" + ptr + "/value",
			Path:        p,
			DisplayName: f.Name,
			Type:        f.Type,
			Required:    true,
		}, f)
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// FieldInfo locates a leaf inside a form.
type FieldInfo struct {
	JSONPointer string `json:"json_pointer"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required"`
}
