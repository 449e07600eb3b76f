// Package schema builds runtime schema descriptors for structured clinical
// documents.
//
// A Descriptor is an ordered list of named string fields, constructed once
// per request from caller input (or from a built-in clinical note layout)
// and immutable afterwards. The schema-constrained completion capability
// targets a Descriptor; its output is validated structurally against the
// same Descriptor object end to end, which is what preserves field identity
// across the generate→refine pipeline.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDocType is returned for a document type with no built-in
// descriptor. Callers surface it as an invalid request, before any workflow
// node runs.
var ErrUnknownDocType = errors.New("schema: unknown document type")

// Field is one named, described, string-typed document section.
type Field struct {
	Name        string `json:"label"`
	Description string `json:"description"`
}

// Descriptor is an ordered, immutable set of string fields describing the
// expected structured output of a completion.
type Descriptor struct {
	docType string
	fields  []Field
	byName  map[string]int
}

// New builds a Descriptor for the given document type from an ordered field
// list.
//
// Validation: at least one field; names non-empty, unique ignoring case, and
// snake_case identifiers (letters, digits, underscores, starting with a
// letter). Descriptions may be empty. All fields are string-typed.
func New(docType string, fields []Field) (*Descriptor, error) {
	if docType == "" {
		return nil, errors.New("schema: document type cannot be empty")
	}
	if len(fields) == 0 {
		return nil, errors.New("schema: at least one field is required")
	}

	byName := make(map[string]int, len(fields))
	ordered := make([]Field, 0, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("schema: field %d has an empty name", i)
		}
		if !validFieldName(name) {
			return nil, fmt.Errorf("schema: field name %q is not a valid identifier", name)
		}
		key := strings.ToLower(name)
		if _, dup := byName[key]; dup {
			return nil, fmt.Errorf("schema: duplicate field name %q", name)
		}
		byName[key] = i
		ordered = append(ordered, Field{Name: key, Description: strings.TrimSpace(f.Description)})
	}

	return &Descriptor{
		docType: strings.ToLower(strings.TrimSpace(docType)),
		fields:  ordered,
		byName:  byName,
	}, nil
}

func validFieldName(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// DocType returns the document type label this descriptor was built for.
func (d *Descriptor) DocType() string { return d.docType }

// Len returns the number of fields.
func (d *Descriptor) Len() int { return len(d.fields) }

// Fields returns the ordered field list as a copy.
func (d *Descriptor) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Names returns the ordered field names.
func (d *Descriptor) Names() []string {
	out := make([]string, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.Name
	}
	return out
}

// Has reports whether name is a declared field (case-insensitive).
func (d *Descriptor) Has(name string) bool {
	_, ok := d.byName[strings.ToLower(name)]
	return ok
}

// JSONSchema renders the descriptor as a JSON Schema object: every field a
// required string property, no additional properties. Providers feed this to
// their structured-output or function-calling machinery.
func (d *Descriptor) JSONSchema() map[string]any {
	properties := make(map[string]any, len(d.fields))
	required := make([]string, 0, len(d.fields))
	for _, f := range d.fields {
		prop := map[string]any{"type": "string"}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		properties[f.Name] = prop
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// Conform checks that out carries exactly the declared field-name set:
// no missing fields, no extras. A violation is a schema mismatch and is
// reported, never coerced.
func (d *Descriptor) Conform(out map[string]string) error {
	var errs []error
	for _, f := range d.fields {
		if _, ok := out[f.Name]; !ok {
			errs = append(errs, fmt.Errorf("schema: missing field %q", f.Name))
		}
	}
	for name := range out {
		if !d.Has(name) {
			errs = append(errs, fmt.Errorf("schema: undeclared field %q", name))
		}
	}
	return errors.Join(errs...)
}
