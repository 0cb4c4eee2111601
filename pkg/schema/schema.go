// Package schema validates the structure of raw JSON payloads against a
// declared set of field rules.
//
// Rules are checked against the raw bytes rather than a decoded Go value so
// that a wrong-typed field is reported at its own path instead of failing
// the whole decode. A JSON null is treated the same as an absent field.
package schema

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// Kind is the JSON type a field must have.
type Kind int

const (
	String Kind = iota
	Number
	Bool
	Object
	StringArray
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "boolean"
	case Object:
		return "object"
	case StringArray:
		return "array of strings"
	default:
		return "unknown"
	}
}

func (k Kind) requirement() string {
	switch k {
	case Object:
		return "must be an object"
	case StringArray:
		return "must be an array of strings"
	default:
		return "must be a " + k.String()
	}
}

// Field is a single rule in a Schema.
type Field struct {
	// Key is the JSON object key on the wire (e.g. "chat_box").
	Key string

	// Name is the name used in error paths (e.g. "chatBox").
	Name string

	Kind     Kind
	Required bool

	// Fields are the nested rules of an Object field.
	Fields []Field
}

// Schema is an ordered set of top-level field rules.
type Schema struct {
	Fields []Field
}

// New creates a Schema from the given fields.
func New(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

// Validate checks data against every rule, including presence of required
// fields. All offending fields are collected into a single *ValidationError.
func (s *Schema) Validate(data []byte) error {
	return s.validate(data, true)
}

// ValidateTypes checks only that present fields have their declared type.
// Missing required fields are not reported.
func (s *Schema) ValidateTypes(data []byte) error {
	return s.validate(data, false)
}

func (s *Schema) validate(data []byte, strict bool) error {
	if !gjson.ValidBytes(data) {
		return &ValidationError{Fields: []FieldError{{Message: "body must be valid JSON"}}}
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return &ValidationError{Fields: []FieldError{{Message: "body must be a JSON object"}}}
	}

	w := walker{strict: strict}
	w.walk(root, s.Fields, "")
	if len(w.errs) == 0 {
		return nil
	}

	return &ValidationError{Fields: w.errs}
}

type walker struct {
	strict bool
	errs   []FieldError
}

func (w *walker) fail(path, msg string) {
	w.errs = append(w.errs, FieldError{Path: path, Message: msg})
}

func (w *walker) walk(parent gjson.Result, fields []Field, prefix string) {
	for _, f := range fields {
		path := prefix + f.Name
		value := parent.Get(gjson.Escape(f.Key))

		if !value.Exists() || value.Type == gjson.Null {
			if !w.strict || !f.Required {
				continue
			}
			w.fail(path, "is required")

			// Surface the nested required rules of a missing object so the
			// caller sees the leaf paths as well.
			if f.Kind == Object {
				w.walk(gjson.Result{}, f.Fields, path+".")
			}
			continue
		}

		w.check(value, f, path)
	}
}

func (w *walker) check(value gjson.Result, f Field, path string) {
	switch f.Kind {
	case String:
		if value.Type != gjson.String {
			w.fail(path, f.Kind.requirement())
		}

	case Number:
		if value.Type != gjson.Number {
			w.fail(path, f.Kind.requirement())
			return
		}
		// gjson accepts literals such as 1e400 that no float64 can hold.
		if _, err := strconv.ParseFloat(value.Raw, 64); err != nil {
			w.fail(path, "must be a finite number")
		}

	case Bool:
		if !value.IsBool() {
			w.fail(path, f.Kind.requirement())
		}

	case Object:
		if !value.IsObject() {
			w.fail(path, f.Kind.requirement())
			return
		}
		w.walk(value, f.Fields, path+".")

	case StringArray:
		if !value.IsArray() {
			w.fail(path, f.Kind.requirement())
			return
		}
		for i, item := range value.Array() {
			if item.Type != gjson.String {
				w.fail(path+"["+strconv.Itoa(i)+"]", String.requirement())
			}
		}
	}
}
