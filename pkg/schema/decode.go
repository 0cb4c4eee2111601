package schema

import (
	"encoding/json"
	"errors"
	"strings"
)

// DecodeError reports a failure to decode data that already passed Validate
// as a *ValidationError. This happens when the raw bytes and the decoder
// disagree, e.g. a duplicated key whose last occurrence has another type.
// A type mismatch is reported at its field path, anything else at the root.
func (s *Schema) DecodeError(err error) *ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		path, field := s.lookup(typeErr.Field)
		msg := "has an unexpected type"
		if field != nil {
			msg = field.Kind.requirement()
		}
		return &ValidationError{Fields: []FieldError{{Path: path, Message: msg}}}
	}

	return &ValidationError{Fields: []FieldError{{Message: "body could not be decoded"}}}
}

// lookup maps a dotted wire path (e.g. "chat_box.message") to its error path
// ("chatBox.message") and rule. Unknown segments are kept as they are and
// yield a nil rule.
func (s *Schema) lookup(wirePath string) (string, *Field) {
	fields := s.Fields
	names := make([]string, 0, 2)
	var current *Field

	for _, key := range strings.Split(wirePath, ".") {
		current = nil
		for i := range fields {
			if fields[i].Key == key {
				current = &fields[i]
				break
			}
		}
		if current == nil {
			names = append(names, key)
			fields = nil
			continue
		}
		names = append(names, current.Name)
		fields = current.Fields
	}

	return strings.Join(names, "."), current
}
