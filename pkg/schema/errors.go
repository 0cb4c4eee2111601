package schema

import "strings"

// KindValidation is the stable error kind reported to callers for schema failures.
const KindValidation = "ValidationError"

// FieldError describes a single offending field. An empty Path refers to
// the payload as a whole.
type FieldError struct {
	Path    string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + " " + e.Message
}

// ValidationError is returned when a payload does not match its Schema.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Kind returns KindValidation.
func (e *ValidationError) Kind() string {
	return KindValidation
}

// Paths returns the offending field paths in the order they were found.
func (e *ValidationError) Paths() []string {
	paths := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		paths = append(paths, f.Path)
	}
	return paths
}
