package backend

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks v against its validate tags and reports the first
// problem as a *ConfigurationError naming the field's namespace.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ConfigurationError{
			Field: fe.Namespace(),
			Err:   fmt.Errorf("value %v fails %q", fe.Value(), fe.ActualTag()),
		}
	}
	return &ConfigurationError{Err: err}
}

// Validate checks the URL sources are well formed.
func (s Sources) Validate() error {
	return ValidateStruct(s)
}
