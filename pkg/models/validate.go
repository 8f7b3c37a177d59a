package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs the struct tag rules of a model and flattens any
// field failures into a single readable error wrapping ErrInvalid.
func ValidateStruct(model any) error {
	err := validate.Struct(model)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	messages := make([]string, 0, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		messages = append(messages, describeFieldError(fieldErr))
	}

	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(messages, "; "))
}

func describeFieldError(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fieldErr.Namespace() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fieldErr.Namespace(), fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fieldErr.Namespace(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", fieldErr.Namespace(), fieldErr.Tag())
	}
}
