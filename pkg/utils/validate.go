package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the "notblank" tag registered, which
// rejects strings made only of whitespace.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return v
}

func FormatValidationError(err error) map[string]string {
	result := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		result["error"] = err.Error()
		return result
	}

	for _, err := range validationErrors {
		field := strings.ToLower(err.Field())

		switch err.Tag() {
		case "required", "notblank":
			result[field] = fmt.Sprintf("%s is required", field)
		case "numeric", "number":
			result[field] = fmt.Sprintf("%s must be a number", field)
		case "max":
			result[field] = fmt.Sprintf("%s must be at most %s characters", field, err.Param())
		case "gte":
			result[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		default:
			result[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return result
}
