package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct-level validation
// tags. It does not mutate the configuration; normalization happens in
// ApplyDefaults.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("invalid configuration: %w", formatValidationErrors(errs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// formatValidationErrors renders validator errors with the offending
// field path and the failed rule, which is friendlier than the default
// struct-tag dump.
func formatValidationErrors(errs validator.ValidationErrors) error {
	msg := ""
	for i, fe := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("field %s failed on the %q rule", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (param: %s)", fe.Param())
		}
	}
	return fmt.Errorf("%s", msg)
}
