package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"batch-runner/internal/model"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var tagMessages = map[string]string{
	"required": "a value is required",
	"min":      "needs at least %s value(s)",
	"gte":      "must be greater than or equal to %s",
}

// fieldMessages override tagMessages for one field and tag.
var fieldMessages = map[string]string{
	"inputs.required":  "specify input file or directory",
	"inputs.min":       "specify input file or directory",
	"formats.required": "specify at least one output format",
	"formats.min":      "specify at least one output format",
}

// Validate checks cfg and reports every problem as a *model.ValidationError.
func Validate(cfg Export) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, model.NewValidationError(fe.Field(), message(fe)))
	}
	return errors.Join(errs...)
}

func message(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := tagMessages[fe.Tag()]; ok {
		if strings.Contains(msg, "%s") {
			return fmt.Sprintf(msg, fe.Param())
		}
		return msg
	}
	return "failed " + fe.Tag() + " check"
}

func invalidEnv(name, value string) error {
	return model.NewValidationError(envPrefix+name, fmt.Sprintf("invalid value %q", value))
}
