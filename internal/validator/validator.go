package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var productIDPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// Validator checks deal inputs against their struct tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with the "productid" tag registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag or a nil func.
	_ = v.RegisterValidation("productid", func(fl validator.FieldLevel) bool {
		return productIDPattern.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// ValidateStruct validates s and reports every failing field in one error.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation failed: %w", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s: %w", strings.Join(problems, ", "), err)
}
