package accounts

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

var validate = validator.New()

// checkInput runs the struct tags on in and reports the first failing field
// as a validation error.
func checkInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		first := fieldErrs[0]
		switch first.Tag() {
		case "required":
			return fmt.Errorf("%w: %s is required", domain.ErrValidation, first.Field())
		case "email":
			return fmt.Errorf("%w: email %q is not valid", domain.ErrValidation, first.Value())
		}
		return fmt.Errorf("%w: %s is not valid", domain.ErrValidation, first.Field())
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}
