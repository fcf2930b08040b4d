package pkg

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// StrongPasswordTag is the validation tag for StrongPassword.
const StrongPasswordTag = "strongpassword"

const minPasswordLength = 8

// StrongPassword reports whether the field holds at least 8 characters with
// a lowercase letter, an uppercase letter, a digit and a symbol.
func StrongPassword(fl validator.FieldLevel) bool {
	return IsStrongPassword(fl.Field().String())
}

// IsStrongPassword applies the StrongPassword rule to s.
func IsStrongPassword(s string) bool {
	var n int
	var lower, upper, digit, symbol bool
	for _, r := range s {
		n++
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return n >= minPasswordLength && lower && upper && digit && symbol
}

// RegisterValidations installs the custom validation tags on v.
func RegisterValidations(v *validator.Validate) error {
	if err := v.RegisterValidation(StrongPasswordTag, StrongPassword); err != nil {
		return fmt.Errorf("register %s validation: %w", StrongPasswordTag, err)
	}
	return nil
}

// RegisterBindingValidations installs the custom validation tags on gin's
// default binding validator.
func RegisterBindingValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding validator is not go-playground/validator")
	}
	return RegisterValidations(v)
}
