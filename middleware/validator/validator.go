// Package validator rejects runs whose input fails a check.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/sweetpotato0/notion-agent/errors"
	"github.com/sweetpotato0/notion-agent/middleware"
)

// ValidatorFunc validates input
type ValidatorFunc func(string) error

// InputValidator validates and cleans input
type InputValidator struct {
	validator ValidatorFunc
}

// NewInputValidator creates an input validation middleware
func NewInputValidator(validator ValidatorFunc) *InputValidator {
	return &InputValidator{validator: validator}
}

// Name returns the middleware name
func (m *InputValidator) Name() string {
	return "InputValidator"
}

// Execute trims the input and validates it.
func (m *InputValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	ctx.Input = strings.TrimSpace(ctx.Input)
	if m.validator != nil {
		if err := m.validator(ctx.Input); err != nil {
			return err
		}
	}
	return next(ctx)
}

// NonEmpty rejects blank input and input longer than maxRunes (when positive).
func NonEmpty(maxRunes int) ValidatorFunc {
	return func(input string) error {
		if input == "" {
			return fmt.Errorf("%w: input must not be empty", apperrors.ErrInvalidInput)
		}
		if maxRunes > 0 && utf8.RuneCountInString(input) > maxRunes {
			return fmt.Errorf("%w: input exceeds %d characters", apperrors.ErrInvalidInput, maxRunes)
		}
		return nil
	}
}
