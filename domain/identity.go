// Package domain contains core concepts of the messaging system.
// This file defines Identity values and their validation rules.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"errors"
	"strings"
	apperrors "whisper/errors"

	"github.com/go-playground/validator/v10"
)

// Identity is a validated, case-sensitive username.
// Immutable once bound to a session.
type Identity string

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// identitychars restricts usernames to letters, digits, '_' and '-'.
	// Kept separate from the length tags so each failure maps to its own error.
	_ = v.RegisterValidation("identitychars", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '_' || r == '-':
			default:
				return false
			}
		}
		return true
	})
	return v
}

type identityCandidate struct {
	Username string `validate:"min=2,max=32,identitychars"`
}

// ParseIdentity trims and validates a proposed display name.
// Length and charset violations yield distinct sentinel errors so the
// caller can report a precise rejection reason.
func ParseIdentity(raw string) (Identity, error) {
	trimmed := strings.TrimSpace(raw)
	if err := validate.Struct(identityCandidate{Username: trimmed}); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return "", apperrors.ErrIdentityCharset
		}
		switch fieldErrs[0].Tag() {
		case "min", "max":
			return "", apperrors.ErrIdentityLength
		default:
			return "", apperrors.ErrIdentityCharset
		}
	}
	return Identity(trimmed), nil
}
