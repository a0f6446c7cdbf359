package handlers

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const maxWeekLength = 32

// NewValidator returns the request validator with the domain tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("week", validateWeek)
	return v
}

// validateWeek accepts opaque week labels such as "2025-W14": non-blank,
// printable and free of whitespace.
func validateWeek(fl validator.FieldLevel) bool {
	week := fl.Field().String()
	if week == "" || len(week) > maxWeekLength {
		return false
	}
	return strings.IndexFunc(week, func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	}) < 0
}
