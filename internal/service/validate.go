package service

import (
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
)

// Length caps for free-text fields.
const (
	maxNameLength  = 100
	maxEmailLength = 255
)

// fieldErrors collects per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f[field] = field + " is required"
	}
}

// name is a required field of at most maxNameLength characters.
func (f fieldErrors) name(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		f[field] = field + " is required"
		return
	}
	if !govalidator.StringLength(value, "1", strconv.Itoa(maxNameLength)) {
		f[field] = field + " must be at most " + strconv.Itoa(maxNameLength) + " characters"
	}
}

func (f fieldErrors) email(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		f[field] = field + " is required"
		return
	}
	if !govalidator.StringLength(value, "3", strconv.Itoa(maxEmailLength)) || !govalidator.IsEmail(value) {
		f[field] = field + " must be a valid email address"
	}
}

func (f fieldErrors) err(msg string) error {
	if len(f) == 0 {
		return nil
	}
	return ValidationError(msg, f)
}
