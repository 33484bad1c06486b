// Package phone normalizes mobile numbers so that the same subscriber is
// always stored and looked up under one spelling.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid is returned when a number cannot be parsed or validated.
var ErrInvalid = errors.New("invalid mobile number")

// Normalize parses input with libphonenumber and returns it in E.164 form.
// A leading '+' is required; there is no default region.
func Normalize(input string) (string, error) {
	plus := 0
	for _, r := range input {
		switch {
		case r == '+':
			plus++
		case r >= '0' && r <= '9', r == ' ', r == '-', r == '(', r == ')', r == '.':
		default:
			return "", ErrInvalid
		}
	}
	if plus != 1 || input[0] != '+' {
		return "", ErrInvalid
	}

	num, err := phonenumbers.Parse(input, "")
	if err != nil {
		return "", ErrInvalid
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Canonical returns the E.164 form of input when it normalizes, trying a
// missing leading '+' as gateways often omit it. Anything else is returned
// trimmed, so that the same raw spelling always maps to the same key.
func Canonical(input string) string {
	s := strings.TrimSpace(input)
	if n, err := Normalize(s); err == nil {
		return n
	}
	if s != "" && !strings.HasPrefix(s, "+") {
		if n, err := Normalize("+" + s); err == nil {
			return n
		}
	}
	return s
}
