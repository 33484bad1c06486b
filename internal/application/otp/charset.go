package otp

import "strings"

const (
	numeric      = "0123456789"
	alphabets    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	alphanumeric = numeric + alphabets
)

// alphabetFor maps the configured character class, including its historical
// aliases, to the characters a code may contain. Unknown classes are digits.
func alphabetFor(characters string) string {
	switch strings.ToLower(strings.TrimSpace(characters)) {
	case "alnum", "alphanumeric":
		return alphanumeric
	case "alpha", "alphabets":
		return alphabets
	default:
		return numeric
	}
}

// matchesAlphabet reports whether code is non-empty and drawn only from alphabet.
func matchesAlphabet(code, alphabet string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
