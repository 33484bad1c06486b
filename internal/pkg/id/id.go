package id

import (
	"crypto/rand"
	"regexp"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// referencePattern is the canonical 8-4-4-4-12 hex grouping every reference
// handed to callers must match.
var referencePattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// New generates a fresh reference. The 128 bits come from a ULID, so
// references sort by creation time, and are rendered in canonical UUID text.
func New() string {
	u := ulid.MustNew(ulid.Now(), rand.Reader)
	return uuid.UUID(u).String()
}

// Valid reports whether s is a well-formed reference.
func Valid(s string) bool {
	return referencePattern.MatchString(s)
}
