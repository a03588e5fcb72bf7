package utils

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// NewConnectionID returns the opaque id assigned to a live connection.
func NewConnectionID() string {
	return uuid.NewString()
}

// NormalizeDisplayName trims whitespace and NFC-normalizes the name so
// that Hangul typed as composed or decomposed jamo compares equal across
// join, kick-vote and user-list paths.
func NormalizeDisplayName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
