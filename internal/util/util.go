// Package util holds small helpers shared across packages: ID generation,
// reflection based JSON schemas and string truncation.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh UUIDv4 string.
func NewID() string { return uuid.NewString() }

// Truncate clips s to at most n runes, ending in "..." when clipped. The
// result never exceeds n runes. Non-positive n returns s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimRight(string(r[:n-3]), " \t\n") + "..."
}
