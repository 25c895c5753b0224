// Package gen provides utility functions for generating values.
package gen

import (
	"strings"

	"github.com/google/uuid"
)

const sep = "|"

// Key joins parts with the key separator.
func Key(parts ...string) string {
	return strings.Join(parts, sep)
}

// UUIDv5 generates a deterministic UUIDv5 from the key of parts.
func UUIDv5(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(Key(parts...))).String()
}

// RequestID returns a random UUIDv4 for correlating a request across logs.
func RequestID() string {
	return uuid.NewString()
}
