package core

import "github.com/google/uuid"

// NewID returns a random identifier, prefixed when prefix is not empty.
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
