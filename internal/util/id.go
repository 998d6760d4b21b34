package util

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random (version 4) UUID as 32 lowercase hex characters,
// safe for URLs, queue consumer names and object keys.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
