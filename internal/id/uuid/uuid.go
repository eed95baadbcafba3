// Package uuid issues batch identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// Generator issues time-ordered UUIDv7 batch IDs, so listing batches by ID
// also lists them by submission time.
type Generator struct{}

var _ leadership.IDGenerator = Generator{}

// New returns a Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a fresh UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether id parses as a UUID.
func Valid(id string) bool {
	return uuid.Validate(id) == nil
}
