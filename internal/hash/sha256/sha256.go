// Package sha256 names export artifacts by content digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// Hasher digests artifact bytes with SHA-256.
type Hasher struct {
	// Prefix truncates the hex digest when > 0.
	Prefix int
}

var _ leadership.Hasher = (*Hasher)(nil)

// New returns a hasher producing full-length digests.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.Prefix > 0 && h.Prefix < len(digest) {
		digest = digest[:h.Prefix]
	}
	return digest, nil
}
