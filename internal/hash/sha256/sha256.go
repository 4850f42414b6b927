// Package sha256 fingerprints archived page bodies.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyBody is returned when there is nothing to hash.
var ErrEmptyBody = errors.New("hash: empty body")

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() Hasher {
	return Hasher{}
}

// Hash returns the hex digest of data. Empty bodies are rejected so the page
// ledger never records the digest of nothing.
func (Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyBody
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
