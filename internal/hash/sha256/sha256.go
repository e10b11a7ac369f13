// Package sha256 computes dataset checksums.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sidecar renders a checksum line for objectPath in sha256sum format, so
// `sha256sum -c` verifies a downloaded dataset.
func (h *Hasher) Sidecar(objectPath string, data []byte) []byte {
	return fmt.Appendf(nil, "%s  %s\n", h.Hash(data), path.Base(objectPath))
}
