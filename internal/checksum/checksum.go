// Package checksum derives content digests used for change detection and
// stable item identifiers.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is the number of hex characters kept by Short.
const shortLen = 12

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short hashes the given parts (NUL separated, so ("ab","c") differs from
// ("a","bc")) and returns a 12-character hex prefix.
func Short(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:shortLen]
}
