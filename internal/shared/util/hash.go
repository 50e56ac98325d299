package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex sha256 digest of the given text. Variant rows
// and job fingerprints are keyed by this digest, so it must stay stable
// across releases.
func ContentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashPrefix returns the first n characters of a hex digest, or the whole
// digest when it is shorter than n.
func HashPrefix(hash string, n int) string {
	if n <= 0 || len(hash) <= n {
		return hash
	}
	return hash[:n]
}
