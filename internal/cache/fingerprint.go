package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint is the content hash used as a cache key. Two fingerprints are
// equal iff the normalized texts are byte-identical.
type Fingerprint string

// NewFingerprint hashes text after normalization.
func NewFingerprint(text string) Fingerprint {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// String returns the hex encoding of the hash.
func (f Fingerprint) String() string {
	return string(f)
}

// Normalize canonicalizes line endings, collapses runs of spaces and tabs
// within each line and trims surrounding whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
