// Package util holds small shared helpers: path hashing, disk-space
// queries, and human-readable formatting.
package util

import (
	"crypto/md5"
	"encoding/hex"
)

// HashPrefix returns the first 12 hex characters of the MD5 digest of s.
// Staged file names are <hash12>_<name> to avoid path-length and
// collision issues when many source directories funnel into one flat
// staging subdirectory.
func HashPrefix(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
