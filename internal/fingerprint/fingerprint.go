// Package fingerprint derives the content address of a rendered snippet.
package fingerprint

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Size is the length of a fingerprint in hex characters.
const Size = 64

// Compute returns the hex BLAKE3-256 digest of density ++ packageList ++ snippet.
// The three fields are concatenated without separators so the result matches
// artifacts already on disk for the same triple.
func Compute(density, packageList, snippet string) string {
	h := blake3.New()
	_, _ = h.WriteString(density)
	_, _ = h.WriteString(packageList)
	_, _ = h.WriteString(snippet)
	return hex.EncodeToString(h.Sum(nil))
}

// MergePackages joins the global and per-call package lists in order.
// Duplicates are kept.
func MergePackages(global, extra []string) string {
	merged := make([]string, 0, len(global)+len(extra))
	merged = append(merged, global...)
	merged = append(merged, extra...)
	return strings.Join(merged, ",")
}

// Valid reports whether fp looks like a fingerprint produced by Compute.
func Valid(fp string) bool {
	if len(fp) != Size {
		return false
	}
	_, err := hex.DecodeString(fp)
	return err == nil && strings.ToLower(fp) == fp
}
