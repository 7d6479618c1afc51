// Package deletion orchestrates graced, approval-gated erasure requests and
// the pseudonymization that executes them.
package deletion

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// versionTag is folded into the hash so a future algorithm change can never
// collide with v1 pseudonyms.
const versionTag = "v1"

// pseudonymHexLen is the truncated hash prefix kept in the pseudonym.
const pseudonymHexLen = 16

// Pseudonymize deterministically replaces an identifier with a salted,
// one-way pseudonym: the same (identifier, salt) pair always yields the same
// value, so anonymized tables stay joinable without recovering the original.
//
// An empty identifier yields a fresh random anon_ tag each call; it can never
// collide with a real pseudonym because the prefixes differ.
func Pseudonymize(identifier, salt string) string {
	if identifier == "" {
		return "anon_" + uuid.New().String()[:pseudonymHexLen]
	}
	sum := sha256.Sum256([]byte(identifier + salt + versionTag))
	return "pseudo_" + hex.EncodeToString(sum[:])[:pseudonymHexLen]
}

// IsPseudonym reports whether a value is already a pseudonymized identifier.
// Running anonymization twice on the same user is a safe no-op.
func IsPseudonym(v string) bool {
	return len(v) > 7 && v[:7] == "pseudo_" || len(v) > 5 && v[:5] == "anon_"
}
